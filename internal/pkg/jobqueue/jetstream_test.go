package jobqueue

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNaming(t *testing.T) {
	assert.Equal(t, "COLISEUM_OPEN_BATTLES", StreamName(ChannelOpenBattles))
	assert.Equal(t, "COLISEUM_CLOSED_BATTLES", StreamName(ChannelClosedBattles))
	assert.Equal(t, "coliseum.jobs.closed-battles", Subject(ChannelClosedBattles))
	assert.Equal(t, "open-battles-consumer", DurableName(ChannelOpenBattles))
}

func TestParseStorage(t *testing.T) {
	st, err := ParseStorage("")
	require.NoError(t, err)
	assert.Equal(t, jetstream.FileStorage, st)

	st, err = ParseStorage("MEMORY")
	require.NoError(t, err)
	assert.Equal(t, jetstream.MemoryStorage, st)

	_, err = ParseStorage("s3")
	assert.Error(t, err)
}

func TestParseAckMode(t *testing.T) {
	mode, err := ParseAckMode("")
	require.NoError(t, err)
	assert.Equal(t, AckNone, mode)

	mode, err = ParseAckMode("explicit")
	require.NoError(t, err)
	assert.Equal(t, AckExplicit, mode)

	_, err = ParseAckMode("sometimes")
	assert.Error(t, err)
}

func TestStreamAndConsumerConfig(t *testing.T) {
	configs := DefaultChannelConfigs(AckNone, 0)

	openStream := streamConfig(ChannelOpenBattles, configs[ChannelOpenBattles], jetstream.FileStorage)
	assert.Equal(t, jetstream.LimitsPolicy, openStream.Retention)
	assert.Equal(t, openStreamMaxAge, openStream.MaxAge)

	openConsumer := consumerConfig(ChannelOpenBattles, configs[ChannelOpenBattles])
	assert.Equal(t, jetstream.AckNonePolicy, openConsumer.AckPolicy)

	closedStream := streamConfig(ChannelClosedBattles, configs[ChannelClosedBattles], jetstream.MemoryStorage)
	assert.Equal(t, jetstream.WorkQueuePolicy, closedStream.Retention)
	assert.Equal(t, jetstream.MemoryStorage, closedStream.Storage)
	assert.Equal(t, []string{"coliseum.jobs.closed-battles"}, closedStream.Subjects)

	closedConsumer := consumerConfig(ChannelClosedBattles, configs[ChannelClosedBattles])
	assert.Equal(t, jetstream.AckExplicitPolicy, closedConsumer.AckPolicy)
	assert.Equal(t, DefaultAckWait, closedConsumer.AckWait)
	assert.Equal(t, "closed-battles-consumer", closedConsumer.Durable)

	explicit := DefaultChannelConfigs(AckExplicit, 10*time.Second)
	assert.Equal(t, jetstream.WorkQueuePolicy, streamConfig(ChannelOpenBattles, explicit[ChannelOpenBattles], jetstream.FileStorage).Retention)
	assert.Equal(t, 10*time.Second, consumerConfig(ChannelOpenBattles, explicit[ChannelOpenBattles]).AckWait)
}
