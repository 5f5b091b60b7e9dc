package jobqueue

import (
	"context"
	"os"
	"testing"
	"time"

	"critter-coliseum/internal/pkg/log"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要一个开启 JetStream 的 NATS 服务：RUN_JETSTREAM_TESTS=1 NATS_URL=nats://localhost:4222
func TestJetStreamQueue_ClosedBattlesRoundTrip(t *testing.T) {
	if os.Getenv("RUN_JETSTREAM_TESTS") != "1" {
		t.Skip("JetStream 集成测试默认跳过，设置 RUN_JETSTREAM_TESTS=1 以启用")
	}
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	for _, ch := range Channels {
		_ = js.DeleteStream(ctx, StreamName(ch))
	}

	q, err := NewJetStreamQueue(ctx, nc, JetStreamOptions{
		Storage:  "memory",
		Channels: DefaultChannelConfigs(AckNone, 2*time.Second),
		Logger:   log.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	got := make(chan Delivery, 4)
	sub, err := q.Subscribe(ctx, ChannelClosedBattles, func(_ context.Context, d Delivery) { got <- d })
	require.NoError(t, err)
	defer sub.Stop()

	_, err = q.Subscribe(ctx, ChannelClosedBattles, func(context.Context, Delivery) {})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)

	require.NoError(t, q.Publish(ctx, ChannelClosedBattles, payload{N: 5, ID: "closed:it"}))

	first := <-got
	require.NoError(t, first.Nak(ctx, 0))
	second := <-got
	assert.Equal(t, uint64(2), second.NumDelivered())
	v, err := Decode[payload](second)
	require.NoError(t, err)
	assert.Equal(t, 5, v.N)
	require.NoError(t, second.Ack(ctx))
}
