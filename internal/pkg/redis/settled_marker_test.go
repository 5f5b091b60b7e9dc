package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettledKey(t *testing.T) {
	assert.Equal(t, "battle:settled:battle-1", SettledKey("battle-1"))
}

func TestNewSettledMarker_DefaultTTL(t *testing.T) {
	m := NewSettledMarker(nil, 0)
	assert.Equal(t, DefaultSettledTTL, m.ttl)

	m = NewSettledMarker(nil, time.Minute)
	assert.Equal(t, time.Minute, m.ttl)
}

func TestSettledMarker_NilClientIsNoop(t *testing.T) {
	var m *SettledMarker
	settled, err := m.IsSettled(context.Background(), "battle-1")
	require.NoError(t, err)
	assert.False(t, settled)
	assert.NoError(t, m.MarkSettled(context.Background(), "battle-1"))

	m = NewSettledMarker(nil, 0)
	settled, err = m.IsSettled(context.Background(), "battle-1")
	require.NoError(t, err)
	assert.False(t, settled)
}

func TestSettledMarker_UnreachableServerReturnsError(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	m := NewSettledMarker(Wrap(rdb, "test"), 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := m.IsSettled(ctx, "battle-1")
	assert.Error(t, err)
	assert.Error(t, m.MarkSettled(ctx, "battle-1"))
}
