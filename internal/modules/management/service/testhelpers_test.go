package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"critter-coliseum/internal/model/battlemodel"
	"critter-coliseum/internal/pkg/jobqueue"
	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/metrics"
	"critter-coliseum/internal/repository/impl"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var (
	critterCols = []string{"id", "created_at", "is_reserved", "attributes_json", "experience", "num_wins", "num_losses"}
	battleCols  = []string{"id", "created_at", "completed_at", "in_progress", "kind", "critter_a_id", "critter_b_id", "a_won", "a_score", "b_score"}
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newTestMetrics() *metrics.BattleMetrics {
	return metrics.NewBattleMetricsWithRegistry(metrics.Namespace, prometheus.NewRegistry())
}

type fakeDelivery struct {
	mu        sync.Mutex
	data      []byte
	delivered uint64
	acks      int
	naks      int
	terms     int
	nakDelay  time.Duration
}

func newClosedDelivery(t *testing.T, job battlemodel.ClosedBattleJob) *fakeDelivery {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return &fakeDelivery{data: data, delivered: 1}
}

func (d *fakeDelivery) Channel() jobqueue.Channel { return jobqueue.ChannelClosedBattles }
func (d *fakeDelivery) Data() []byte              { return d.data }
func (d *fakeDelivery) NumDelivered() uint64      { return d.delivered }
func (d *fakeDelivery) RequiresAck() bool         { return true }

func (d *fakeDelivery) Ack(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acks++
	return nil
}

func (d *fakeDelivery) Nak(_ context.Context, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.naks++
	d.nakDelay = delay
	return nil
}

func (d *fakeDelivery) Term(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terms++
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	settled map[string]bool
	err     error
}

func newFakeCache() *fakeCache { return &fakeCache{settled: map[string]bool{}} }

func (c *fakeCache) IsSettled(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	return c.settled[id], nil
}

func (c *fakeCache) MarkSettled(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settled[id] = true
	return c.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []battlemodel.BattleSettledEvent
}

func (n *fakeNotifier) BattleSettled(_ context.Context, e battlemodel.BattleSettledEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type failingPublisher struct{ err error }

func (p failingPublisher) Publish(context.Context, jobqueue.Channel, any) error { return p.err }

func newApplier(db *sql.DB, cache SettledCache, notifier *fakeNotifier, m *metrics.BattleMetrics) *ClosedBattleApplier {
	opts := []ApplierOption{
		WithNotifier(notifier),
		WithBattleMetrics(m, "management"),
		WithNakDelay(time.Second),
	}
	if cache != nil {
		opts = append(opts, WithSettledCache(cache))
	}
	return NewClosedBattleApplier(db, impl.NewCritterRepository(db), impl.NewBattleRepository(db), log.Discard(), opts...)
}
