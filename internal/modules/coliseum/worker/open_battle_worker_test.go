package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"critter-coliseum/internal/model/battlemodel"
	"critter-coliseum/internal/modules/coliseum/calculator"
	"critter-coliseum/internal/pkg/jobqueue"
	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/metrics"
	"critter-coliseum/internal/pkg/xerrors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDelivery struct {
	mu          sync.Mutex
	data        []byte
	requiresAck bool
	acks        int
	naks        int
	terms       int
}

func (d *fakeDelivery) Channel() jobqueue.Channel { return jobqueue.ChannelOpenBattles }
func (d *fakeDelivery) Data() []byte              { return d.data }
func (d *fakeDelivery) NumDelivered() uint64      { return 1 }
func (d *fakeDelivery) RequiresAck() bool         { return d.requiresAck }

func (d *fakeDelivery) Ack(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acks++
	return nil
}

func (d *fakeDelivery) Nak(context.Context, time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.naks++
	return nil
}

func (d *fakeDelivery) Term(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terms++
	return nil
}

func (d *fakeDelivery) counts() (acks, naks, terms int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acks, d.naks, d.terms
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	closed []battlemodel.ClosedBattleJob
}

func (p *fakePublisher) Publish(_ context.Context, ch jobqueue.Channel, v any) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch == jobqueue.ChannelClosedBattles {
		p.closed = append(p.closed, v.(battlemodel.ClosedBattleJob))
	}
	return nil
}

func (p *fakePublisher) published() []battlemodel.ClosedBattleJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]battlemodel.ClosedBattleJob(nil), p.closed...)
}

func openJob(kind string) battlemodel.OpenBattleJob {
	battle := battlemodel.Battle{
		ID:         "battle-1",
		Kind:       kind,
		InProgress: true,
		CritterAID: "critter-a",
		CritterBID: "critter-b",
	}
	return battlemodel.OpenBattleJob{
		Battle: battle,
		Critters: []battlemodel.Critter{
			{ID: "critter-a", Attributes: map[string]int{battlemodel.AttrStrength: 9}},
			{ID: "critter-b", Attributes: map[string]int{battlemodel.AttrStrength: 5}},
		},
		TraceID: "trace-open-1",
	}
}

func delivery(t *testing.T, job any, requiresAck bool) *fakeDelivery {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return &fakeDelivery{data: data, requiresAck: requiresAck}
}

func newWorker(pub Publisher, m *metrics.BattleMetrics, opts ...Option) *OpenBattleWorker {
	opts = append([]Option{WithBattleMetrics(m, "coliseum")}, opts...)
	return NewOpenBattleWorker(calculator.NewDefaultRegistry(calculator.WithDelay(0)), pub, log.Discard(), opts...)
}

func newTestMetrics() *metrics.BattleMetrics {
	return metrics.NewBattleMetricsWithRegistry(metrics.Namespace, prometheus.NewRegistry())
}

func errorCount(m *metrics.ErrorMetrics, code xerrors.ErrorCode) float64 {
	return testutil.ToFloat64(m.ErrorsByCode.WithLabelValues("coliseum", "OPEN-BATTLES", strconv.Itoa(int(code)), "battle", "ERROR"))
}

func jobCount(m *metrics.BattleMetrics, outcome string) float64 {
	return testutil.ToFloat64(m.JobsTotal.WithLabelValues(jobqueue.ChannelOpenBattles.String(), outcome, "coliseum"))
}

func TestOpenBattleWorker_PublishesResultThenAcks(t *testing.T) {
	pub := &fakePublisher{}
	m := newTestMetrics()
	w := newWorker(pub, m)

	d := delivery(t, openJob(battlemodel.KindDefault), true)
	w.Handle(context.Background(), d)
	w.Wait()

	closed := pub.published()
	require.Len(t, closed, 1)
	assert.Equal(t, "battle-1", closed[0].Battle.ID)
	assert.Equal(t, battlemodel.BattleResult{AWon: true, AScore: 9, BScore: 5}, closed[0].Result)
	assert.Equal(t, "trace-open-1", closed[0].TraceID)

	acks, naks, terms := d.counts()
	assert.Equal(t, 1, acks)
	assert.Zero(t, naks)
	assert.Zero(t, terms)
	assert.Equal(t, float64(1), jobCount(m, metrics.OutcomeAck))
}

func TestOpenBattleWorker_UnknownKind(t *testing.T) {
	t.Run("explicit ack terminates", func(t *testing.T) {
		pub := &fakePublisher{}
		m := newTestMetrics()
		em := metrics.NewErrorMetricsWithRegistry(metrics.Namespace, prometheus.NewRegistry())
		w := newWorker(pub, m, WithErrorMetrics(em))

		d := delivery(t, openJob("lightning"), true)
		w.Handle(context.Background(), d)
		w.Wait()

		assert.Empty(t, pub.published())
		_, _, terms := d.counts()
		assert.Equal(t, 1, terms)
		assert.Equal(t, float64(1), jobCount(m, metrics.OutcomeTerm))
		assert.Equal(t, float64(1), errorCount(em, xerrors.CodeUnknownBattleKind))
		assert.Zero(t, errorCount(em, xerrors.CodeInvalidParams))
	})

	t.Run("no ack drops", func(t *testing.T) {
		pub := &fakePublisher{}
		m := newTestMetrics()
		w := newWorker(pub, m)

		d := delivery(t, openJob("lightning"), false)
		w.Handle(context.Background(), d)
		w.Wait()

		assert.Empty(t, pub.published())
		acks, naks, terms := d.counts()
		assert.Zero(t, acks+naks+terms)
		assert.Equal(t, float64(1), jobCount(m, metrics.OutcomeDropped))
	})
}

func TestOpenBattleWorker_MalformedJob(t *testing.T) {
	pub := &fakePublisher{}
	m := newTestMetrics()
	em := metrics.NewErrorMetricsWithRegistry(metrics.Namespace, prometheus.NewRegistry())
	w := newWorker(pub, m, WithErrorMetrics(em))

	d := &fakeDelivery{data: []byte(`{"battle":`), requiresAck: true}
	w.Handle(context.Background(), d)
	w.Wait()

	_, _, terms := d.counts()
	assert.Equal(t, 1, terms)

	job := openJob(battlemodel.KindDefault)
	job.Critters = job.Critters[:1]
	d = delivery(t, job, true)
	w.Handle(context.Background(), d)
	w.Wait()

	_, _, terms = d.counts()
	assert.Equal(t, 1, terms)
	assert.Empty(t, pub.published())
	assert.Equal(t, float64(2), errorCount(em, xerrors.CodeMalformedBattleJob))
}

func TestOpenBattleWorker_PublishFailureNaks(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: timeout")}
	m := newTestMetrics()
	w := newWorker(pub, m)

	d := delivery(t, openJob(battlemodel.KindDefault), true)
	w.Handle(context.Background(), d)
	w.Wait()

	acks, naks, _ := d.counts()
	assert.Zero(t, acks)
	assert.Equal(t, 1, naks)
	assert.Equal(t, float64(1), jobCount(m, metrics.OutcomeNak))
}

func TestOpenBattleWorker_BoundsInFlight(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})

	registry := calculator.NewRegistry()
	registry.Register(battlemodel.KindDefault, calculator.Func(func(ctx context.Context, a, b battlemodel.Critter) (battlemodel.BattleResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return battlemodel.BattleResult{AWon: true}, nil
	}))

	pub := &fakePublisher{}
	w := NewOpenBattleWorker(registry, pub, log.Discard(), WithMaxInFlight(2))

	deliveries := make([]*fakeDelivery, 5)
	for i := range deliveries {
		deliveries[i] = delivery(t, openJob(battlemodel.KindDefault), true)
	}

	handled := make(chan struct{})
	go func() {
		defer close(handled)
		for _, d := range deliveries {
			w.Handle(context.Background(), d)
		}
	}()

	require.Eventually(t, func() bool { return inFlight.Load() == 2 }, time.Second, 5*time.Millisecond)
	// 第三个任务阻塞在信号量上
	select {
	case <-handled:
		t.Fatal("Handle should block while the worker is saturated")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-handled
	w.Wait()

	assert.Equal(t, int32(2), peak.Load())
	assert.Len(t, pub.published(), 5)
}

func TestOpenBattleWorker_MemoryQueueLoopback(t *testing.T) {
	q := jobqueue.NewMemoryQueue(jobqueue.DefaultChannelConfigs(jobqueue.AckExplicit, time.Second))
	t.Cleanup(func() { _ = q.Close() })

	w := newWorker(q, newTestMetrics())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := q.Subscribe(ctx, jobqueue.ChannelOpenBattles, w.Handle)
	require.NoError(t, err)
	defer sub.Stop()

	results := make(chan battlemodel.ClosedBattleJob, 1)
	closedSub, err := q.Subscribe(ctx, jobqueue.ChannelClosedBattles, func(ctx context.Context, d jobqueue.Delivery) {
		job, err := jobqueue.Decode[battlemodel.ClosedBattleJob](d)
		if err == nil {
			results <- job
		}
		_ = d.Ack(ctx)
	})
	require.NoError(t, err)
	defer closedSub.Stop()

	require.NoError(t, q.Publish(ctx, jobqueue.ChannelOpenBattles, openJob(battlemodel.KindDefault)))

	select {
	case job := <-results:
		assert.Equal(t, "battle-1", job.Battle.ID)
		assert.True(t, job.Result.AWon)
	case <-time.After(2 * time.Second):
		t.Fatal("closed battle job was not published")
	}
	assert.Eventually(t, func() bool { return q.Pending(jobqueue.ChannelOpenBattles) == 0 }, time.Second, 10*time.Millisecond)
}
