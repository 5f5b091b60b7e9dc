// Package worker 消费 open-battles 并发布计算结果
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"critter-coliseum/internal/model/battlemodel"
	"critter-coliseum/internal/modules/coliseum/calculator"
	"critter-coliseum/internal/pkg/ctxkey"
	"critter-coliseum/internal/pkg/jobqueue"
	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/metrics"
	"critter-coliseum/internal/pkg/trace"
	"critter-coliseum/internal/pkg/xerrors"

	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxInFlight 同时计算的任务上限
	DefaultMaxInFlight = 16
	// DefaultNakDelay 显式确认模式下失败任务的重投延迟
	DefaultNakDelay = 5 * time.Second
)

// Publisher 发布计算结果
type Publisher interface {
	Publish(ctx context.Context, ch jobqueue.Channel, v any) error
}

// OpenBattleWorker 计算战斗结果并发布到 closed-battles。
// 订阅按顺序回调 Handle，这里用信号量限制并发并在获取后异步处理
type OpenBattleWorker struct {
	registry    *calculator.Registry
	publisher   Publisher
	logger      log.Logger
	sem         *semaphore.Weighted
	maxInFlight int64
	nakDelay    time.Duration
	metrics      *metrics.BattleMetrics
	errorMetrics *metrics.ErrorMetrics
	serviceName  string
	wg           sync.WaitGroup
}

// Option Worker 选项
type Option func(*OpenBattleWorker)

// WithMaxInFlight 设置并发上限
func WithMaxInFlight(n int) Option {
	return func(w *OpenBattleWorker) {
		if n > 0 {
			w.maxInFlight = int64(n)
		}
	}
}

// WithBattleMetrics 设置指标
func WithBattleMetrics(m *metrics.BattleMetrics, serviceName string) Option {
	return func(w *OpenBattleWorker) {
		w.metrics = m
		w.serviceName = serviceName
	}
}

// WithErrorMetrics 设置错误指标，默认使用 metrics.DefaultErrorMetrics
func WithErrorMetrics(m *metrics.ErrorMetrics) Option {
	return func(w *OpenBattleWorker) { w.errorMetrics = m }
}

// WithNakDelay 设置重投延迟
func WithNakDelay(d time.Duration) Option {
	return func(w *OpenBattleWorker) {
		if d >= 0 {
			w.nakDelay = d
		}
	}
}

// NewOpenBattleWorker 创建 Worker
func NewOpenBattleWorker(registry *calculator.Registry, publisher Publisher, logger log.Logger, opts ...Option) *OpenBattleWorker {
	if logger == nil {
		logger = log.GetLogger()
	}
	w := &OpenBattleWorker{
		registry:     registry,
		publisher:    publisher,
		logger:       logger.With("component", "open_battle_worker"),
		maxInFlight:  DefaultMaxInFlight,
		nakDelay:     DefaultNakDelay,
		errorMetrics: metrics.DefaultErrorMetrics,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.sem = semaphore.NewWeighted(w.maxInFlight)
	return w
}

// Handle 处理一次 open-battles 投递，达到并发上限时阻塞
func (w *OpenBattleWorker) Handle(ctx context.Context, d jobqueue.Delivery) {
	ctx = ctxkey.WithValue(ctx, ctxkey.Channel, d.Channel().String())

	job, err := jobqueue.Decode[battlemodel.OpenBattleJob](d)
	if err == nil {
		err = job.Validate()
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "战斗任务格式错误，已丢弃", log.Any("error", err))
		w.recordError(xerrors.NewWithError(xerrors.CodeMalformedBattleJob, "战斗任务格式错误", err))
		w.term(ctx, d)
		return
	}

	ctx, _ = trace.Ensure(ctx, job.TraceID)
	ctx = ctxkey.WithValue(ctx, ctxkey.BattleID, job.Battle.ID)

	if err := w.sem.Acquire(ctx, 1); err != nil {
		// 订阅已停止，显式确认模式下等待重投
		w.nak(ctx, d)
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)
		w.process(ctx, d, job)
	}()
}

// Wait 等待所有进行中的任务结束
func (w *OpenBattleWorker) Wait() {
	w.wg.Wait()
}

func (w *OpenBattleWorker) process(ctx context.Context, d jobqueue.Delivery, job battlemodel.OpenBattleJob) {
	calc, err := w.registry.Lookup(job.Battle.Kind)
	if err != nil {
		w.logger.ErrorContext(ctx, "未知的战斗类型，已丢弃",
			log.String("kind", job.Battle.Kind),
			log.Any("error", err),
		)
		w.recordError(xerrors.NewWithError(xerrors.CodeUnknownBattleKind, "未知的战斗类型", err))
		w.term(ctx, d)
		return
	}

	start := time.Now()
	result, err := calc.Compute(ctx, job.Critters[0], job.Critters[1])
	if err != nil {
		if errors.Is(err, context.Canceled) {
			w.logger.WarnContext(ctx, "计算被中断")
		} else {
			w.logger.ErrorContext(ctx, "计算失败", log.Any("error", err))
			w.recordError(xerrors.Wrap(err, xerrors.CodeInternalError, "战斗计算失败"))
		}
		w.nak(ctx, d)
		return
	}

	closed := battlemodel.ClosedBattleJob{
		Battle:  job.Battle,
		Result:  result,
		TraceID: trace.GetTraceID(ctx),
	}
	if err := w.publisher.Publish(ctx, jobqueue.ChannelClosedBattles, closed); err != nil {
		w.logger.ErrorContext(ctx, "发布结算任务失败", log.Any("error", err))
		w.recordError(xerrors.NewMessageQueueError(jobqueue.ChannelClosedBattles.String(), err))
		w.nak(ctx, d)
		return
	}

	if err := d.Ack(ctx); err != nil {
		// 重投后会再次计算，closed-battles 侧按幂等处理
		w.logger.WarnContext(ctx, "Ack 失败", log.Any("error", err))
	}
	w.recordJob(metrics.OutcomeAck)

	w.logger.InfoContext(ctx, "战斗计算完成",
		log.String("kind", job.Battle.Kind),
		log.Bool("a_won", result.AWon),
		log.Int64("a_score", result.AScore),
		log.Int64("b_score", result.BScore),
		log.Duration("compute", time.Since(start).Milliseconds()),
	)
}

func (w *OpenBattleWorker) nak(ctx context.Context, d jobqueue.Delivery) {
	if !d.RequiresAck() {
		w.recordJob(metrics.OutcomeDropped)
		return
	}
	if err := d.Nak(context.WithoutCancel(ctx), w.nakDelay); err != nil {
		w.logger.WarnContext(ctx, "Nak 失败", log.Any("error", err))
	}
	w.recordJob(metrics.OutcomeNak)
}

func (w *OpenBattleWorker) term(ctx context.Context, d jobqueue.Delivery) {
	if !d.RequiresAck() {
		w.recordJob(metrics.OutcomeDropped)
		return
	}
	if err := d.Term(context.WithoutCancel(ctx)); err != nil {
		w.logger.WarnContext(ctx, "Term 失败", log.Any("error", err))
	}
	w.recordJob(metrics.OutcomeTerm)
}

func (w *OpenBattleWorker) recordJob(outcome string) {
	if w.metrics != nil {
		w.metrics.RecordJob(jobqueue.ChannelOpenBattles.String(), outcome, w.serviceName)
	}
}

func (w *OpenBattleWorker) recordError(appErr *xerrors.AppError) {
	if w.errorMetrics == nil || appErr == nil {
		return
	}
	w.errorMetrics.RecordError(appErr, jobqueue.ChannelOpenBattles.String(), w.serviceName)
}
