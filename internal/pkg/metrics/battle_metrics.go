// File: internal/pkg/metrics/battle_metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 任务处理结果标签
const (
	OutcomeAck       = "ack"
	OutcomeNak       = "nak"
	OutcomeTerm      = "term"
	OutcomeDuplicate = "duplicate"
	OutcomeOrphan    = "orphan"
	// OutcomeDropped 免确认通道上处理失败被丢弃的任务
	OutcomeDropped = "dropped"
)

// BattleMetrics 战斗流水线指标
type BattleMetrics struct {
	// 创建成功的战斗数
	BattlesCreated *prometheus.CounterVec

	// 结算完成的战斗数（按结果：a_won/b_won）
	BattlesSettled *prometheus.CounterVec

	// 任务处理次数（按通道与处理结果）
	JobsTotal *prometheus.CounterVec

	// 从创建到结算的耗时
	SettleDuration *prometheus.HistogramVec

	// 超时未结算的战斗数
	StaleBattles *prometheus.GaugeVec
}

var (
	// DefaultBattleMetrics 默认的战斗指标实例
	DefaultBattleMetrics *BattleMetrics
)

// SettleBuckets 战斗从创建到结算的耗时分布，默认计算延迟为 5 秒
var SettleBuckets = []float64{1, 2.5, 5, 7.5, 10, 15, 30, 60, 120, 300}

func init() {
	DefaultBattleMetrics = NewBattleMetrics(Namespace)
}

// NewBattleMetrics 创建战斗指标收集器
func NewBattleMetrics(namespace string) *BattleMetrics {
	return NewBattleMetricsWithRegistry(namespace, GetRegisterer())
}

// NewBattleMetricsWithRegistry 创建战斗指标收集器（使用自定义注册表）
func NewBattleMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *BattleMetrics {
	factory := promauto.With(registerer)

	return &BattleMetrics{
		BattlesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "created_total",
				Help:      "Total number of battles created",
			},
			[]string{"kind", "service"},
		),

		BattlesSettled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "settled_total",
				Help:      "Total number of battles settled by result (a_won/b_won)",
			},
			[]string{"result", "service"},
		),

		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "jobs_total",
				Help:      "Total number of battle jobs handled by channel and outcome",
			},
			[]string{"channel", "outcome", "service"},
		),

		SettleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "settle_duration_seconds",
				Help:      "Time from battle creation to settlement in seconds",
				Buckets:   SettleBuckets,
			},
			[]string{"service"},
		),

		StaleBattles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "stale",
				Help:      "Number of in-progress battles older than the stale threshold",
			},
			[]string{"service"},
		),
	}
}

// RecordCreated 记录战斗创建
func (m *BattleMetrics) RecordCreated(kind, service string) {
	service = normalizeServiceName(service)
	m.BattlesCreated.WithLabelValues(kind, service).Inc()
}

// RecordSettled 记录战斗结算，createdAt 为零值时不记录耗时
func (m *BattleMetrics) RecordSettled(aWon bool, createdAt time.Time, service string) {
	service = normalizeServiceName(service)
	result := "b_won"
	if aWon {
		result = "a_won"
	}
	m.BattlesSettled.WithLabelValues(result, service).Inc()
	if !createdAt.IsZero() {
		m.SettleDuration.WithLabelValues(service).Observe(time.Since(createdAt).Seconds())
	}
}

// RecordJob 记录任务处理结果
func (m *BattleMetrics) RecordJob(channel, outcome, service string) {
	service = normalizeServiceName(service)
	m.JobsTotal.WithLabelValues(channel, outcome, service).Inc()
}

// SetStale 设置超时战斗数
func (m *BattleMetrics) SetStale(count int64, service string) {
	service = normalizeServiceName(service)
	m.StaleBattles.WithLabelValues(service).Set(float64(count))
}
