// Package tasks 管理服定时任务
package tasks

import (
	"context"
	"time"

	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/metrics"
	"critter-coliseum/internal/repository/interfaces"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultStaleAfter 进行中超过该时长的战斗视为滞留
	DefaultStaleAfter = 10 * time.Minute
	staleSampleLimit  = 20
)

// StaleBattleTask 定期统计滞留的进行中战斗。
// open-battles 为 AckNone 时 coliseum 崩溃会丢失任务，对应的斗兽会一直处于占用状态，这里只告警不修复
type StaleBattleTask struct {
	battleRepo  interfaces.BattleRepository
	metrics     *metrics.BattleMetrics
	serviceName string
	staleAfter  time.Duration
	logger      log.Logger
	cron        *cron.Cron
	now         func() time.Time
}

// NewStaleBattleTask 创建滞留战斗检查任务
func NewStaleBattleTask(battleRepo interfaces.BattleRepository, battleMetrics *metrics.BattleMetrics, serviceName string, staleAfter time.Duration, logger log.Logger) *StaleBattleTask {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &StaleBattleTask{
		battleRepo:  battleRepo,
		metrics:     battleMetrics,
		serviceName: serviceName,
		staleAfter:  staleAfter,
		logger:      logger.With("component", "stale_battle_task"),
		now:         time.Now,
	}
}

// Start 启动定时任务，每分钟执行一次
func (t *StaleBattleTask) Start() {
	t.cron = cron.New(cron.WithSeconds())

	// Cron 表达式: 秒 分 时 日 月 周
	_, err := t.cron.AddFunc("0 * * * * *", func() {
		t.Check(context.Background())
	})
	if err != nil {
		t.logger.Error("【定时任务】添加滞留战斗检查失败", err)
		return
	}

	t.cron.Start()
	t.logger.Info("【定时任务】已启动 - 每分钟检查滞留战斗", "stale_after", t.staleAfter.String())
}

// Check 执行一次检查，返回滞留数量
func (t *StaleBattleTask) Check(ctx context.Context) int64 {
	cutoff := t.now().Add(-t.staleAfter)

	count, err := t.battleRepo.CountStaleInProgress(ctx, cutoff)
	if err != nil {
		t.logger.Error("【定时任务】统计滞留战斗失败", err)
		return 0
	}
	if t.metrics != nil {
		t.metrics.SetStale(count, t.serviceName)
	}
	if count == 0 {
		return 0
	}

	battles, err := t.battleRepo.ListStaleInProgress(ctx, cutoff, staleSampleLimit)
	if err != nil {
		t.logger.Error("【定时任务】查询滞留战斗失败", err)
		return count
	}
	ids := make([]string, 0, len(battles))
	for _, b := range battles {
		ids = append(ids, b.ID)
	}
	t.logger.Warn("【定时任务】发现滞留的进行中战斗",
		log.Int64("count", count),
		log.Strings("sample_battle_ids", ids),
		log.String("cutoff", cutoff.Format(time.RFC3339)),
	)
	return count
}

// Stop 停止定时任务（优雅关闭）
func (t *StaleBattleTask) Stop() {
	if t.cron != nil {
		ctx := t.cron.Stop()
		<-ctx.Done()
		t.logger.Info("【定时任务】滞留战斗检查已停止")
	}
}
