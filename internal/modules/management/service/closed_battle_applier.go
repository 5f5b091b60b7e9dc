package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"critter-coliseum/internal/model/battlemodel"
	"critter-coliseum/internal/pkg/ctxkey"
	"critter-coliseum/internal/pkg/jobqueue"
	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/metrics"
	"critter-coliseum/internal/pkg/notify"
	"critter-coliseum/internal/pkg/trace"
	"critter-coliseum/internal/pkg/xerrors"
	"critter-coliseum/internal/repository/interfaces"
)

const (
	// DefaultNakDelay 结算失败后的重投延迟
	DefaultNakDelay = 5 * time.Second
	// DefaultOrphanGrace 战斗创建后在该时长内查不到时视为创建事务尚未提交
	DefaultOrphanGrace = 2 * time.Minute
)

// errBattleNotVisible 战斗行尚不可见，等待创建事务提交后重投
var errBattleNotVisible = errors.New("battle not visible yet")

// SettledCache 已结算战斗的标记缓存，仅作快速判重，以数据库为准
type SettledCache interface {
	IsSettled(ctx context.Context, battleID string) (bool, error)
	MarkSettled(ctx context.Context, battleID string) error
}

// ClosedBattleApplier 消费 closed-battles，把战斗结果写回斗兽
type ClosedBattleApplier struct {
	db          *sql.DB
	critterRepo interfaces.CritterRepository
	battleRepo  interfaces.BattleRepository
	cache       SettledCache
	notifier    notify.Notifier
	metrics     *metrics.BattleMetrics
	serviceName string
	nakDelay    time.Duration
	orphanGrace time.Duration
	logger      log.Logger
}

// ApplierOption 结算器可选项
type ApplierOption func(*ClosedBattleApplier)

// WithSettledCache 设置结算标记缓存
func WithSettledCache(cache SettledCache) ApplierOption {
	return func(a *ClosedBattleApplier) { a.cache = cache }
}

// WithNotifier 设置结算通知
func WithNotifier(n notify.Notifier) ApplierOption {
	return func(a *ClosedBattleApplier) {
		if n != nil {
			a.notifier = n
		}
	}
}

// WithBattleMetrics 设置战斗指标
func WithBattleMetrics(m *metrics.BattleMetrics, serviceName string) ApplierOption {
	return func(a *ClosedBattleApplier) {
		a.metrics = m
		a.serviceName = serviceName
	}
}

// WithNakDelay 设置失败重投延迟
func WithNakDelay(d time.Duration) ApplierOption {
	return func(a *ClosedBattleApplier) { a.nakDelay = d }
}

// WithOrphanGrace 设置孤儿判定的宽限期
func WithOrphanGrace(d time.Duration) ApplierOption {
	return func(a *ClosedBattleApplier) {
		if d >= 0 {
			a.orphanGrace = d
		}
	}
}

// NewClosedBattleApplier 创建结算器
func NewClosedBattleApplier(
	db *sql.DB,
	critterRepo interfaces.CritterRepository,
	battleRepo interfaces.BattleRepository,
	logger log.Logger,
	opts ...ApplierOption,
) *ClosedBattleApplier {
	if logger == nil {
		logger = log.GetLogger()
	}
	a := &ClosedBattleApplier{
		db:          db,
		critterRepo: critterRepo,
		battleRepo:  battleRepo,
		notifier:    notify.Nop{},
		nakDelay:    DefaultNakDelay,
		orphanGrace: DefaultOrphanGrace,
		logger:      logger.With("component", "closed_battle_applier"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle 处理一次 closed-battles 投递。
// 仅在事务提交、或确认为重复/孤儿任务后 Ack，其余情况 Nak 等待重投。
// 战斗在宽限期内查不到时同样 Nak：创建方先发布任务后提交事务
func (a *ClosedBattleApplier) Handle(ctx context.Context, d jobqueue.Delivery) {
	ctx = ctxkey.WithValue(ctx, ctxkey.Channel, d.Channel().String())

	job, err := jobqueue.Decode[battlemodel.ClosedBattleJob](d)
	if err == nil {
		err = job.Validate()
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "结算任务格式错误",
			log.Any("error", err),
			log.Uint64("num_delivered", d.NumDelivered()),
		)
		a.recordError(xerrors.NewWithError(xerrors.CodeMalformedBattleJob, "结算任务格式错误", err))
		a.nak(ctx, d)
		return
	}

	ctx, _ = trace.Ensure(ctx, job.TraceID)
	ctx = ctxkey.WithValue(ctx, ctxkey.BattleID, job.Battle.ID)

	battle, outcome, err := a.apply(ctx, job)
	if errors.Is(err, errBattleNotVisible) {
		a.logger.InfoContext(ctx, "战斗尚不可见，等待重投",
			log.Uint64("num_delivered", d.NumDelivered()),
		)
		a.nak(ctx, d)
		return
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "结算失败，等待重投",
			log.Any("error", err),
			log.Uint64("num_delivered", d.NumDelivered()),
		)
		a.recordError(xerrors.Wrap(err, xerrors.CodeInternalError, "结算失败"))
		a.nak(ctx, d)
		return
	}

	if err := d.Ack(ctx); err != nil {
		// 重投时会被识别为重复任务
		a.logger.WarnContext(ctx, "Ack 失败", log.Any("error", err))
	}
	a.recordJob(outcome)

	switch outcome {
	case metrics.OutcomeDuplicate:
		a.logger.InfoContext(ctx, "重复的结算任务，已忽略")
	case metrics.OutcomeOrphan:
		a.logger.WarnContext(ctx, "结算任务引用的战斗不存在，已丢弃")
	default:
		a.afterCommit(ctx, *battle, job.Result)
	}
}

// apply 在单个事务内写入结果并结算双方，返回写入后的战斗行与 metrics.Outcome* 之一。
// 参战双方以数据库中的战斗行为准
func (a *ClosedBattleApplier) apply(ctx context.Context, job battlemodel.ClosedBattleJob) (*battlemodel.Battle, string, error) {
	battleID := job.Battle.ID

	if a.cache != nil {
		settled, err := a.cache.IsSettled(ctx, battleID)
		if err != nil {
			a.logger.WarnContext(ctx, "查询结算标记失败", log.Any("error", err))
		} else if settled {
			return nil, metrics.OutcomeDuplicate, nil
		}
	}

	aDelta, bDelta := job.Result.ExperienceDeltas()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", xerrors.NewDatabaseError("begin", "battles", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			a.logger.Error("回滚事务失败", err)
		}
	}()

	battle, err := a.battleRepo.SaveResult(ctx, tx, battleID, job.Result)
	if err != nil {
		return nil, "", err
	}
	if battle == nil {
		_, err := a.battleRepo.GetByID(ctx, tx, battleID)
		if xerrors.HasCode(err, xerrors.CodeBattleNotFound) {
			if a.withinGrace(job.Battle) {
				return nil, "", errBattleNotVisible
			}
			return nil, metrics.OutcomeOrphan, nil
		}
		if err != nil {
			return nil, "", err
		}
		return nil, metrics.OutcomeDuplicate, nil
	}

	if battle.CritterAID != job.Battle.CritterAID || battle.CritterBID != job.Battle.CritterBID {
		a.logger.WarnContext(ctx, "任务中的参战方与数据库不一致，以数据库为准",
			log.String("job_critter_a", job.Battle.CritterAID),
			log.String("job_critter_b", job.Battle.CritterBID),
		)
	}

	if err := a.critterRepo.Settle(ctx, tx, battle.CritterAID, job.Result.AWon, aDelta); err != nil {
		return nil, "", err
	}
	if err := a.critterRepo.Settle(ctx, tx, battle.CritterBID, !job.Result.AWon, bDelta); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", xerrors.NewDatabaseError("commit", "battles", err)
	}
	return battle, metrics.OutcomeAck, nil
}

// withinGrace 创建时间未知时按已过宽限期处理
func (a *ClosedBattleApplier) withinGrace(battle battlemodel.Battle) bool {
	if battle.CreatedAt.IsZero() {
		return false
	}
	return time.Since(battle.CreatedAt) < a.orphanGrace
}

// afterCommit 提交后的附带动作，失败只记录日志
func (a *ClosedBattleApplier) afterCommit(ctx context.Context, battle battlemodel.Battle, result battlemodel.BattleResult) {
	aDelta, bDelta := result.ExperienceDeltas()

	if a.cache != nil {
		if err := a.cache.MarkSettled(ctx, battle.ID); err != nil {
			a.logger.WarnContext(ctx, "写入结算标记失败", log.Any("error", err))
		}
	}

	event := battlemodel.BattleSettledEvent{
		BattleID:   battle.ID,
		CritterAID: battle.CritterAID,
		CritterBID: battle.CritterBID,
		AWon:       result.AWon,
		Experience: map[string]int64{
			battle.CritterAID: aDelta,
			battle.CritterBID: bDelta,
		},
		SettledAt: time.Now().UTC(),
	}
	if err := a.notifier.BattleSettled(ctx, event); err != nil {
		a.logger.WarnContext(ctx, "发布结算通知失败", log.Any("error", err))
	}

	if a.metrics != nil {
		a.metrics.RecordSettled(result.AWon, battle.CreatedAt, a.serviceName)
	}
	log.LogBusinessEvent(ctx, a.logger, "battle_settled", "battle", battle.ID, map[string]interface{}{
		"winner_id":  battle.WinnerID(result),
		"experience": event.Experience,
	})
}

func (a *ClosedBattleApplier) nak(ctx context.Context, d jobqueue.Delivery) {
	if err := d.Nak(ctx, a.nakDelay); err != nil {
		a.logger.WarnContext(ctx, "Nak 失败", log.Any("error", err))
	}
	a.recordJob(metrics.OutcomeNak)
}

func (a *ClosedBattleApplier) recordJob(outcome string) {
	if a.metrics != nil {
		a.metrics.RecordJob(jobqueue.ChannelClosedBattles.String(), outcome, a.serviceName)
	}
}

func (a *ClosedBattleApplier) recordError(appErr *xerrors.AppError) {
	if metrics.DefaultErrorMetrics == nil || appErr == nil {
		return
	}
	metrics.DefaultErrorMetrics.RecordError(appErr, jobqueue.ChannelClosedBattles.String(), a.serviceName)
}
