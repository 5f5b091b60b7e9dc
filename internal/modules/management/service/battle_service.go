package service

import (
	"context"
	"database/sql"
	"strings"

	"critter-coliseum/internal/model/battlemodel"
	"critter-coliseum/internal/pkg/ctxkey"
	"critter-coliseum/internal/pkg/jobqueue"
	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/metrics"
	"critter-coliseum/internal/pkg/trace"
	"critter-coliseum/internal/pkg/xerrors"
	"critter-coliseum/internal/repository/interfaces"
)

// JobPublisher 任务发布端
type JobPublisher interface {
	Publish(ctx context.Context, ch jobqueue.Channel, v any) error
}

// BattleService 战斗编排服务
type BattleService struct {
	db          *sql.DB
	critterRepo interfaces.CritterRepository
	battleRepo  interfaces.BattleRepository
	publisher   JobPublisher
	metrics     *metrics.BattleMetrics
	serviceName string
	logger      log.Logger
}

// NewBattleService 创建战斗编排服务
func NewBattleService(
	db *sql.DB,
	critterRepo interfaces.CritterRepository,
	battleRepo interfaces.BattleRepository,
	publisher JobPublisher,
	battleMetrics *metrics.BattleMetrics,
	serviceName string,
	logger log.Logger,
) *BattleService {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &BattleService{
		db:          db,
		critterRepo: critterRepo,
		battleRepo:  battleRepo,
		publisher:   publisher,
		metrics:     battleMetrics,
		serviceName: serviceName,
		logger:      logger.With("component", "battle_service"),
	}
}

// CreateBattle 预约两只斗兽、写入战斗并投递开放任务，三步在同一事务内完成。
// 发布成功但提交失败时，任务引用的战斗不存在，由结算端按孤儿任务丢弃
func (s *BattleService) CreateBattle(ctx context.Context, req *battlemodel.CreateBattleRequest) (*battlemodel.Battle, error) {
	if req == nil {
		return nil, xerrors.NewValidationError("request", "请求不能为空")
	}
	critterAID := strings.TrimSpace(req.CritterAID)
	critterBID := strings.TrimSpace(req.CritterBID)
	if critterAID == "" {
		return nil, xerrors.NewValidationError("critter_a_id", "斗兽A ID不能为空")
	}
	if critterBID == "" {
		return nil, xerrors.NewValidationError("critter_b_id", "斗兽B ID不能为空")
	}
	if critterAID == critterBID {
		return nil, xerrors.NewInvalidCritterReferenceError("斗兽不能与自己战斗", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.NewDatabaseError("begin", "battles", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.logger.Error("回滚事务失败", err)
		}
	}()

	pair, err := s.critterRepo.Reserve(ctx, tx, critterAID, critterBID)
	if err != nil {
		return nil, err
	}

	battle, err := s.battleRepo.Create(ctx, tx, critterAID, critterBID, battlemodel.KindDefault)
	if err != nil {
		return nil, err
	}
	ctx = ctxkey.WithValue(ctx, ctxkey.BattleID, battle.ID)

	job := battlemodel.OpenBattleJob{
		Battle:   *battle,
		Critters: pair[:],
		TraceID:  trace.GetTraceID(ctx),
	}
	if err := s.publisher.Publish(ctx, jobqueue.ChannelOpenBattles, job); err != nil {
		return nil, xerrors.NewMessageQueueError(jobqueue.ChannelOpenBattles.String(), err).
			WithService(s.serviceName, "create_battle")
	}

	if err := tx.Commit(); err != nil {
		// 任务已发出，结算端会把它当作孤儿任务处理
		s.logger.WarnContext(ctx, "开放任务已发布但事务提交失败", log.Any("error", err))
		return nil, xerrors.NewDatabaseError("commit", "battles", err)
	}

	if s.metrics != nil {
		s.metrics.RecordCreated(battle.Kind, s.serviceName)
	}
	log.LogBusinessEvent(ctx, s.logger, "battle_created", "battle", battle.ID, map[string]interface{}{
		"critter_a_id": battle.CritterAID,
		"critter_b_id": battle.CritterBID,
		"kind":         battle.Kind,
	})
	return battle, nil
}

// GetBattle 获取战斗
func (s *BattleService) GetBattle(ctx context.Context, battleID string) (*battlemodel.Battle, error) {
	battleID = strings.TrimSpace(battleID)
	if battleID == "" {
		return nil, xerrors.NewValidationError("battle_id", "战斗ID不能为空")
	}
	return s.battleRepo.GetByID(ctx, nil, battleID)
}
