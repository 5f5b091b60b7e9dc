package impl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"critter-coliseum/internal/model/battlemodel"
	"critter-coliseum/internal/pkg/xerrors"
	"critter-coliseum/internal/repository/entity"
	"critter-coliseum/internal/repository/interfaces"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/aarondl/sqlboiler/v4/queries"
	"github.com/friendsofgo/errors"
)

const battleTable = "battles"

// saveResultSQL in_progress 条件保证结果只写入一次
const saveResultSQL = `
UPDATE battles
SET in_progress = FALSE,
    completed_at = NOW(),
    a_won = $2,
    a_score = $3,
    b_score = $4
WHERE id = $1 AND in_progress = TRUE
RETURNING ` + entity.BattleColumns

type battleRepositoryImpl struct {
	db *sql.DB
}

// NewBattleRepository 创建战斗仓储实例
func NewBattleRepository(db *sql.DB) interfaces.BattleRepository {
	return &battleRepositoryImpl{db: db}
}

func (r *battleRepositoryImpl) exec(execer boil.ContextExecutor) boil.ContextExecutor {
	if execer == nil {
		return r.db
	}
	return execer
}

// Create 插入战斗
func (r *battleRepositoryImpl) Create(ctx context.Context, execer boil.ContextExecutor, critterAID, critterBID, kind string) (*battlemodel.Battle, error) {
	critterAID = strings.TrimSpace(critterAID)
	critterBID = strings.TrimSpace(critterBID)
	if critterAID == critterBID {
		return nil, xerrors.NewValidationError("critter_b_id", "斗兽不能与自己战斗")
	}
	if kind == "" {
		kind = battlemodel.KindDefault
	}

	var row entity.Battle
	err := queries.Raw(
		`INSERT INTO battles (id, kind, critter_a_id, critter_b_id) VALUES ($1, $2, $3, $4) RETURNING `+entity.BattleColumns,
		battlemodel.NewBattleID(), kind, critterAID, critterBID,
	).Bind(ctx, r.exec(execer), &row)
	if err != nil {
		return nil, xerrors.NewDatabaseError("insert", battleTable, errors.Wrap(err, "创建战斗失败"))
	}

	battle := row.ToModel()
	return &battle, nil
}

// GetByID 根据ID获取战斗
func (r *battleRepositoryImpl) GetByID(ctx context.Context, execer boil.ContextExecutor, battleID string) (*battlemodel.Battle, error) {
	battleID = strings.TrimSpace(battleID)

	var row entity.Battle
	err := queries.Raw(
		`SELECT `+entity.BattleColumns+` FROM battles WHERE id = $1`,
		battleID,
	).Bind(ctx, r.exec(execer), &row)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, xerrors.NewBattleNotFoundError(battleID)
	}
	if err != nil {
		return nil, xerrors.NewDatabaseError("select", battleTable, errors.Wrap(err, "查询战斗失败"))
	}

	battle := row.ToModel()
	return &battle, nil
}

// SaveResult 写入战斗结果，返回写入后的战斗行；战斗不存在或已结算时返回 nil
func (r *battleRepositoryImpl) SaveResult(ctx context.Context, execer boil.ContextExecutor, battleID string, result battlemodel.BattleResult) (*battlemodel.Battle, error) {
	var row entity.Battle
	err := queries.Raw(saveResultSQL, battleID, result.AWon, result.AScore, result.BScore).
		Bind(ctx, r.exec(execer), &row)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.NewDatabaseError("save_result", battleTable, errors.Wrap(err, "写入战斗结果失败"))
	}

	battle := row.ToModel()
	if battle.CritterAID == "" || battle.CritterBID == "" {
		return nil, xerrors.NewUnexpectedStoreStateError(
			fmt.Sprintf("battle %s has no participants", battleID))
	}
	return &battle, nil
}

// ListStaleInProgress 列出滞留的战斗
func (r *battleRepositoryImpl) ListStaleInProgress(ctx context.Context, olderThan time.Time, limit int) ([]*battlemodel.Battle, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []*entity.Battle
	err := queries.Raw(
		`SELECT `+entity.BattleColumns+` FROM battles WHERE in_progress = TRUE AND created_at < $1 ORDER BY created_at ASC LIMIT $2`,
		olderThan, limit,
	).Bind(ctx, r.db, &rows)
	if err != nil {
		return nil, xerrors.NewDatabaseError("select", battleTable, errors.Wrap(err, "查询滞留战斗失败"))
	}

	battles := make([]*battlemodel.Battle, 0, len(rows))
	for _, row := range rows {
		battle := row.ToModel()
		battles = append(battles, &battle)
	}
	return battles, nil
}

// CountStaleInProgress 统计滞留的战斗数
func (r *battleRepositoryImpl) CountStaleInProgress(ctx context.Context, olderThan time.Time) (int64, error) {
	var count int64
	err := queries.Raw(
		`SELECT COUNT(*) FROM battles WHERE in_progress = TRUE AND created_at < $1`,
		olderThan,
	).QueryRowContext(ctx, r.db).Scan(&count)
	if err != nil {
		return 0, xerrors.NewDatabaseError("count", battleTable, errors.Wrap(err, "统计滞留战斗失败"))
	}
	return count, nil
}
