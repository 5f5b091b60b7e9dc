package interfaces

import (
	"context"
	"time"

	"critter-coliseum/internal/model/battlemodel"

	"github.com/aarondl/sqlboiler/v4/boil"
)

// BattleRepository 战斗仓储接口
type BattleRepository interface {
	// Create 插入一场进行中的战斗
	Create(ctx context.Context, execer boil.ContextExecutor, critterAID, critterBID, kind string) (*battlemodel.Battle, error)

	// GetByID 根据ID获取战斗，execer 为 nil 时使用连接池
	GetByID(ctx context.Context, execer boil.ContextExecutor, battleID string) (*battlemodel.Battle, error)

	// SaveResult 仅当战斗仍在进行中时写入结果，返回数据库中的战斗行（含参战双方）；
	// 未写入时返回 nil, nil
	SaveResult(ctx context.Context, execer boil.ContextExecutor, battleID string, result battlemodel.BattleResult) (*battlemodel.Battle, error)

	// ListStaleInProgress 列出创建时间早于 olderThan 仍未结算的战斗
	ListStaleInProgress(ctx context.Context, olderThan time.Time, limit int) ([]*battlemodel.Battle, error)

	// CountStaleInProgress 统计滞留的战斗数
	CountStaleInProgress(ctx context.Context, olderThan time.Time) (int64, error)
}
