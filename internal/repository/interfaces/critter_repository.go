package interfaces

import (
	"context"

	"critter-coliseum/internal/model/battlemodel"

	"github.com/aarondl/sqlboiler/v4/boil"
)

// CritterRepository 斗兽仓储接口。带 execer 参数的方法可在事务内调用
type CritterRepository interface {
	// Create 创建斗兽，随机生成基础属性与附加属性
	Create(ctx context.Context, extraAttributes []string) (*battlemodel.Critter, error)

	// GetByID 根据ID获取斗兽
	GetByID(ctx context.Context, critterID string) (*battlemodel.Critter, error)

	// Reserve 原子地将两只空闲斗兽标记为占用，返回 [A, B] 快照。
	// 失败时调用方必须回滚事务
	Reserve(ctx context.Context, execer boil.ContextExecutor, critterAID, critterBID string) ([2]battlemodel.Critter, error)

	// Settle 释放占用并累加胜负与经验
	Settle(ctx context.Context, execer boil.ContextExecutor, critterID string, won bool, experienceDelta int64) error
}
