package service

import (
	"database/sql"
	"time"

	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/metrics"
	"critter-coliseum/internal/pkg/notify"
	"critter-coliseum/internal/repository/impl"
	"critter-coliseum/internal/repository/interfaces"
)

// Dependencies 构建服务容器所需的外部依赖，均在模块 OnInit 中创建
type Dependencies struct {
	DB          *sql.DB
	Publisher   JobPublisher
	Cache       SettledCache // 可选
	Notifier    notify.Notifier
	Metrics     *metrics.BattleMetrics
	ServiceName string
	NakDelay    time.Duration
	OrphanGrace time.Duration
	Logger      log.Logger
}

// ServiceContainer 管理服服务容器，统一创建 Repository 与 Service
type ServiceContainer struct {
	critterRepo interfaces.CritterRepository
	battleRepo  interfaces.BattleRepository

	CritterService      *CritterService
	BattleService       *BattleService
	ClosedBattleApplier *ClosedBattleApplier
}

// NewServiceContainer 创建服务容器
func NewServiceContainer(deps Dependencies) *ServiceContainer {
	c := &ServiceContainer{}

	c.critterRepo = impl.NewCritterRepository(deps.DB)
	c.battleRepo = impl.NewBattleRepository(deps.DB)

	c.CritterService = NewCritterService(c.critterRepo, deps.Logger)
	c.BattleService = NewBattleService(
		deps.DB,
		c.critterRepo,
		c.battleRepo,
		deps.Publisher,
		deps.Metrics,
		deps.ServiceName,
		deps.Logger,
	)

	opts := []ApplierOption{
		WithNotifier(deps.Notifier),
		WithBattleMetrics(deps.Metrics, deps.ServiceName),
	}
	if deps.Cache != nil {
		opts = append(opts, WithSettledCache(deps.Cache))
	}
	if deps.NakDelay > 0 {
		opts = append(opts, WithNakDelay(deps.NakDelay))
	}
	if deps.OrphanGrace > 0 {
		opts = append(opts, WithOrphanGrace(deps.OrphanGrace))
	}
	c.ClosedBattleApplier = NewClosedBattleApplier(deps.DB, c.critterRepo, c.battleRepo, deps.Logger, opts...)

	return c
}

// BattleRepository 暴露给定时任务使用
func (c *ServiceContainer) BattleRepository() interfaces.BattleRepository {
	return c.battleRepo
}
