package management

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	custommiddleware "critter-coliseum/internal/middleware"
	"critter-coliseum/internal/modules/management/handler"
	"critter-coliseum/internal/modules/management/service"
	"critter-coliseum/internal/modules/management/tasks"
	"critter-coliseum/internal/pkg/config"
	"critter-coliseum/internal/pkg/jobqueue"
	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/metrics"
	natsx "critter-coliseum/internal/pkg/nats"
	"critter-coliseum/internal/pkg/notify"
	redisClient "critter-coliseum/internal/pkg/redis"
	"critter-coliseum/internal/pkg/response"
	"critter-coliseum/internal/pkg/trace"
	"critter-coliseum/internal/pkg/validator"
	"critter-coliseum/internal/repository/schema"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/liangdas/mqant/conf"
	"github.com/liangdas/mqant/module"
	basemodule "github.com/liangdas/mqant/module/base"
	"github.com/liangdas/mqant/server"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
)

const serviceName = "management"

// Config 管理服配置
type Config struct {
	config.AppConfig
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	Nats     config.NatsConfig

	HTTPPort   string        `env:"MANAGEMENT_HTTP_PORT"`
	StaleAfter time.Duration `env:"COLISEUM_STALE_AFTER" envDefault:"10m"`
	NakDelay   time.Duration `env:"COLISEUM_NAK_DELAY" envDefault:"5s"`

	// OrphanGrace 结算任务引用的战斗在该时长内不可见时重投而非丢弃
	OrphanGrace time.Duration `env:"COLISEUM_ORPHAN_GRACE" envDefault:"2m"`
}

type ManagementModule struct {
	basemodule.BaseModule
	cfg              Config
	logger           log.Logger
	db               *sql.DB
	redis            *redisClient.Client
	natsConn         *nats.Conn
	natsHealth       *natsx.HealthChecker
	healthCancel     context.CancelFunc
	queue            *jobqueue.JetStreamQueue
	closedSub        jobqueue.Subscription
	httpServer       *echo.Echo
	serviceContainer *service.ServiceContainer
	critterHandler   *handler.CritterHandler
	battleHandler    *handler.BattleHandler
	rpcHandler       *handler.RPCHandler
	staleBattleTask  *tasks.StaleBattleTask
	respWriter       response.Writer
}

// GetType returns module type
func (m *ManagementModule) GetType() string {
	return "management"
}

// Version returns module version
func (m *ManagementModule) Version() string {
	return "1.0.0"
}

// OnAppConfigurationLoaded 当App初始化时调用
func (m *ManagementModule) OnAppConfigurationLoaded(app module.App) {
	m.BaseModule.OnAppConfigurationLoaded(app)
}

// OnInit module initialization
func (m *ManagementModule) OnInit(app module.App, settings *conf.ModuleSettings) {
	metrics.SetServiceName(serviceName)
	// TTL 必须大于心跳间隔
	m.BaseModule.OnInit(m, app, settings,
		server.RegisterInterval(15*time.Second),
		server.RegisterTTL(30*time.Second),
	)

	if err := config.Load(&m.cfg); err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	m.logger = log.GetLogger().With("module", serviceName)

	// 1. Initialize database connection
	if err := m.initDatabase(settings); err != nil {
		panic(fmt.Sprintf("Failed to initialize database: %v", err))
	}

	// 2. Initialize Redis (settled marker, optional)
	if err := m.initRedis(); err != nil {
		panic(fmt.Sprintf("Failed to initialize Redis: %v", err))
	}

	// 3. Initialize NATS + JetStream
	if err := m.initQueue(); err != nil {
		panic(fmt.Sprintf("Failed to initialize job queue: %v", err))
	}

	// 4. Initialize response writer
	m.initResponseWriter()

	// 5. Initialize HTTP server
	m.initHTTPServer()

	// 6. Initialize Services and Handlers
	m.initServicesAndHandlers()

	// 7. Setup routes
	m.setupRoutes()

	// 8. Setup RPC methods
	m.setupRPCMethods()

	// 9. Subscribe closed-battles
	if err := m.startApplier(); err != nil {
		panic(fmt.Sprintf("Failed to subscribe %s: %v", jobqueue.ChannelClosedBattles, err))
	}

	// 10. Start cron tasks
	m.startCronTasks()

	// 11. Start HTTP server in background
	go m.startHTTPServer(settings)
}

func (m *ManagementModule) initDatabase(settings *conf.ModuleSettings) error {
	dbURL := m.cfg.Database.URL
	if dbURL == "" && settings != nil {
		dbURL = config.FromModuleSettings(settings.Settings, "database_url")
	}
	if dbURL == "" {
		return fmt.Errorf("COLISEUM_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(m.cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(m.cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(m.cfg.Database.ConnMaxLifetime)

	if m.cfg.Database.AutoMigrate {
		if err := schema.Apply(context.Background(), db); err != nil {
			return err
		}
		fmt.Println("[Management Module] Schema applied (AUTO_MIGRATE)")
	}

	m.db = db
	fmt.Println("[Management Module] Database initialized successfully")

	go m.startDBPoolMonitoring(db)

	return nil
}

func (m *ManagementModule) initRedis() error {
	if m.cfg.Redis.Disabled {
		fmt.Println("[Management Module] Redis disabled, settled marker cache skipped")
		return nil
	}

	client, err := redisClient.NewClient(redisClient.Config{
		Host:     m.cfg.Redis.Host,
		Port:     m.cfg.Redis.Port,
		Password: m.cfg.Redis.Password,
		DB:       m.cfg.Redis.DB,
	}, metrics.GetServiceName())
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	m.redis = client
	fmt.Printf("[Management Module] Redis connected successfully (Host: %s:%d, DB: %d)\n",
		m.cfg.Redis.Host, m.cfg.Redis.Port, m.cfg.Redis.DB)
	return nil
}

func (m *ManagementModule) initQueue() error {
	hostname, _ := os.Hostname()
	nc, err := natsx.Connect(m.cfg.Nats.Address, "coliseum-management-"+hostname, m.logger)
	if err != nil {
		return err
	}
	m.natsConn = nc

	openAck, err := jobqueue.ParseAckMode(m.cfg.Nats.OpenAckMode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	queue, err := jobqueue.NewJetStreamQueue(ctx, nc, jobqueue.JetStreamOptions{
		Storage:  m.cfg.Nats.Storage,
		Channels: jobqueue.DefaultChannelConfigs(openAck, m.cfg.Nats.AckWait),
		Logger:   m.logger,
	})
	if err != nil {
		return err
	}
	m.queue = queue

	healthCtx, healthCancel := context.WithCancel(context.Background())
	m.healthCancel = healthCancel
	m.natsHealth = natsx.NewHealthChecker(nc, 10*time.Second, m.logger)
	go m.natsHealth.Start(healthCtx)

	fmt.Printf("[Management Module] JetStream ready (storage: %s, open-battles ack: %s)\n",
		m.cfg.Nats.Storage, openAck)
	return nil
}

func (m *ManagementModule) initResponseWriter() {
	m.respWriter = response.NewResponseHandler(log.GetLogger(), m.cfg.Environment).
		WithErrorMetrics(metrics.DefaultErrorMetrics)
	fmt.Println("[Management Module] Response writer initialized")
}

// initHTTPServer initializes HTTP server
func (m *ManagementModule) initHTTPServer() {
	m.httpServer = echo.New()
	m.httpServer.HideBanner = true
	m.httpServer.HidePort = true
	m.httpServer.Validator = validator.New()

	logger := log.GetLogger()

	// ========== 中间件配置（顺序很重要！） ==========

	// 1. TraceID 中间件 - 最先执行
	m.httpServer.Use(trace.Middleware())

	// 2. Metrics 中间件
	m.httpServer.Use(metrics.Middleware(metrics.DefaultHTTPMetrics, serviceName))

	// 3. Logging 中间件（依赖 TraceID）
	loggingConfig := custommiddleware.DefaultLoggingConfig()
	if m.cfg.IsDevelopment() {
		loggingConfig.LogRequestBody = true
	}
	m.httpServer.Use(custommiddleware.LoggingMiddlewareWithConfig(logger, loggingConfig))

	// 4. Recovery 中间件
	m.httpServer.Use(custommiddleware.RecoveryMiddleware(m.respWriter, logger))

	// 5. Error 中间件
	m.httpServer.Use(custommiddleware.ErrorMiddleware(m.respWriter, logger))

	// 6. CORS 中间件
	m.httpServer.Use(middleware.CORS())

	fmt.Println("[Management Module] HTTP middlewares configured:")
	fmt.Println("  ✓ TraceID")
	fmt.Println("  ✓ Metrics")
	fmt.Printf("  ✓ Logging (%s)\n", m.cfg.Environment)
	fmt.Println("  ✓ Recovery")
	fmt.Println("  ✓ Error")
	fmt.Println("  ✓ CORS")
}

func (m *ManagementModule) initServicesAndHandlers() {
	deps := service.Dependencies{
		DB:          m.db,
		Publisher:   m.queue,
		Notifier:    notify.NewNatsNotifier(m.natsConn),
		Metrics:     metrics.DefaultBattleMetrics,
		ServiceName: serviceName,
		NakDelay:    m.cfg.NakDelay,
		OrphanGrace: m.cfg.OrphanGrace,
		Logger:      m.logger,
	}
	if m.redis != nil {
		deps.Cache = redisClient.NewSettledMarker(m.redis, redisClient.DefaultSettledTTL)
	}
	m.serviceContainer = service.NewServiceContainer(deps)

	m.critterHandler = handler.NewCritterHandler(m.serviceContainer, m.respWriter)
	m.battleHandler = handler.NewBattleHandler(m.serviceContainer, m.respWriter)
	m.rpcHandler = handler.NewRPCHandler(m.serviceContainer)

	fmt.Println("[Management Module] Services and handlers initialized")
}

// setupRoutes sets up HTTP routes
func (m *ManagementModule) setupRoutes() {
	v1 := m.httpServer.Group("/api/v1")
	{
		critters := v1.Group("/critters")
		critters.POST("", m.critterHandler.CreateCritter)
		critters.GET("/:critter_id", m.critterHandler.GetCritter)

		battles := v1.Group("/battles")
		battles.POST("", m.battleHandler.CreateBattle)
		battles.GET("/:battle_id", m.battleHandler.GetBattle)
	}

	m.httpServer.GET("/health", m.health)
	m.httpServer.GET("/metrics", metrics.EchoHandler())

	fmt.Println("[Management Module] Routes configured successfully")
	fmt.Println("[Management Module] API routes: /api/v1/critters, /api/v1/battles")
}

type healthStatus struct {
	Service  string `json:"service"`
	Database bool   `json:"database"`
	Nats     bool   `json:"nats"`
}

func (m *ManagementModule) health(c echo.Context) error {
	status := healthStatus{
		Service:  serviceName,
		Database: m.db.PingContext(c.Request().Context()) == nil,
		Nats:     m.natsHealth == nil || m.natsHealth.IsHealthy(),
	}
	code := http.StatusOK
	if !status.Database || !status.Nats {
		code = http.StatusServiceUnavailable
	}
	return response.EchoJSON(c, m.respWriter, status, code)
}

// setupRPCMethods 注册 RPC 方法，供其他模块只读查询
func (m *ManagementModule) setupRPCMethods() {
	m.GetServer().RegisterGO("GetCritter", m.rpcHandler.GetCritter)
	m.GetServer().RegisterGO("GetBattle", m.rpcHandler.GetBattle)

	fmt.Println("[Management Module] RPC methods registered:")
	fmt.Println("  ✓ GetCritter - 获取斗兽")
	fmt.Println("  ✓ GetBattle - 获取战斗")
}

func (m *ManagementModule) startApplier() error {
	sub, err := m.queue.Subscribe(context.Background(), jobqueue.ChannelClosedBattles, m.serviceContainer.ClosedBattleApplier.Handle)
	if err != nil {
		return err
	}
	m.closedSub = sub
	fmt.Printf("[Management Module] Closed battle applier subscribed (%s)\n", jobqueue.ChannelClosedBattles)
	return nil
}

func (m *ManagementModule) startCronTasks() {
	m.staleBattleTask = tasks.NewStaleBattleTask(
		m.serviceContainer.BattleRepository(),
		metrics.DefaultBattleMetrics,
		serviceName,
		m.cfg.StaleAfter,
		m.logger,
	)
	m.staleBattleTask.Start()

	fmt.Println("[Management Module] Cron tasks started successfully:")
	fmt.Printf("  ✓ Stale Battle Task (每分钟, 阈值 %s)\n", m.cfg.StaleAfter)
}

// startHTTPServer starts HTTP server
func (m *ManagementModule) startHTTPServer(settings *conf.ModuleSettings) {
	port := m.cfg.HTTPPort
	if port == "" && settings != nil {
		port = config.FromModuleSettings(settings.Settings, "http_port")
	}
	if port == "" {
		port = "8080"
	}

	fmt.Printf("[Management Module] Starting HTTP server on port %s\n", port)

	if err := m.httpServer.Start(":" + port); err != nil && err != http.ErrServerClosed {
		fmt.Printf("[Management Module] HTTP server error: %v\n", err)
	}
}

// Run module run
func (m *ManagementModule) Run(closeSig chan bool) {
	fmt.Println("[Management Module] Started successfully")
	<-closeSig
}

// OnDestroy module destroy
func (m *ManagementModule) OnDestroy() {
	if m.closedSub != nil {
		m.closedSub.Stop()
		fmt.Println("[Management Module] Applier subscription stopped")
	}

	if m.staleBattleTask != nil {
		m.staleBattleTask.Stop()
		fmt.Println("[Management Module] Cron tasks stopped")
	}

	if m.httpServer != nil {
		if err := m.httpServer.Close(); err != nil {
			fmt.Printf("[Management Module] Failed to close HTTP server: %v\n", err)
		} else {
			fmt.Println("[Management Module] HTTP server closed")
		}
	}

	if m.db != nil {
		if err := m.db.Close(); err != nil {
			fmt.Printf("[Management Module] Failed to close database: %v\n", err)
		} else {
			fmt.Println("[Management Module] Database connection closed")
		}
	}

	if m.redis != nil {
		if err := m.redis.Close(); err != nil {
			fmt.Printf("[Management Module] Failed to close Redis: %v\n", err)
		}
	}

	if m.healthCancel != nil {
		m.healthCancel()
	}
	if m.queue != nil {
		_ = m.queue.Close()
	}
	if m.natsConn != nil {
		m.natsConn.Close()
		fmt.Println("[Management Module] NATS connection closed")
	}

	m.BaseModule.OnDestroy()
	fmt.Println("[Management Module] Destroyed")
}

// Module creates Management module instance
func Module() module.Module {
	return new(ManagementModule)
}

// startDBPoolMonitoring 每 30 秒上报一次连接池统计
func (m *ManagementModule) startDBPoolMonitoring(db *sql.DB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		metrics.DefaultResourceMetrics.RecordDBStats(metrics.GetServiceName(), "postgres", db.Stats())
	}
}
