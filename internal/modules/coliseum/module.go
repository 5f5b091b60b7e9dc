package coliseum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	custommiddleware "critter-coliseum/internal/middleware"
	"critter-coliseum/internal/modules/coliseum/calculator"
	"critter-coliseum/internal/modules/coliseum/worker"
	"critter-coliseum/internal/pkg/config"
	"critter-coliseum/internal/pkg/jobqueue"
	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/metrics"
	natsx "critter-coliseum/internal/pkg/nats"
	"critter-coliseum/internal/pkg/response"
	"critter-coliseum/internal/pkg/trace"

	"github.com/labstack/echo/v4"
	"github.com/liangdas/mqant/conf"
	"github.com/liangdas/mqant/module"
	basemodule "github.com/liangdas/mqant/module/base"
	"github.com/liangdas/mqant/server"
	"github.com/nats-io/nats.go"
)

const serviceName = "coliseum"

// Config 计算服配置
type Config struct {
	config.AppConfig
	Nats config.NatsConfig

	HTTPPort     string        `env:"COLISEUM_HTTP_PORT"`
	MaxInFlight  int           `env:"COLISEUM_MAX_IN_FLIGHT" envDefault:"16"`
	ComputeDelay time.Duration `env:"COLISEUM_COMPUTE_DELAY" envDefault:"5s"`
	NakDelay     time.Duration `env:"COLISEUM_NAK_DELAY" envDefault:"5s"`
}

type ColiseumModule struct {
	basemodule.BaseModule
	cfg          Config
	logger       log.Logger
	natsConn     *nats.Conn
	natsHealth   *natsx.HealthChecker
	healthCancel context.CancelFunc
	queue        *jobqueue.JetStreamQueue
	openSub      jobqueue.Subscription
	registry     *calculator.Registry
	worker       *worker.OpenBattleWorker
	httpServer   *echo.Echo
	respWriter   response.Writer
}

// GetType returns module type
func (m *ColiseumModule) GetType() string {
	return "coliseum"
}

// Version returns module version
func (m *ColiseumModule) Version() string {
	return "1.0.0"
}

// OnAppConfigurationLoaded 当App初始化时调用
func (m *ColiseumModule) OnAppConfigurationLoaded(app module.App) {
	m.BaseModule.OnAppConfigurationLoaded(app)
}

// OnInit module initialization
func (m *ColiseumModule) OnInit(app module.App, settings *conf.ModuleSettings) {
	metrics.SetServiceName(serviceName)
	m.BaseModule.OnInit(m, app, settings,
		server.RegisterInterval(15*time.Second),
		server.RegisterTTL(30*time.Second),
	)

	if err := config.Load(&m.cfg); err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	m.logger = log.GetLogger().With("module", serviceName)

	// 1. Initialize NATS + JetStream
	if err := m.initQueue(); err != nil {
		panic(fmt.Sprintf("Failed to initialize job queue: %v", err))
	}

	// 2. Initialize calculators and worker
	m.initWorker()

	// 3. Initialize HTTP server (health + metrics)
	m.initHTTPServer()

	// 4. Setup RPC methods
	m.setupRPCMethods()

	// 5. Subscribe open-battles
	if err := m.startWorker(); err != nil {
		panic(fmt.Sprintf("Failed to subscribe %s: %v", jobqueue.ChannelOpenBattles, err))
	}

	// 6. Start HTTP server in background
	go m.startHTTPServer(settings)
}

func (m *ColiseumModule) initQueue() error {
	host, _ := os.Hostname()
	nc, err := natsx.Connect(m.cfg.Nats.Address, "coliseum-worker-"+host, m.logger)
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

	fmt.Printf("[Coliseum Module] JetStream ready (storage: %s, open-battles ack: %s)\n",
		m.cfg.Nats.Storage, openAck)
	return nil
}

func (m *ColiseumModule) initWorker() {
	m.registry = calculator.NewDefaultRegistry(calculator.WithDelay(m.cfg.ComputeDelay))
	m.worker = worker.NewOpenBattleWorker(m.registry, m.queue, m.logger,
		worker.WithMaxInFlight(m.cfg.MaxInFlight),
		worker.WithNakDelay(m.cfg.NakDelay),
		worker.WithBattleMetrics(metrics.DefaultBattleMetrics, serviceName),
	)

	fmt.Println("[Coliseum Module] Worker initialized:")
	fmt.Printf("  ✓ Calculators: %v\n", m.registry.Kinds())
	fmt.Printf("  ✓ Max in flight: %d\n", m.cfg.MaxInFlight)
	fmt.Printf("  ✓ Compute delay: %s\n", m.cfg.ComputeDelay)
}

func (m *ColiseumModule) initHTTPServer() {
	logger := log.GetLogger()
	m.respWriter = response.NewResponseHandler(logger, m.cfg.Environment)

	m.httpServer = echo.New()
	m.httpServer.HideBanner = true
	m.httpServer.HidePort = true

	m.httpServer.Use(trace.Middleware())
	m.httpServer.Use(custommiddleware.LoggingMiddleware(logger))
	m.httpServer.Use(custommiddleware.RecoveryMiddleware(m.respWriter, logger))
	m.httpServer.Use(custommiddleware.ErrorMiddleware(m.respWriter, logger))

	m.httpServer.GET("/health", m.health)
	m.httpServer.GET("/metrics", metrics.EchoHandler())

	fmt.Println("[Coliseum Module] HTTP server configured (/health, /metrics)")
}

type healthStatus struct {
	Service string `json:"service"`
	Nats    bool   `json:"nats"`
}

func (m *ColiseumModule) health(c echo.Context) error {
	status := healthStatus{
		Service: serviceName,
		Nats:    m.natsHealth == nil || m.natsHealth.IsHealthy(),
	}
	code := http.StatusOK
	if !status.Nats {
		code = http.StatusServiceUnavailable
	}
	return response.EchoJSON(c, m.respWriter, status, code)
}

// setupRPCMethods 注册 RPC 方法
func (m *ColiseumModule) setupRPCMethods() {
	m.GetServer().RegisterGO("ListBattleKinds", m.listBattleKinds)

	fmt.Println("[Coliseum Module] RPC methods registered:")
	fmt.Println("  ✓ ListBattleKinds - 已注册的战斗类型")
}

func (m *ColiseumModule) listBattleKinds(data []byte) ([]byte, error) {
	return json.Marshal(map[string][]string{"kinds": m.registry.Kinds()})
}

func (m *ColiseumModule) startWorker() error {
	sub, err := m.queue.Subscribe(context.Background(), jobqueue.ChannelOpenBattles, m.worker.Handle)
	if err != nil {
		return err
	}
	m.openSub = sub
	fmt.Printf("[Coliseum Module] Open battle worker subscribed (%s)\n", jobqueue.ChannelOpenBattles)
	return nil
}

func (m *ColiseumModule) startHTTPServer(settings *conf.ModuleSettings) {
	port := m.cfg.HTTPPort
	if port == "" && settings != nil {
		port = config.FromModuleSettings(settings.Settings, "http_port")
	}
	if port == "" {
		port = "8081"
	}

	fmt.Printf("[Coliseum Module] Starting HTTP server on port %s\n", port)

	if err := m.httpServer.Start(":" + port); err != nil && err != http.ErrServerClosed {
		fmt.Printf("[Coliseum Module] HTTP server error: %v\n", err)
	}
}

// Run module run
func (m *ColiseumModule) Run(closeSig chan bool) {
	fmt.Println("[Coliseum Module] Started successfully")
	<-closeSig
}

// OnDestroy module destroy
func (m *ColiseumModule) OnDestroy() {
	// 先停止订阅，进行中的计算随订阅 ctx 取消而结束
	if m.openSub != nil {
		m.openSub.Stop()
	}
	if m.worker != nil {
		m.worker.Wait()
		fmt.Println("[Coliseum Module] Worker stopped")
	}

	if m.httpServer != nil {
		if err := m.httpServer.Close(); err != nil {
			fmt.Printf("[Coliseum Module] Failed to close HTTP server: %v\n", err)
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
		fmt.Println("[Coliseum Module] NATS connection closed")
	}

	m.BaseModule.OnDestroy()
	fmt.Println("[Coliseum Module] Destroyed")
}

// Module creates Coliseum module instance
func Module() module.Module {
	return new(ColiseumModule)
}
