package nats

import (
	"context"
	"sync"
	"time"

	"critter-coliseum/internal/pkg/log"
)

// ConnState NATS 连接状态（*nats.Conn 满足该接口）
type ConnState interface {
	IsConnected() bool
	IsClosed() bool
}

// HealthChecker NATS 连接健康检查器，供 /health 端点使用
type HealthChecker struct {
	conn      ConnState
	logger    log.Logger
	isHealthy bool
	mutex     sync.RWMutex
	stopOnce  sync.Once
	stopCh    chan struct{}
	interval  time.Duration
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(conn ConnState, checkInterval time.Duration, logger log.Logger) *HealthChecker {
	if checkInterval <= 0 {
		checkInterval = 10 * time.Second
	}
	if logger == nil {
		logger = log.GetLogger()
	}

	return &HealthChecker{
		conn:      conn,
		logger:    logger.With("component", "nats_health"),
		isHealthy: true,
		stopCh:    make(chan struct{}),
		interval:  checkInterval,
	}
}

// Start 启动健康检查（阻塞，直到 ctx 取消或 Stop）
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hc.stopCh:
			return
		case <-ticker.C:
			hc.checkHealth()
		}
	}
}

// Stop 停止健康检查，可重复调用
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopCh) })
}

// IsHealthy 检查连接是否健康
func (hc *HealthChecker) IsHealthy() bool {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()
	return hc.isHealthy
}

func (hc *HealthChecker) checkHealth() {
	healthy := hc.conn.IsConnected() && !hc.conn.IsClosed()

	hc.mutex.Lock()
	changed := hc.isHealthy != healthy
	hc.isHealthy = healthy
	hc.mutex.Unlock()

	if changed {
		if healthy {
			hc.logger.Info("NATS 连接已恢复")
		} else {
			hc.logger.Warn("NATS 连接不可用")
		}
	}
}

// WaitForHealthy 等待连接恢复健康
func (hc *HealthChecker) WaitForHealthy(ctx context.Context, maxWait time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if hc.IsHealthy() {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
