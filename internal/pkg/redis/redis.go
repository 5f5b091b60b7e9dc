package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"critter-coliseum/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

// Config Redis 配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Client Redis 客户端封装，所有操作记录 Prometheus 指标
type Client struct {
	*redis.Client
	service string
}

// NewClient 创建 Redis 客户端
func NewClient(cfg Config, service string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	return Wrap(rdb, service), nil
}

// Wrap 包装已有的 go-redis 客户端
func Wrap(rdb *redis.Client, service string) *Client {
	if service == "" {
		service = metrics.GetServiceName()
	}
	return &Client{Client: rdb, service: service}
}

// SetNX 仅在键不存在时写入，返回是否写入成功
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := c.Client.SetNX(ctx, key, value, ttl).Result()
	c.record("SETNX", err, time.Since(start))
	return ok, err
}

// Exists 检查键是否存在
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	n, err := c.Client.Exists(ctx, key).Result()
	c.record("EXISTS", err, time.Since(start))
	return n > 0, err
}

// RecordPoolStats 上报连接池状态
func (c *Client) RecordPoolStats() {
	stats := c.PoolStats()
	metrics.DefaultResourceMetrics.RecordRedisPoolStats(int(stats.TotalConns), int(stats.IdleConns), int(stats.StaleConns), c.service)
}

func (c *Client) record(operation string, err error, duration time.Duration) {
	metrics.DefaultResourceMetrics.RecordRedisOperation(operation, err == nil, duration, c.service)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		metrics.DefaultResourceMetrics.RecordRedisError("timeout", c.service)
	default:
		metrics.DefaultResourceMetrics.RecordRedisError("operation_error", c.service)
	}
}
