package redis

import (
	"context"
	"time"
)

// DefaultSettledTTL 结算标记的保留时间，覆盖 JetStream 重投窗口即可
const DefaultSettledTTL = 24 * time.Hour

const settledKeyPrefix = "battle:settled:"

// SettledMarker 记录已结算的战斗 ID，用于在重复投递时跳过数据库事务。
// 仅作提示：缓存缺失或出错时调用方仍依赖数据库的条件更新保证幂等。
type SettledMarker struct {
	client *Client
	ttl    time.Duration
}

// NewSettledMarker 创建结算标记缓存，ttl <= 0 时使用默认值
func NewSettledMarker(client *Client, ttl time.Duration) *SettledMarker {
	if ttl <= 0 {
		ttl = DefaultSettledTTL
	}
	return &SettledMarker{client: client, ttl: ttl}
}

// SettledKey 返回战斗的标记键
func SettledKey(battleID string) string {
	return settledKeyPrefix + battleID
}

// IsSettled 战斗是否已被标记为结算完成
func (m *SettledMarker) IsSettled(ctx context.Context, battleID string) (bool, error) {
	if m == nil || m.client == nil {
		return false, nil
	}
	return m.client.Exists(ctx, SettledKey(battleID))
}

// MarkSettled 标记战斗已结算
func (m *SettledMarker) MarkSettled(ctx context.Context, battleID string) error {
	if m == nil || m.client == nil {
		return nil
	}
	_, err := m.client.SetNX(ctx, SettledKey(battleID), time.Now().UTC().Format(time.RFC3339), m.ttl)
	return err
}
