package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"critter-coliseum/internal/model/battlemodel"
)

// SubjectBattleSettled 战斗结算通知主题
const SubjectBattleSettled = "battles.settled"

// Publisher 核心 NATS 发布接口（*nats.Conn 满足该接口）
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Notifier 结算事件通知
type Notifier interface {
	BattleSettled(ctx context.Context, event battlemodel.BattleSettledEvent) error
}

// NatsNotifier 通过 NATS core 发布事件（至多一次，无持久化）
type NatsNotifier struct {
	conn Publisher
}

// NewNatsNotifier 创建通知器，conn 为 nil 时静默降级
func NewNatsNotifier(conn Publisher) *NatsNotifier {
	return &NatsNotifier{conn: conn}
}

// BattleSettled 发布战斗结算事件
func (n *NatsNotifier) BattleSettled(ctx context.Context, event battlemodel.BattleSettledEvent) error {
	if n == nil || n.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal battle settled event failed: %w", err)
	}
	return n.conn.Publish(SubjectBattleSettled, data)
}

// Nop 不发送任何通知
type Nop struct{}

// BattleSettled 实现 Notifier
func (Nop) BattleSettled(context.Context, battlemodel.BattleSettledEvent) error { return nil }
