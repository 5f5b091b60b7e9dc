// Package jobqueue 战斗任务通道：open-battles 由管理服务发布、竞技场消费，
// closed-battles 由竞技场发布、管理服务消费。投递语义为至少一次。
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Channel 任务通道名
type Channel string

const (
	ChannelOpenBattles   Channel = "open-battles"
	ChannelClosedBattles Channel = "closed-battles"
)

// Channels 所有已知通道
var Channels = []Channel{ChannelOpenBattles, ChannelClosedBattles}

func (c Channel) String() string { return string(c) }

var (
	// ErrAlreadySubscribed 同一进程内同一通道只允许一个处理器
	ErrAlreadySubscribed = errors.New("jobqueue: channel already subscribed")
	// ErrUnknownChannel 未配置的通道
	ErrUnknownChannel = errors.New("jobqueue: unknown channel")
	// ErrClosed 队列已关闭
	ErrClosed = errors.New("jobqueue: queue closed")
	// ErrMalformedMessage 消息体无法解码
	ErrMalformedMessage = errors.New("jobqueue: malformed message")
)

// AckMode 通道确认模式
type AckMode string

const (
	// AckNone 取出即视为完成，消费者崩溃会丢失任务
	AckNone AckMode = "none"
	// AckExplicit 处理器必须显式确认，超时或 Nak 后重投
	AckExplicit AckMode = "explicit"
)

// ParseAckMode 解析确认模式，无法识别时返回错误
func ParseAckMode(raw string) (AckMode, error) {
	switch AckMode(raw) {
	case AckNone, "":
		return AckNone, nil
	case AckExplicit:
		return AckExplicit, nil
	default:
		return "", fmt.Errorf("jobqueue: unknown ack mode %q", raw)
	}
}

// ChannelConfig 单个通道的投递配置
type ChannelConfig struct {
	AckMode       AckMode
	AckWait       time.Duration
	MaxAckPending int
}

// DefaultAckWait closed-battles 的默认确认超时
const DefaultAckWait = 30 * time.Second

// DefaultChannelConfigs open-battles 使用 openAck 模式，closed-battles 始终需要确认
func DefaultChannelConfigs(openAck AckMode, ackWait time.Duration) map[Channel]ChannelConfig {
	if ackWait <= 0 {
		ackWait = DefaultAckWait
	}
	return map[Channel]ChannelConfig{
		ChannelOpenBattles: {
			AckMode:       openAck,
			AckWait:       ackWait,
			MaxAckPending: 256,
		},
		ChannelClosedBattles: {
			AckMode:       AckExplicit,
			AckWait:       ackWait,
			MaxAckPending: 256,
		},
	}
}

// Delivery 一次投递。AckNone 通道上 Ack/Nak/Term 均为空操作
type Delivery interface {
	Channel() Channel
	Data() []byte
	// NumDelivered 第几次投递，从 1 开始
	NumDelivered() uint64
	RequiresAck() bool
	Ack(ctx context.Context) error
	// Nak 要求在 delay 之后重投，delay 为 0 时立即重投
	Nak(ctx context.Context, delay time.Duration) error
	// Term 放弃该消息，不再重投
	Term(ctx context.Context) error
}

// Handler 任务处理器。ctx 在订阅停止时取消
type Handler func(ctx context.Context, d Delivery)

// Subscription 活动的订阅
type Subscription interface {
	Stop()
}

// Queue 任务队列
type Queue interface {
	// Publish 将 v 编码为 JSON 并发布，返回时消息已被持久化
	Publish(ctx context.Context, ch Channel, v any) error
	Subscribe(ctx context.Context, ch Channel, h Handler) (Subscription, error)
	Close() error
}

// MessageIDer 实现该接口的消息在发布时携带去重 ID
type MessageIDer interface {
	MessageID() string
}

// Decode 将投递内容解码为 T
func Decode[T any](d Delivery) (T, error) {
	var v T
	if err := json.Unmarshal(d.Data(), &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, d.Channel(), err)
	}
	return v, nil
}

func encode(v any) ([]byte, string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("jobqueue: encode message: %w", err)
	}
	var id string
	if m, ok := v.(MessageIDer); ok {
		id = m.MessageID()
	}
	return data, id, nil
}
