package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"critter-coliseum/internal/pkg/log"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// subjectPrefix 所有任务主题的前缀
const subjectPrefix = "coliseum.jobs."

// openStreamMaxAge 免确认模式下 open-battles 的保留时长
const openStreamMaxAge = 24 * time.Hour

// JetStreamOptions JetStream 队列配置
type JetStreamOptions struct {
	// Storage "file" 或 "memory"
	Storage  string
	Channels map[Channel]ChannelConfig
	Logger   log.Logger
}

// JetStreamQueue 基于 NATS JetStream 的持久化队列，每个通道一个 stream 与一个持久消费者
type JetStreamQueue struct {
	js       jetstream.JetStream
	storage  jetstream.StorageType
	channels map[Channel]ChannelConfig
	logger   log.Logger

	mu     sync.Mutex
	subs   map[Channel]*jsSubscription
	closed bool
}

// StreamName 通道对应的 stream 名
func StreamName(ch Channel) string {
	return "COLISEUM_" + strings.ToUpper(strings.ReplaceAll(string(ch), "-", "_"))
}

// Subject 通道对应的主题
func Subject(ch Channel) string {
	return subjectPrefix + string(ch)
}

// DurableName 通道对应的持久消费者名
func DurableName(ch Channel) string {
	return string(ch) + "-consumer"
}

// ParseStorage 解析存储类型
func ParseStorage(raw string) (jetstream.StorageType, error) {
	switch strings.ToLower(raw) {
	case "", "file":
		return jetstream.FileStorage, nil
	case "memory":
		return jetstream.MemoryStorage, nil
	default:
		return 0, fmt.Errorf("jobqueue: unknown storage %q", raw)
	}
}

// streamConfig 需要确认的通道使用 WorkQueue 保留策略（确认即删除），
// 免确认通道不能挂在 WorkQueue stream 上，改用按时长保留
func streamConfig(ch Channel, cfg ChannelConfig, storage jetstream.StorageType) jetstream.StreamConfig {
	sc := jetstream.StreamConfig{
		Name:       StreamName(ch),
		Subjects:   []string{Subject(ch)},
		Storage:    storage,
		Duplicates: dedupWindow,
	}
	if cfg.AckMode == AckExplicit {
		sc.Retention = jetstream.WorkQueuePolicy
	} else {
		sc.Retention = jetstream.LimitsPolicy
		sc.MaxAge = openStreamMaxAge
	}
	return sc
}

func consumerConfig(ch Channel, cfg ChannelConfig) jetstream.ConsumerConfig {
	cc := jetstream.ConsumerConfig{
		Durable:       DurableName(ch),
		FilterSubject: Subject(ch),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckNonePolicy,
	}
	if cfg.AckMode == AckExplicit {
		cc.AckPolicy = jetstream.AckExplicitPolicy
		cc.AckWait = cfg.AckWait
		cc.MaxAckPending = cfg.MaxAckPending
	}
	return cc
}

// NewJetStreamQueue 创建队列并确保各通道的 stream 与消费者存在
func NewJetStreamQueue(ctx context.Context, nc *nats.Conn, opts JetStreamOptions) (*JetStreamQueue, error) {
	storage, err := ParseStorage(opts.Storage)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Channels == nil {
		opts.Channels = DefaultChannelConfigs(AckNone, DefaultAckWait)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: create jetstream context: %w", err)
	}

	q := &JetStreamQueue{
		js:       js,
		storage:  storage,
		channels: opts.Channels,
		logger:   opts.Logger.With("component", "jobqueue"),
		subs:     make(map[Channel]*jsSubscription),
	}

	for ch, cfg := range q.channels {
		if err := q.ensureChannel(ctx, ch, cfg); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (q *JetStreamQueue) ensureChannel(ctx context.Context, ch Channel, cfg ChannelConfig) error {
	stream, err := q.js.CreateOrUpdateStream(ctx, streamConfig(ch, cfg, q.storage))
	if err != nil {
		return fmt.Errorf("jobqueue: ensure stream %s: %w", StreamName(ch), err)
	}
	if _, err := stream.CreateOrUpdateConsumer(ctx, consumerConfig(ch, cfg)); err != nil {
		return fmt.Errorf("jobqueue: ensure consumer %s: %w", DurableName(ch), err)
	}
	q.logger.Info("任务通道就绪",
		log.String("channel", ch.String()),
		log.String("stream", StreamName(ch)),
		log.String("ack_mode", string(cfg.AckMode)),
	)
	return nil
}

// Publish 实现 Queue，等待 JetStream PubAck
func (q *JetStreamQueue) Publish(ctx context.Context, ch Channel, v any) error {
	if _, ok := q.channels[ch]; !ok {
		return ErrUnknownChannel
	}
	data, id, err := encode(v)
	if err != nil {
		return err
	}
	var pubOpts []jetstream.PublishOpt
	if id != "" {
		pubOpts = append(pubOpts, jetstream.WithMsgID(id))
	}
	ack, err := q.js.Publish(ctx, Subject(ch), data, pubOpts...)
	if err != nil {
		return fmt.Errorf("jobqueue: publish to %s: %w", ch, err)
	}
	if ack.Duplicate {
		q.logger.DebugContext(ctx, "重复消息已被去重", log.String("channel", ch.String()), log.String("msg_id", id))
	}
	return nil
}

// Subscribe 实现 Queue
func (q *JetStreamQueue) Subscribe(ctx context.Context, ch Channel, h Handler) (Subscription, error) {
	cfg, ok := q.channels[ch]
	if !ok {
		return nil, ErrUnknownChannel
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	if _, exists := q.subs[ch]; exists {
		return nil, ErrAlreadySubscribed
	}

	cons, err := q.js.Consumer(ctx, StreamName(ch), DurableName(ch))
	if err != nil {
		return nil, fmt.Errorf("jobqueue: lookup consumer %s: %w", DurableName(ch), err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	requiresAck := cfg.AckMode == AckExplicit
	logger := q.logger.With("channel", ch.String())

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		h(subCtx, &jsDelivery{ch: ch, msg: msg, requiresAck: requiresAck})
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		if errors.Is(err, jetstream.ErrNoHeartbeat) || errors.Is(err, nats.ErrConnectionClosed) {
			logger.Warn("消费连接异常", log.String("error", err.Error()))
			return
		}
		logger.Debug("消费错误", log.String("error", err.Error()))
	}))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("jobqueue: consume %s: %w", ch, err)
	}

	sub := &jsSubscription{cc: cc, cancel: cancel}
	sub.release = func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.subs[ch] == sub {
			delete(q.subs, ch)
		}
	}
	q.subs[ch] = sub
	return sub, nil
}

// Close 停止所有订阅。NATS 连接由调用方管理
func (q *JetStreamQueue) Close() error {
	q.mu.Lock()
	subs := make([]*jsSubscription, 0, len(q.subs))
	for _, s := range q.subs {
		subs = append(subs, s)
	}
	q.closed = true
	q.mu.Unlock()

	for _, s := range subs {
		s.Stop()
	}
	return nil
}

type jsSubscription struct {
	cc      jetstream.ConsumeContext
	cancel  context.CancelFunc
	release func()
	once    sync.Once
}

// Stop 排空已拉取的消息后停止
func (s *jsSubscription) Stop() {
	s.once.Do(func() {
		s.cc.Drain()
		<-s.cc.Closed()
		s.cancel()
		s.release()
	})
}

type jsDelivery struct {
	ch          Channel
	msg         jetstream.Msg
	requiresAck bool
}

func (d *jsDelivery) Channel() Channel { return d.ch }
func (d *jsDelivery) Data() []byte     { return d.msg.Data() }
func (d *jsDelivery) RequiresAck() bool {
	return d.requiresAck
}

func (d *jsDelivery) NumDelivered() uint64 {
	meta, err := d.msg.Metadata()
	if err != nil {
		return 1
	}
	return meta.NumDelivered
}

// Ack 等待服务端确认，保证返回 nil 时消息不会再被投递
func (d *jsDelivery) Ack(ctx context.Context) error {
	if !d.requiresAck {
		return nil
	}
	return d.msg.DoubleAck(ctx)
}

func (d *jsDelivery) Nak(ctx context.Context, delay time.Duration) error {
	if !d.requiresAck {
		return nil
	}
	if delay > 0 {
		return d.msg.NakWithDelay(delay)
	}
	return d.msg.Nak()
}

func (d *jsDelivery) Term(ctx context.Context) error {
	if !d.requiresAck {
		return nil
	}
	return d.msg.Term()
}
