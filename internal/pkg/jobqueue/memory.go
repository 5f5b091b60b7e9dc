package jobqueue

import (
	"context"
	"sync"
	"time"
)

// dedupWindow 与 JetStream 默认的重复检测窗口一致
const dedupWindow = 2 * time.Minute

// MemoryQueue 进程内队列，用于测试与单进程开发模式。
// 未被订阅的消息会一直保留，确认与重投语义与 JetStream 实现一致。
type MemoryQueue struct {
	mu       sync.Mutex
	channels map[Channel]*memChannel
	seen     map[string]time.Time
	closed   bool
}

type memMessage struct {
	data      []byte
	delivered uint64
}

type memChannel struct {
	cfg        ChannelConfig
	queue      []*memMessage
	notify     chan struct{}
	subscribed bool
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(configs map[Channel]ChannelConfig) *MemoryQueue {
	q := &MemoryQueue{
		channels: make(map[Channel]*memChannel, len(configs)),
		seen:     make(map[string]time.Time),
	}
	for ch, cfg := range configs {
		if cfg.AckWait <= 0 {
			cfg.AckWait = DefaultAckWait
		}
		q.channels[ch] = &memChannel{cfg: cfg, notify: make(chan struct{}, 1)}
	}
	return q
}

// Publish 实现 Queue
func (q *MemoryQueue) Publish(ctx context.Context, ch Channel, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, id, err := encode(v)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	c, ok := q.channels[ch]
	if !ok {
		return ErrUnknownChannel
	}
	if id != "" {
		now := time.Now()
		for k, at := range q.seen {
			if now.Sub(at) > dedupWindow {
				delete(q.seen, k)
			}
		}
		if _, dup := q.seen[id]; dup {
			return nil
		}
		q.seen[id] = now
	}
	q.enqueueLocked(c, &memMessage{data: data})
	return nil
}

func (q *MemoryQueue) enqueueLocked(c *memChannel, m *memMessage) {
	c.queue = append(c.queue, m)
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) redeliver(ch Channel, m *memMessage, delay time.Duration) {
	requeue := func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return
		}
		q.enqueueLocked(q.channels[ch], m)
	}
	if delay <= 0 {
		requeue()
		return
	}
	time.AfterFunc(delay, requeue)
}

// next 取出下一条消息，ctx 取消时返回 false
func (q *MemoryQueue) next(ctx context.Context, c *memChannel) (*memMessage, uint64, bool) {
	for {
		q.mu.Lock()
		if len(c.queue) > 0 {
			m := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			m.delivered++
			n := m.delivered
			q.mu.Unlock()
			return m, n, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, 0, false
		case <-c.notify:
		}
	}
}

// Subscribe 实现 Queue。处理器在单个 goroutine 中按顺序调用
func (q *MemoryQueue) Subscribe(ctx context.Context, ch Channel, h Handler) (Subscription, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	c, ok := q.channels[ch]
	if !ok {
		q.mu.Unlock()
		return nil, ErrUnknownChannel
	}
	if c.subscribed {
		q.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	c.subscribed = true
	q.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &memSubscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer func() {
			q.mu.Lock()
			c.subscribed = false
			q.mu.Unlock()
		}()

		for {
			m, n, ok := q.next(subCtx, c)
			if !ok {
				return
			}
			d := &memDelivery{
				q:           q,
				ch:          ch,
				msg:         m,
				delivered:   n,
				requiresAck: c.cfg.AckMode == AckExplicit,
			}
			if d.requiresAck {
				d.mu.Lock()
				d.timer = time.AfterFunc(c.cfg.AckWait, d.expire)
				d.mu.Unlock()
			}
			h(subCtx, d)
		}
	}()

	return sub, nil
}

// Close 关闭队列，停止接收发布与重投
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Pending 返回通道中等待投递的消息数（测试用）
func (q *MemoryQueue) Pending(ch Channel) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if c, ok := q.channels[ch]; ok {
		return len(c.queue)
	}
	return 0
}

type memSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop 停止订阅并等待处理循环退出
func (s *memSubscription) Stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

type memDelivery struct {
	q           *MemoryQueue
	ch          Channel
	msg         *memMessage
	delivered   uint64
	requiresAck bool

	mu      sync.Mutex
	settled bool
	timer   *time.Timer
}

func (d *memDelivery) Channel() Channel     { return d.ch }
func (d *memDelivery) Data() []byte         { return d.msg.data }
func (d *memDelivery) NumDelivered() uint64 { return d.delivered }
func (d *memDelivery) RequiresAck() bool    { return d.requiresAck }

// settle 首次调用返回 true，之后的确认操作均无效
func (d *memDelivery) settle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return false
	}
	d.settled = true
	if d.timer != nil {
		d.timer.Stop()
	}
	return true
}

func (d *memDelivery) Ack(ctx context.Context) error {
	if d.requiresAck {
		d.settle()
	}
	return nil
}

func (d *memDelivery) Nak(ctx context.Context, delay time.Duration) error {
	if d.requiresAck && d.settle() {
		d.q.redeliver(d.ch, d.msg, delay)
	}
	return nil
}

func (d *memDelivery) Term(ctx context.Context) error {
	if d.requiresAck {
		d.settle()
	}
	return nil
}

// expire AckWait 到期仍未确认，重投
func (d *memDelivery) expire() {
	if d.settle() {
		d.q.redeliver(d.ch, d.msg, 0)
	}
}
