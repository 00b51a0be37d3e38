// Package bus 进程内事件总线
//
// 单个分发协程按发布顺序取事件，逐个投递给订阅者。每个订阅者有自己的泵协程与
// 无界队列，慢订阅者只会让自己的队列变长，不会阻塞发布者和其他订阅者。
package bus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hildam/fin-flow-go/entity/model"
)

// ErrClosed 总线已关闭
var ErrClosed = errors.New("event bus closed")

const inboundSize = 1024

type envelope struct {
	seq uint64
	ev  model.Event
}

// Bus 事件总线
type Bus struct {
	in   chan envelope
	seq  atomic.Uint64
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64

	onChange func(n int)
}

// Option 总线选项
type Option func(*Bus)

// WithSubscriberHook 订阅者数量变化时回调
func WithSubscriberHook(fn func(n int)) Option {
	return func(b *Bus) { b.onChange = fn }
}

// New 创建并启动总线
func New(opts ...Option) *Bus {
	b := &Bus{
		in:   make(chan envelope, inboundSize),
		done: make(chan struct{}),
		subs: make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.wg.Add(1)
	go b.dispatch()
	return b
}

// Publish 发布事件，不等待订阅者消费
func (b *Bus) Publish(ev model.Event) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	env := envelope{seq: b.seq.Add(1), ev: ev}
	select {
	case b.in <- env:
		return nil
	case <-b.done:
		return ErrClosed
	}
}

// Subscribe 订阅之后发布的全部事件
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:    b,
		in:     make(chan envelope, 64),
		out:    make(chan model.Event),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	s.startSeq = b.seq.Load()
	closed := false
	select {
	case <-b.done:
		closed = true
	default:
		b.subs[s.id] = s
	}
	n := len(b.subs)
	b.mu.Unlock()

	go s.pump()
	if closed {
		s.stop()
		return s
	}
	b.notify(n)
	return s
}

// Unsubscribe 取消订阅，返回后 C() 已关闭
func (b *Bus) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[s.id]
	delete(b.subs, s.id)
	n := len(b.subs)
	b.mu.Unlock()

	s.stop()
	if ok {
		b.notify(n)
	}
}

// Len 当前订阅者数量
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close 关闭总线及全部订阅
func (b *Bus) Close() {
	b.once.Do(func() {
		close(b.done)
		b.wg.Wait()

		b.mu.Lock()
		subs := make([]*Subscription, 0, len(b.subs))
		for id, s := range b.subs {
			subs = append(subs, s)
			delete(b.subs, id)
		}
		b.mu.Unlock()

		for _, s := range subs {
			s.stop()
		}
		b.notify(0)
	})
}

func (b *Bus) dispatch() {
	defer b.wg.Done()
	for {
		select {
		case env := <-b.in:
			b.deliver(env)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) deliver(env envelope) {
	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if env.seq > s.startSeq {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.in <- env:
		case <-s.done:
		}
	}
}

func (b *Bus) notify(n int) {
	if b.onChange != nil {
		b.onChange(n)
	}
}

// Subscription 单个订阅
type Subscription struct {
	id       uint64
	bus      *Bus
	startSeq uint64

	in     chan envelope
	out    chan model.Event
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// C 事件通道，取消订阅后关闭
func (s *Subscription) C() <-chan model.Event {
	return s.out
}

// Close 等同于 Unsubscribe
func (s *Subscription) Close() {
	s.bus.Unsubscribe(s)
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		close(s.done)
		<-s.exited
		close(s.out)
	})
}

// pump 维护无界队列，按 FIFO 顺序交给消费者
func (s *Subscription) pump() {
	defer close(s.exited)
	var queue []model.Event
	for {
		var (
			out  chan model.Event
			head model.Event
		)
		if len(queue) > 0 {
			out = s.out
			head = queue[0]
		}
		select {
		case env := <-s.in:
			queue = append(queue, env.ev)
		case out <- head:
			queue[0] = model.Event{}
			queue = queue[1:]
		case <-s.done:
			return
		}
	}
}
