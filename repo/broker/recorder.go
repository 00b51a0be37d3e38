package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Recorder 记录所有发布的消息，并把发布的消息投递给本进程的消费者
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	handlers map[string][]Handler
	fail     map[string]error
	closed   bool
}

// NewRecorder 创建记录器
func NewRecorder() *Recorder {
	return &Recorder{
		handlers: make(map[string][]Handler),
		fail:     make(map[string]error),
	}
}

// Fail 之后对 topic 的发布返回 err
func (r *Recorder) Fail(topic string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[topic] = err
}

func (r *Recorder) Publish(ctx context.Context, topic string, payload any) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New("recorder closed")
	}
	if err := r.fail[topic]; err != nil {
		r.mu.Unlock()
		return err
	}
	msg := Message{Topic: topic, Value: data}
	r.messages = append(r.messages, msg)
	handlers := append([]Handler(nil), r.handlers[topic]...)
	r.mu.Unlock()

	for _, h := range handlers {
		dispatch(ctx, h, msg)
	}
	return nil
}

func (r *Recorder) Consume(ctx context.Context, topic, _ string, h Handler) error {
	r.mu.Lock()
	r.handlers[topic] = append(r.handlers[topic], h)
	r.mu.Unlock()

	<-ctx.Done()

	r.mu.Lock()
	delete(r.handlers, topic)
	r.mu.Unlock()
	return nil
}

// Consumers topic 上当前注册的消费者数量
func (r *Recorder) Consumers(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[topic])
}

// Messages 返回 topic 上的消息，topic 为空返回全部
func (r *Recorder) Messages(topic string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Topics 按发布顺序返回 topic 列表
func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, m.Topic)
	}
	return out
}

// Decode 解码 topic 上第 i 条消息
func (r *Recorder) Decode(topic string, i int, v any) error {
	msgs := r.Messages(topic)
	if i < 0 || i >= len(msgs) {
		return errors.New("message index out of range")
	}
	return json.Unmarshal(msgs[i].Value, v)
}

func (r *Recorder) Ping(context.Context) error { return nil }

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
