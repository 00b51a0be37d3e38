package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HildaM/logs/slog"

	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/repo/metrics"
)

// 驱动名称
const (
	DriverKafka = "kafka"
	DriverNATS  = "nats"
	DriverRedis = "redis"
	DriverLog   = "log"
)

// Message 消费到的一条消息
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// Handler 消息处理函数，返回错误只记录日志，不会重投
type Handler func(ctx context.Context, msg Message) error

// Broker 消息代理
type Broker interface {
	// Publish 发布消息，payload 为 []byte 时原样发送，否则编码为 JSON
	Publish(ctx context.Context, topic string, payload any) error
	// Consume 阻塞消费 topic，直到 ctx 结束
	Consume(ctx context.Context, topic, group string, h Handler) error
	Ping(ctx context.Context) error
	Close() error
}

// New 按配置创建消息代理
func New(cfg conf.BrokerConfig) (Broker, error) {
	switch cfg.Driver {
	case DriverKafka:
		return NewKafka(cfg.Brokers), nil
	case DriverNATS:
		return NewNATS(cfg.NATSURL)
	case DriverRedis:
		return NewRedisStreams(cfg.RedisAddr)
	case DriverLog, "":
		return NewLog(), nil
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}

// Publish 尽力而为地发布，失败只记录日志
func Publish(ctx context.Context, b Broker, m *metrics.Metrics, timeout time.Duration, topic string, payload any) {
	if b == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := b.Publish(ctx, topic, payload)
	m.BrokerPublish(topic, err)
	if err != nil {
		slog.Error("broker publish failed, topic = %s, err = %v", topic, err)
	}
}

func encode(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// dispatch 调用处理函数并吞掉 panic
func dispatch(ctx context.Context, h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("broker handler panic, topic = %s, panic = %v", msg.Topic, r)
		}
	}()
	if err := h(ctx, msg); err != nil {
		slog.Error("broker handler failed, topic = %s, err = %v", msg.Topic, err)
	}
}
