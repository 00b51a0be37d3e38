package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka 基于 kafka-go 的消息代理
type Kafka struct {
	brokers []string
	writer  *kafka.Writer
}

// NewKafka 写入端延迟连接，创建时不访问集群
func NewKafka(brokers []string) *Kafka {
	return &Kafka{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, topic string, payload any) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: data, Time: time.Now()})
}

func (k *Kafka) Consume(ctx context.Context, topic, group string, h Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.brokers,
		Topic:       topic,
		GroupID:     group,
		StartOffset: kafka.LastOffset,
		MaxWait:     time.Second,
	})
	defer r.Close()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		dispatch(ctx, h, Message{Topic: m.Topic, Key: string(m.Key), Value: m.Value})
		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

// Ping 连上任一 broker 即认为可用
func (k *Kafka) Ping(ctx context.Context) error {
	var d net.Dialer
	var lastErr error
	for _, addr := range k.brokers {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no kafka brokers configured")
	}
	return lastErr
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
