package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS 基于 nats core 的消息代理，group 对应 queue group
type NATS struct {
	conn *nats.Conn
}

// NewNATS 连接 nats
func NewNATS(url string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("fin-flow-go"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATS{conn: conn}, nil
}

func (n *NATS) Publish(ctx context.Context, topic string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(payload)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(topic, data); err != nil {
		return err
	}
	return n.conn.FlushWithContext(ctx)
}

func (n *NATS) Consume(ctx context.Context, topic, group string, h Handler) error {
	sub, err := n.conn.QueueSubscribe(topic, group, func(m *nats.Msg) {
		dispatch(ctx, h, Message{Topic: m.Subject, Value: m.Data})
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", topic, err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

func (n *NATS) Ping(ctx context.Context) error {
	if !n.conn.IsConnected() {
		return errors.New("nats not connected")
	}
	return n.conn.FlushWithContext(ctx)
}

func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
