package broker

import (
	"context"

	"github.com/HildaM/logs/slog"
)

// Log 只记录日志的消息代理，本地开发使用
type Log struct{}

func NewLog() *Log { return &Log{} }

func (Log) Publish(_ context.Context, topic string, payload any) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}
	slog.Info("broker publish, topic = %s, payload = %s", topic, data)
	return nil
}

func (Log) Consume(ctx context.Context, topic, _ string, _ Handler) error {
	slog.Info("log broker does not deliver messages, topic = %s", topic)
	<-ctx.Done()
	return nil
}

func (Log) Ping(context.Context) error { return nil }

func (Log) Close() error { return nil }
