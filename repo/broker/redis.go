package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/redis/go-redis/v9"
)

// dataField 流消息中承载负载的字段名
const dataField = "data"

// RedisStreams 基于 redis stream 的消息代理
type RedisStreams struct {
	rdb      *redis.Client
	consumer string
}

// NewRedisStreams 连接 redis 并探活
func NewRedisStreams(addr string) (*RedisStreams, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", addr, err)
	}
	return &RedisStreams{rdb: rdb, consumer: fmt.Sprintf("fin-flow-%d", time.Now().UnixNano())}, nil
}

func (r *RedisStreams) Publish(ctx context.Context, topic string, payload any) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}
	return r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{dataField: string(data)},
	}).Err()
}

func (r *RedisStreams) Consume(ctx context.Context, topic, group string, h Handler) error {
	err := r.rdb.XGroupCreateMkStream(ctx, topic, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := r.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: r.consumer,
			Streams:  []string{topic, ">"},
			Count:    10,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("redis XReadGroup failed, topic = %s, err = %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, m := range stream.Messages {
				raw, _ := m.Values[dataField].(string)
				dispatch(ctx, h, Message{Topic: stream.Stream, Key: m.ID, Value: []byte(raw)})
				r.rdb.XAck(ctx, topic, group, m.ID)
			}
		}
	}
}

func (r *RedisStreams) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisStreams) Close() error {
	return r.rdb.Close()
}
