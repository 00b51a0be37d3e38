package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hildam/fin-flow-go/entity/conf"
)

// maxEvents 每个用户保留的事件条数
const maxEvents = 50

// Redis 基于 redis 的短期记忆
type Redis struct {
	client *redis.Client
}

// NewRedis 连接 redis 并探活
func NewRedis(cfg conf.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", cfg.Addr, err)
	}
	return &Redis{client: client}, nil
}

func lastActionKey(userID string) string { return "user:" + userID + ":last_action" }
func lastEventsKey(userID string) string { return "user:" + userID + ":last_events" }

// RecentAction 不存在时返回 nil, nil
func (r *Redis) RecentAction(ctx context.Context, userID string) (map[string]any, error) {
	raw, err := r.client.Get(ctx, lastActionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode last action: %w", err)
	}
	return rec, nil
}

func (r *Redis) SetRecentAction(ctx context.Context, userID string, rec map[string]any, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, lastActionKey(userID), data, ttl).Err()
}

func (r *Redis) PushEvent(ctx context.Context, userID string, rec map[string]any, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := lastEventsKey(userID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxEvents-1)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Client 暴露底层连接，供消息代理复用
func (r *Redis) Client() *redis.Client {
	return r.client
}
