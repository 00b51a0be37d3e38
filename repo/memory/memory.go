package memory

import (
	"context"
	"time"

	"github.com/HildaM/logs/slog"

	"github.com/hildam/fin-flow-go/entity/conf"
)

// Hit 长期记忆检索结果
type Hit struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Score     float64        `json:"score"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ShortTerm 短期记忆，按用户保存最近一次动作与事件列表
type ShortTerm interface {
	RecentAction(ctx context.Context, userID string) (map[string]any, error)
	SetRecentAction(ctx context.Context, userID string, rec map[string]any, ttl time.Duration) error
	PushEvent(ctx context.Context, userID string, rec map[string]any, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// LongTerm 长期记忆，按向量相似度检索
type LongTerm interface {
	Store(ctx context.Context, userID, content string, vec []float32, metadata map[string]any) error
	Search(ctx context.Context, userID string, vec []float32, topK int) ([]Hit, error)
	Ping(ctx context.Context) error
	Close() error
}

// Embedder 文本向量化
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Gateway 流水线使用的记忆接口
// 所有方法都是尽力而为：失败只记录日志，按 "没有记忆" 处理
type Gateway interface {
	RecentAction(ctx context.Context, userID string) map[string]any
	SetRecentAction(ctx context.Context, userID string, rec map[string]any)
	PushEvent(ctx context.Context, userID string, rec map[string]any)
	Search(ctx context.Context, userID, query string, topK int) []Hit
	Store(ctx context.Context, userID, content string, metadata map[string]any)
	Health(ctx context.Context) map[string]bool
	Close() error
}

// Manager 组合短期、长期记忆与向量化
type Manager struct {
	short   ShortTerm
	long    LongTerm
	embed   Embedder
	ttl     time.Duration
	timeout time.Duration
}

// Option 配置项
type Option func(*Manager)

// WithTTL 短期记忆过期时间
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithTimeout 单次读写超时
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewManager 任意一个存储都可以为 nil
func NewManager(short ShortTerm, long LongTerm, embed Embedder, opts ...Option) *Manager {
	m := &Manager{
		short:   short,
		long:    long,
		embed:   embed,
		ttl:     24 * time.Hour,
		timeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// New 按配置创建记忆组件
// redis 不可达时退化为进程内短期记忆，向量库打开失败时关闭长期记忆
func New(cfg conf.MemoryConfig, embed Embedder) *Manager {
	var short ShortTerm
	if cfg.Redis.Enabled {
		r, err := NewRedis(cfg.Redis)
		if err != nil {
			slog.Error("NewRedis failed, use in-memory short term store, err = %v", err)
		} else {
			short = r
		}
	}
	if short == nil {
		short = NewInMemory()
	}

	var long LongTerm
	if cfg.Vector.Enabled {
		v, err := NewVectorStore(cfg.Vector.Path, cfg.Vector.Collection, cfg.Vector.VectorSize)
		if err != nil {
			slog.Error("NewVectorStore failed, long term memory disabled, err = %v", err)
		} else {
			long = v
		}
	}
	return NewManager(short, long, embed, WithTTL(cfg.ShortTermTTL), WithTimeout(cfg.Timeout))
}

// RecentAction 读取最近一次动作
func (m *Manager) RecentAction(ctx context.Context, userID string) map[string]any {
	if m == nil || m.short == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rec, err := m.short.RecentAction(ctx, userID)
	if err != nil {
		slog.Error("memory RecentAction failed, user = %s, err = %v", userID, err)
		return nil
	}
	return rec
}

// SetRecentAction 写入最近一次动作
func (m *Manager) SetRecentAction(ctx context.Context, userID string, rec map[string]any) {
	if m == nil || m.short == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.short.SetRecentAction(ctx, userID, rec, m.ttl); err != nil {
		slog.Error("memory SetRecentAction failed, user = %s, err = %v", userID, err)
	}
}

// PushEvent 追加一条事件
func (m *Manager) PushEvent(ctx context.Context, userID string, rec map[string]any) {
	if m == nil || m.short == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.short.PushEvent(ctx, userID, rec, m.ttl); err != nil {
		slog.Error("memory PushEvent failed, user = %s, err = %v", userID, err)
	}
}

// Search 语义检索该用户的历史分析
func (m *Manager) Search(ctx context.Context, userID, query string, topK int) []Hit {
	if m == nil || m.long == nil || m.embed == nil {
		return nil
	}
	vec, err := m.embed.Embed(ctx, query)
	if err != nil {
		slog.Error("memory Search embed failed, user = %s, err = %v", userID, err)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	hits, err := m.long.Search(ctx, userID, vec, topK)
	if err != nil {
		slog.Error("memory Search failed, user = %s, err = %v", userID, err)
		return nil
	}
	return hits
}

// Store 写入一条长期记忆
func (m *Manager) Store(ctx context.Context, userID, content string, metadata map[string]any) {
	if m == nil || m.long == nil || m.embed == nil {
		return
	}
	vec, err := m.embed.Embed(ctx, content)
	if err != nil {
		slog.Error("memory Store embed failed, user = %s, err = %v", userID, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.long.Store(ctx, userID, content, vec, metadata); err != nil {
		slog.Error("memory Store failed, user = %s, err = %v", userID, err)
	}
}

// Health 各存储的连通性
func (m *Manager) Health(ctx context.Context) map[string]bool {
	out := map[string]bool{"redis": false, "vector_store": false}
	if m == nil {
		return out
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if _, ok := m.short.(*Redis); ok {
		out["redis"] = m.short.Ping(ctx) == nil
	}
	if m.long != nil {
		out["vector_store"] = m.long.Ping(ctx) == nil
	}
	return out
}

// Close 释放连接
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	var firstErr error
	if m.short != nil {
		if err := m.short.Close(); err != nil {
			firstErr = err
		}
	}
	if m.long != nil {
		if err := m.long.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
