package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/httpc"
	"github.com/hildam/fin-flow-go/repo/metrics"
	openai "github.com/meguminnnnnnnnn/go-openai"
)

const (
	BackendFast   = "fast"
	BackendStrong = "strong"
	BackendRaw    = "raw"
	BackendEmbed  = "embedding"
)

var errEmptyResponse = errors.New("empty response")

// ToolCall 模型选择的工具调用
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// FastResult fast 模型一次调用的结果
type FastResult struct {
	Text      string
	ToolCalls []ToolCall
	Backend   string // 实际响应的通道
}

// Gateway 模型网关
type Gateway interface {
	// Fast 本地快速模型，支持工具声明；主通道失败时走原生接口
	Fast(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*FastResult, error)
	// Strong 远端强模型，失败按配置重试
	Strong(ctx context.Context, msgs []*schema.Message, opts ...Option) (string, error)
	// Embed 文本向量化
	Embed(ctx context.Context, text string) ([]float32, error)
	// Ready 模型是否可用
	Ready() bool
}

// Option Strong 调用选项
type Option func(*callOptions)

type callOptions struct {
	schemaName string
	shape      any
}

// WithSchema 期望结构化输出，开启 json_schema 时使用约束模型
func WithSchema(name string, shape any) Option {
	return func(o *callOptions) {
		o.schemaName = name
		o.shape = shape
	}
}

// Client Gateway 的实现
type Client struct {
	cfg conf.ModelConfig

	fast   ecmodel.ToolCallingChatModel
	strong ecmodel.BaseChatModel
	raw    *rawClient
	embed  *rawClient

	schemaMu  sync.Mutex
	schemas   map[string]ecmodel.BaseChatModel
	newSchema func(ctx context.Context, name string, shape any) (ecmodel.BaseChatModel, error)

	metrics       *metrics.Metrics
	handlers      []callbacks.Handler
	retryInterval time.Duration
}

// ClientOption 客户端选项
type ClientOption func(*Client)

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithCallbacks 为每次模型调用注入 eino 回调
func WithCallbacks(h ...callbacks.Handler) ClientOption {
	return func(c *Client) { c.handlers = append(c.handlers, h...) }
}

// WithRetryInterval 重试初始间隔
func WithRetryInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.retryInterval = d }
}

// WithModels 直接指定模型实现
func WithModels(fast ecmodel.ToolCallingChatModel, strong ecmodel.BaseChatModel) ClientOption {
	return func(c *Client) {
		c.fast = fast
		c.strong = strong
	}
}

// New 按配置创建模型网关
// 主通道初始化失败不会返回错误，调用时走原生接口
func New(ctx context.Context, cfg conf.ModelConfig, opts ...ClientOption) (*Client, error) {
	hc, err := httpc.New(5 * time.Second)
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:           cfg,
		schemas:       make(map[string]ecmodel.BaseChatModel),
		retryInterval: 500 * time.Millisecond,
	}
	if cfg.Fast.RawBaseURL != "" {
		c.raw = &rawClient{http: hc, baseURL: cfg.Fast.RawBaseURL, timeout: cfg.Fast.Timeout}
	}
	if cfg.Embedding.BaseURL != "" {
		c.embed = &rawClient{http: hc, baseURL: cfg.Embedding.BaseURL, timeout: cfg.Embedding.Timeout}
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.fast == nil && cfg.Fast.ModelID != "" {
		fast, err := NewChatModel(ctx, cfg.Fast)
		if err != nil {
			slog.Error("init fast model failed, raw transport only, err = %v", err)
		} else {
			c.fast = fast
		}
	}
	if c.strong == nil && cfg.Strong.ModelID != "" {
		strong, err := NewChatModel(ctx, cfg.Strong)
		if err != nil {
			slog.Error("init strong model failed, err = %v", err)
		} else {
			c.strong = strong
		}
	}
	if cfg.Strong.JSONSchema && c.newSchema == nil {
		c.newSchema = func(ctx context.Context, name string, shape any) (ecmodel.BaseChatModel, error) {
			return NewSchemaModel(ctx, cfg.Strong, name, shape)
		}
	}
	return c, nil
}

// Ready 快速模型至少一条通道可用，且强模型已初始化
func (c *Client) Ready() bool {
	return (c.fast != nil || c.raw != nil) && c.strong != nil
}

// Fast 实现 Gateway
func (c *Client) Fast(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*FastResult, error) {
	var primaryErr error
	if c.fast != nil {
		res, err := c.fastPrimary(ctx, msgs, tools)
		c.metrics.ModelCall(BackendFast, err)
		if err == nil {
			return res, nil
		}
		primaryErr = err
		slog.Error("fast model primary call failed, try raw transport, err = %v", err)
	} else {
		primaryErr = errors.New("primary transport not initialized")
	}

	if c.raw == nil {
		return nil, &model.ModelError{Backend: BackendFast, Detail: "no raw transport configured", Err: primaryErr}
	}
	res, err := c.raw.chat(ctx, c.cfg.Fast.ModelID, msgs, tools)
	c.metrics.ModelCall(BackendRaw, err)
	if err != nil {
		return nil, &model.ModelError{Backend: BackendFast, Detail: "primary and raw transport failed", Err: errors.Join(primaryErr, err)}
	}
	res.Backend = BackendRaw
	return res, nil
}

func (c *Client) fastPrimary(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*FastResult, error) {
	cm := c.fast
	if len(tools) > 0 {
		bound, err := c.fast.WithTools(tools)
		if err != nil {
			return nil, err
		}
		cm = bound
	}

	cctx, cancel := withTimeout(ctx, c.cfg.Fast.Timeout)
	defer cancel()
	msg, err := cm.Generate(c.withCallbacks(cctx, BackendFast), msgs)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, errEmptyResponse
	}

	res := &FastResult{Text: msg.Content, Backend: BackendFast}
	for _, tc := range msg.ToolCalls {
		res.ToolCalls = append(res.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}
	return res, nil
}

// Strong 实现 Gateway
func (c *Client) Strong(ctx context.Context, msgs []*schema.Message, opts ...Option) (string, error) {
	o := &callOptions{}
	for _, opt := range opts {
		opt(o)
	}
	cm := c.strongModel(ctx, o)
	if cm == nil {
		return "", &model.ModelError{Backend: BackendStrong, Detail: "strong model not initialized"}
	}

	var text string
	op := func() error {
		cctx, cancel := withTimeout(ctx, c.cfg.Strong.Timeout)
		defer cancel()
		msg, err := cm.Generate(c.withCallbacks(cctx, BackendStrong), msgs)
		if err != nil {
			slog.Error("strong model generate failed, err = %v", err)
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			return errEmptyResponse
		}
		text = msg.Content
		return nil
	}

	retries := c.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
	c.metrics.ModelCall(BackendStrong, err)
	if err != nil {
		return "", &model.ModelError{Backend: BackendStrong, Detail: "generate failed", Err: err}
	}
	return text, nil
}

// retryable 网络错误、429 与 5xx 可重试，其余 4xx 重试也不会成功
func retryable(err error) bool {
	code := 0
	var se *httpc.StatusError
	var ae *openai.APIError
	var re *openai.RequestError
	switch {
	case errors.As(err, &se):
		code = se.Code
	case errors.As(err, &ae):
		code = ae.HTTPStatusCode
	case errors.As(err, &re):
		code = re.HTTPStatusCode
	}
	if code < http.StatusBadRequest || code >= http.StatusInternalServerError {
		return true
	}
	return code == http.StatusTooManyRequests
}

// strongModel 按需返回结构化模型，创建失败时退回普通强模型
func (c *Client) strongModel(ctx context.Context, o *callOptions) ecmodel.BaseChatModel {
	if o.schemaName == "" || c.newSchema == nil {
		return c.strong
	}
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()
	if cm, ok := c.schemas[o.schemaName]; ok {
		return cm
	}
	cm, err := c.newSchema(ctx, o.schemaName, o.shape)
	if err != nil {
		slog.Error("create schema model failed, schema = %s, err = %v", o.schemaName, err)
		return c.strong
	}
	c.schemas[o.schemaName] = cm
	return cm
}

// Embed 实现 Gateway
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embed == nil {
		return nil, &model.ModelError{Backend: BackendEmbed, Detail: "embedding endpoint not configured"}
	}
	vec, err := c.embed.embed(ctx, c.cfg.Embedding.ModelID, text)
	c.metrics.ModelCall(BackendEmbed, err)
	if err != nil {
		return nil, &model.ModelError{Backend: BackendEmbed, Detail: "embed failed", Err: err}
	}
	return vec, nil
}

func (c *Client) withCallbacks(ctx context.Context, name string) context.Context {
	if len(c.handlers) == 0 {
		return ctx
	}
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      name,
		Type:      "OpenAI",
		Component: components.ComponentOfChatModel,
	}, c.handlers...)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// StrongJSON 调用强模型并解析为 T，任何失败都返回 fallback 的结果
// 第二个返回值表示结果是否来自模型
func StrongJSON[T any](ctx context.Context, g Gateway, msgs []*schema.Message, name string, fallback func() T, validate ...func(*T) error) (T, bool) {
	if g == nil {
		return fallback(), false
	}
	var shape T
	text, err := g.Strong(ctx, msgs, WithSchema(name, &shape))
	if err != nil {
		slog.Error("StrongJSON failed, schema = %s, use fallback, err = %v", name, err)
		return fallback(), false
	}
	out, ok := ParseOr(text, fallback, validate...)
	if !ok {
		slog.Error("StrongJSON parse failed, schema = %s, use fallback, text = %s", name, text)
	}
	return out, ok
}
