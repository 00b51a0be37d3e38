package tool

import (
	"context"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/repo/httpc"
	"github.com/hildam/fin-flow-go/repo/metrics"
)

// HTTPGateway 通过 POST {base}/{path} 调用工具
type HTTPGateway struct {
	cfg     conf.ToolConfig
	http    *httpc.Client
	metrics *metrics.Metrics
}

// NewHTTP 创建 HTTP 网关
func NewHTTP(cfg conf.ToolConfig, opts ...Option) (*HTTPGateway, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 6 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	hc, err := httpc.New(cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &HTTPGateway{cfg: cfg, http: hc, metrics: o.metrics}, nil
}

// Call 实现 Gateway
func (g *HTTPGateway) Call(ctx context.Context, path string, payload map[string]any) (*Result, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := g.http.PostJSON(ctx, g.url(path), payload, g.cfg.Timeout)
	if err != nil {
		err = toToolError(path, err)
		g.metrics.ToolCall(path, err)
		slog.Error("tool call failed, path = %s, err = %v", path, err)
		return nil, err
	}
	res, err := decodeResult(path, body)
	g.metrics.ToolCall(path, err)
	if err != nil {
		slog.Error("tool call failed, path = %s, err = %v", path, err)
		return nil, err
	}
	slog.Debug("tool call success, path = %s, result = %s", path, body)
	return res, nil
}

// Healthy GET {base}/health
func (g *HTTPGateway) Healthy(ctx context.Context) bool {
	body, err := g.http.Get(ctx, g.url("health"), g.cfg.HealthTimeout)
	if err != nil {
		slog.Error("tool health check failed, err = %v", err)
		return false
	}
	res, err := decodeResult("health", body)
	return err == nil && res.Get("status").String() == "ok"
}

// Ready 配置了地址即可用
func (g *HTTPGateway) Ready() bool {
	return g.cfg.BaseURL != ""
}

func (g *HTTPGateway) Close() error { return nil }

func (g *HTTPGateway) url(path string) string {
	return strings.TrimRight(g.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

var _ Gateway = (*HTTPGateway)(nil)
