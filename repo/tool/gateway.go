package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/httpc"
	"github.com/hildam/fin-flow-go/repo/metrics"
)

// Gateway 金融工具网关
type Gateway interface {
	// Call 调用工具，失败返回 *model.ToolError
	Call(ctx context.Context, path string, payload map[string]any) (*Result, error)
	// Healthy 工具服务是否可达
	Healthy(ctx context.Context) bool
	// Ready 网关是否完成初始化
	Ready() bool
	Close() error
}

// Option 网关选项
type Option func(*options)

type options struct {
	metrics *metrics.Metrics
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New 按配置创建网关，transport 为 mcp 时连接 MCP 服务，否则走 HTTP
func New(ctx context.Context, cfg conf.AppConfig, opts ...Option) (Gateway, error) {
	switch strings.ToLower(cfg.Tool.Transport) {
	case "mcp":
		server, ok := cfg.MCP.Servers[cfg.Tool.MCPServer]
		if !ok {
			return nil, fmt.Errorf("mcp server %q not configured", cfg.Tool.MCPServer)
		}
		return NewMCP(ctx, cfg.Tool, server, opts...)
	case "", "http":
		return NewHTTP(cfg.Tool, opts...)
	default:
		return nil, fmt.Errorf("unknown tool transport %q", cfg.Tool.Transport)
	}
}

// decodeResult 校验响应为 JSON 对象
func decodeResult(path string, body []byte) (*Result, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, &model.ToolError{Path: path, Detail: "invalid json response", Err: err}
	}
	return &Result{Path: path, Raw: body}, nil
}

// toToolError 将传输层错误归类为 ToolError
func toToolError(path string, err error) error {
	var te *model.ToolError
	if errors.As(err, &te) {
		return err
	}
	var se *httpc.StatusError
	switch {
	case errors.As(err, &se):
		return &model.ToolError{Path: path, Detail: fmt.Sprintf("status %d", se.Code), Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &model.ToolError{Path: path, Detail: "timeout", Err: err}
	default:
		return &model.ToolError{Path: path, Detail: "transport error", Err: err}
	}
}

// NotConfigured 未初始化的网关调用返回的错误
func NotConfigured(path string) error {
	return &model.ToolError{Path: path, Detail: "tool gateway not configured"}
}
