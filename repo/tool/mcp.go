package tool

import (
	"context"
	"encoding/json"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/repo/mcp"
	"github.com/hildam/fin-flow-go/repo/metrics"
	"github.com/mark3labs/mcp-go/client"
)

// MCPGateway 通过 MCP 协议调用工具，工具名即路径
type MCPGateway struct {
	cfg     conf.ToolConfig
	cli     client.MCPClient
	metrics *metrics.Metrics
}

// NewMCP 连接 MCP 服务并用服务端声明更新工具目录
func NewMCP(ctx context.Context, cfg conf.ToolConfig, server conf.MCPServerConfig, opts ...Option) (*MCPGateway, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	cli, err := mcp.Connect(ctx, cfg.MCPServer, server)
	if err != nil {
		return nil, err
	}
	if infos, err := mcp.ListToolInfos(ctx, cli); err != nil {
		slog.Error("NewMCP list tools failed, keep local catalog, err = %v", err)
	} else {
		slog.Info("NewMCP merged %d tool declarations from %s", Merge(infos), cfg.MCPServer)
	}
	return &MCPGateway{cfg: cfg, cli: cli, metrics: o.metrics}, nil
}

// Call 实现 Gateway
func (g *MCPGateway) Call(ctx context.Context, path string, payload map[string]any) (*Result, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	text, err := mcp.CallTool(ctx, g.cli, path, payload)
	if err != nil {
		err = toToolError(path, err)
		g.metrics.ToolCall(path, err)
		slog.Error("mcp tool call failed, path = %s, err = %v", path, err)
		return nil, err
	}

	body := []byte(text)
	if !json.Valid(body) {
		// 纯文本结果包装为对象
		body, _ = json.Marshal(map[string]string{"text": text})
	}
	res, err := decodeResult(path, body)
	g.metrics.ToolCall(path, err)
	return res, err
}

// Healthy MCP ping
func (g *MCPGateway) Healthy(ctx context.Context) bool {
	if g.cfg.HealthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.HealthTimeout)
		defer cancel()
	}
	if err := g.cli.Ping(ctx); err != nil {
		slog.Error("mcp health check failed, err = %v", err)
		return false
	}
	return true
}

func (g *MCPGateway) Ready() bool { return g.cli != nil }

func (g *MCPGateway) Close() error {
	if g.cli == nil {
		return nil
	}
	return g.cli.Close()
}

var _ Gateway = (*MCPGateway)(nil)
