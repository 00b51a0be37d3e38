package mcp

import (
	"fmt"
	"strings"

	"github.com/hildam/fin-flow-go/entity/conf"
)

// MCP 传输类型
const (
	transportStdio = "stdio"
	transportSSE   = "sse"
)

// transportOf 配置了 URL 的按 SSE 连接，否则按 stdio 启动子进程
func transportOf(cfg conf.MCPServerConfig) string {
	if cfg.URL != "" {
		return transportSSE
	}
	return transportStdio
}

// parseHeaders 解析 "Key: Value" 形式的请求头
func parseHeaders(lines []string) map[string]string {
	headers := make(map[string]string, len(lines))
	for _, header := range lines {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return headers
}

// envList map 形式的环境变量转为 KEY=VALUE 列表
func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
