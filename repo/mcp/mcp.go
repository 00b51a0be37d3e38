package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// ErrToolFailed MCP 工具返回 isError
var ErrToolFailed = errors.New("mcp tool returned error")

// Connect 创建并初始化一个 MCP 客户端
func Connect(ctx context.Context, name string, cfg conf.MCPServerConfig) (client.MCPClient, error) {
	var (
		mcpClient client.MCPClient
		err       error
	)

	slog.Debug("Connect debug, load mcp client = %s, type = %s", name, transportOf(cfg))
	if transportOf(cfg) == transportSSE {
		options := []transport.ClientOption{}
		if len(cfg.Headers) > 0 {
			options = append(options, transport.WithHeaders(parseHeaders(cfg.Headers)))
		}
		var c *client.Client
		c, err = client.NewSSEMCPClient(cfg.URL, options...)
		if err == nil {
			err = c.Start(ctx)
		}
		mcpClient = c
	} else {
		mcpClient, err = client.NewStdioMCPClient(cfg.Command, envList(cfg.Env), cfg.Args...)
	}
	if err != nil {
		slog.Error("Connect failed, name = %s, err = %v", name, err)
		return nil, fmt.Errorf("failed to create MCP client for %s: %w", name, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	initRequest := mcpgo.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcpgo.Implementation{
		Name:    "fin-flow-go",
		Version: "0.1.0",
	}
	initRequest.Params.Capabilities = mcpgo.ClientCapabilities{}

	if _, err = mcpClient.Initialize(initCtx, initRequest); err != nil {
		_ = mcpClient.Close()
		slog.Error("Connect failed, initialize name = %s, err = %v", name, err)
		return nil, fmt.Errorf("failed to initialize MCP client for %s: %w", name, err)
	}
	return mcpClient, nil
}

// ListToolInfos 列出服务端工具并转为 eino ToolInfo
func ListToolInfos(ctx context.Context, cli client.MCPClient) ([]*schema.ToolInfo, error) {
	resp, err := cli.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools failed: %w", err)
	}

	infos := make([]*schema.ToolInfo, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		params, err := convertMCPSchemaToEinoParams(t.InputSchema)
		if err != nil {
			slog.Error("ListToolInfos failed, convert schema of %s err = %v", t.Name, err)
			continue
		}
		infos = append(infos, &schema.ToolInfo{Name: t.Name, Desc: t.Description, ParamsOneOf: params})
	}
	slog.Debug("ListToolInfos debug, found %d tools", len(infos))
	return infos, nil
}

// CallTool 调用工具，返回文本内容拼接后的结果
func CallTool(ctx context.Context, cli client.MCPClient, name string, args map[string]any) (string, error) {
	callReq := mcpgo.CallToolRequest{}
	callReq.Params.Name = name
	callReq.Params.Arguments = args

	resp, err := cli.CallTool(ctx, callReq)
	if err != nil {
		return "", fmt.Errorf("MCP tool call failed: %w", err)
	}

	text := contentText(resp.Content)
	if resp.IsError {
		return "", fmt.Errorf("%w: %s", ErrToolFailed, text)
	}
	return text, nil
}

// contentText 提取文本内容
func contentText(contents []mcpgo.Content) string {
	parts := make([]string, 0, len(contents))
	for _, c := range contents {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			if b, err := json.Marshal(v); err == nil {
				parts = append(parts, string(b))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// convertMCPSchemaToEinoParams 将MCP的InputSchema转换为eino的ParamsOneOf
func convertMCPSchemaToEinoParams(inputSchema mcpgo.ToolInputSchema) (*schema.ParamsOneOf, error) {
	schemaBytes, err := json.Marshal(inputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input schema: %w", err)
	}

	var schemaMap map[string]interface{}
	if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to map: %w", err)
	}

	// 确保schema有type字段，空串按缺失处理
	if !hasSchemaType(schemaMap) {
		schemaMap["type"] = "object"
	}

	// 缺少 type 的字段按 string 处理
	if properties, ok := schemaMap["properties"].(map[string]interface{}); ok {
		for _, propValue := range properties {
			if propMap, ok := propValue.(map[string]interface{}); ok && !hasSchemaType(propMap) {
				propMap["type"] = "string"
			}
		}
	}

	fixedSchemaBytes, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fixed schema: %w", err)
	}

	var openAPISchema openapi3.Schema
	if err := json.Unmarshal(fixedSchemaBytes, &openAPISchema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to OpenAPI schema: %w", err)
	}
	return schema.NewParamsOneOfByOpenAPIV3(&openAPISchema), nil
}

func hasSchemaType(m map[string]interface{}) bool {
	if v, ok := m["type"]; ok {
		if t, isStr := v.(string); !isStr || t != "" {
			return true
		}
	}
	_, hasAnyOf := m["anyOf"]
	return hasAnyOf
}
