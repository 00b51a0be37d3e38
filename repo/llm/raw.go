package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/hildam/fin-flow-go/repo/httpc"
)

// rawClient 直接调用模型后端的原生接口（Ollama /api/chat、/api/embeddings）
type rawClient struct {
	http    *httpc.Client
	baseURL string
	timeout time.Duration
}

type rawMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	ToolCalls []rawToolCall `json:"tool_calls,omitempty"`
}

type rawToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type rawTool struct {
	Type     string          `json:"type"`
	Function rawToolFunction `json:"function"`
}

type rawToolFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

type rawChatRequest struct {
	Model    string       `json:"model"`
	Messages []rawMessage `json:"messages"`
	Tools    []rawTool    `json:"tools,omitempty"`
	Stream   bool         `json:"stream"`
}

type rawChatResponse struct {
	Message rawMessage `json:"message"`
}

// chat 调用 /api/chat
func (r *rawClient) chat(ctx context.Context, modelID string, msgs []*schema.Message, tools []*schema.ToolInfo) (*FastResult, error) {
	req := rawChatRequest{Model: modelID, Stream: false}
	for _, m := range msgs {
		req.Messages = append(req.Messages, rawMessage{Role: string(m.Role), Content: m.Content})
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, rawTool{
			Type: "function",
			Function: rawToolFunction{
				Name:        t.Name,
				Description: t.Desc,
				Parameters:  toolParameters(t),
			},
		})
	}

	body, err := r.http.PostJSON(ctx, strings.TrimRight(r.baseURL, "/")+"/api/chat", req, r.timeout)
	if err != nil {
		return nil, err
	}
	var resp rawChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode chat response failed: %w", err)
	}

	out := &FastResult{Text: resp.Message.Content}
	for i, tc := range resp.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("raw-%d", i),
			Name:      tc.Function.Name,
			Arguments: decodeArguments(string(tc.Function.Arguments)),
		})
	}
	return out, nil
}

type rawEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type rawEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// embed 调用 /api/embeddings
func (r *rawClient) embed(ctx context.Context, modelID, text string) ([]float32, error) {
	body, err := r.http.PostJSON(ctx, strings.TrimRight(r.baseURL, "/")+"/api/embeddings", rawEmbedRequest{Model: modelID, Prompt: text}, r.timeout)
	if err != nil {
		return nil, err
	}
	var resp rawEmbedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode embedding response failed: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// toolParameters 工具参数转为 JSON Schema，失败时退化为空对象
func toolParameters(t *schema.ToolInfo) any {
	if t.ParamsOneOf == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	s, err := t.ParamsOneOf.ToOpenAPIV3()
	if err != nil || s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return s
}

// decodeArguments 解析工具参数，兼容字符串化的 JSON 与对象
func decodeArguments(raw string) map[string]any {
	args := map[string]any{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args
	}
	// ollama 返回对象，openai 兼容接口返回字符串
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		raw = s
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		if cleaned := ExtractJSON(raw); cleaned != "" {
			_ = json.Unmarshal([]byte(cleaned), &args)
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args
}
