// Package llmtest 提供测试用的模型网关
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/llm"
)

// Gateway 可编程的 llm.Gateway
// 未设置的函数：Fast 返回无工具调用，Strong 与 Embed 返回错误
type Gateway struct {
	FastFunc   func(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*llm.FastResult, error)
	StrongFunc func(ctx context.Context, msgs []*schema.Message) (string, error)
	EmbedFunc  func(ctx context.Context, text string) ([]float32, error)
	NotReady   bool

	mu          sync.Mutex
	fastCalls   int
	strongCalls int
	strongMsgs  [][]*schema.Message
}

var _ llm.Gateway = (*Gateway)(nil)

func (g *Gateway) Fast(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*llm.FastResult, error) {
	g.mu.Lock()
	g.fastCalls++
	g.mu.Unlock()
	if g.FastFunc != nil {
		return g.FastFunc(ctx, msgs, tools)
	}
	return &llm.FastResult{Backend: llm.BackendFast}, nil
}

func (g *Gateway) Strong(ctx context.Context, msgs []*schema.Message, _ ...llm.Option) (string, error) {
	g.mu.Lock()
	g.strongCalls++
	g.strongMsgs = append(g.strongMsgs, msgs)
	g.mu.Unlock()
	if g.StrongFunc != nil {
		return g.StrongFunc(ctx, msgs)
	}
	return "", &model.ModelError{Backend: llm.BackendStrong, Detail: "not configured"}
}

func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.EmbedFunc != nil {
		return g.EmbedFunc(ctx, text)
	}
	return nil, errors.New("embedding not configured")
}

func (g *Gateway) Ready() bool { return !g.NotReady }

// FastCalls Fast 调用次数
func (g *Gateway) FastCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fastCalls
}

// StrongCalls Strong 调用次数
func (g *Gateway) StrongCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.strongCalls
}

// StrongMessages 每次 Strong 调用的输入
func (g *Gateway) StrongMessages() [][]*schema.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]*schema.Message(nil), g.strongMsgs...)
}

// CallTools 返回调用指定工具的 FastFunc
func CallTools(calls ...llm.ToolCall) func(context.Context, []*schema.Message, []*schema.ToolInfo) (*llm.FastResult, error) {
	return func(context.Context, []*schema.Message, []*schema.ToolInfo) (*llm.FastResult, error) {
		return &llm.FastResult{ToolCalls: calls, Backend: llm.BackendFast}, nil
	}
}
