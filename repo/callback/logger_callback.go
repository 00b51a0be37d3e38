package callback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/callbacks"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/protocol/sse"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/bus"
	"github.com/hildam/fin-flow-go/repo/metrics"
)

// ModelLogger 模型调用日志回调，记录输入规模、工具调用与 token 用量
type ModelLogger struct {
	callbacks.HandlerBuilder // 可以用 callbacks.HandlerBuilder 来辅助实现 callback

	Metrics *metrics.Metrics
}

// OnStart 模型调用开始
func (cb *ModelLogger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	in := ecmodel.ConvCallbackInput(input)
	if in == nil {
		return ctx
	}
	slog.Debug("[OnStart] model = %s, messages = %d, tools = %d", info.Name, len(in.Messages), len(in.Tools))
	return ctx
}

// OnEnd 模型调用结束，记录工具调用与 token 用量
func (cb *ModelLogger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	out := ecmodel.ConvCallbackOutput(output)
	if out == nil {
		return ctx
	}
	if out.Message != nil && len(out.Message.ToolCalls) > 0 {
		names := make([]string, 0, len(out.Message.ToolCalls))
		for _, tc := range out.Message.ToolCalls {
			names = append(names, tc.Function.Name)
		}
		slog.Debug("[OnEnd] model = %s, tool_calls = %v", info.Name, names)
	}
	if out.TokenUsage != nil {
		cb.Metrics.ModelTokens(info.Name, out.TokenUsage.PromptTokens, out.TokenUsage.CompletionTokens)
	}
	return ctx
}

// OnError 模型调用出错
func (cb *ModelLogger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	slog.Error("[OnError] model = %s, err = %v", info.Name, err)
	return ctx
}

// OnEndWithStreamOutput 流式输出不使用，直接关闭
func (cb *ModelLogger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}

// OnStartWithStreamInput 流式输入不使用，直接关闭
func (cb *ModelLogger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	defer input.Close()
	return ctx
}

// EventPusher 将总线事件推送给客户端
type EventPusher struct {
	ID  string      // 关联ID，为空时推送全部事件
	SSE *sse.Writer // SSE写入器，用于向客户端推送实时流式数据
	Out chan string // 输出通道，用于命令行打印
}

// Push 推送单个事件
// 将事件序列化后通过SSE和输出通道进行双路推送
func (p *EventPusher) Push(ctx context.Context, ev model.Event) error {
	if p.ID != "" && ev.CorrelationID != p.ID {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Push failed, marshal event err = %+v, event = %+v", err, ev)
		return err
	}
	if p.SSE != nil {
		if err := p.SSE.WriteEvent(ev.ID, ev.Name, data); err != nil {
			return err
		}
	}
	if p.Out != nil {
		select {
		case p.Out <- fmt.Sprintf("[%s] %s", ev.Name, data):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Pump 持续推送订阅上的事件，直到 ctx 结束、订阅关闭或写入失败
// stop 返回 true 时推送完当前事件后退出
func (p *EventPusher) Pump(ctx context.Context, sub *bus.Subscription, stop func(model.Event) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := p.Push(ctx, ev); err != nil {
				return err
			}
			if stop != nil && (p.ID == "" || ev.CorrelationID == p.ID) && stop(ev) {
				return nil
			}
		}
	}
}
