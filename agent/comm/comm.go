package comm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/broker"
	"github.com/hildam/fin-flow-go/repo/bus"
	"github.com/hildam/fin-flow-go/repo/llm"
	"github.com/hildam/fin-flow-go/repo/memory"
	"github.com/hildam/fin-flow-go/repo/metrics"
	"github.com/hildam/fin-flow-go/repo/tool"
)

// Deps 各阶段共享的依赖，启动时构造一次
// 除 Bus 外均可为 nil，缺失的依赖按失败处理并走兜底
type Deps struct {
	Tools   tool.Gateway
	Models  llm.Gateway
	Memory  memory.Gateway
	Broker  broker.Broker
	Bus     *bus.Bus
	Metrics *metrics.Metrics
	Config  conf.AppConfig
}

// Stage 流水线中的一个阶段
type Stage interface {
	Name() model.Stage
	// Run 执行阶段并返回结果，force 为 true 时不询问模型，直接执行固定工具计划
	Run(ctx context.Context, st *model.RunState, force bool) (*model.StageOutput, error)
}

// ModifyInputFunc 输入消息修改函数，超长内容只保留末尾部分
func ModifyInputFunc(ctx context.Context, maxLimit int, inputList []*schema.Message) []*schema.Message {
	if maxLimit <= 0 {
		return inputList
	}
	sum := 0
	for _, input := range inputList {
		if input == nil {
			slog.Debug("ModifyInputFunc debug, input is nil")
			continue
		}

		length := len(input.Content)
		if length > maxLimit {
			slog.Debug("ModifyInputFunc debug, input content length is %d, max limit token is %d", length, maxLimit)
			// 截断, 取后半段部分的最新信息
			start := length - maxLimit
			for start < length && !utf8.RuneStart(input.Content[start]) {
				start++
			}
			input.Content = input.Content[start:]
		}

		sum += len(input.Content)
	}

	slog.Debug("ModifyInputFunc debug, input content sum length is %d", sum)
	return inputList
}

// SelectTools 让 fast 模型在给定工具中选择调用
// 只保留声明过的工具，名称转换回工具路径；模型不可用时返回错误
func (d *Deps) SelectTools(ctx context.Context, msgs []*schema.Message, infos []*schema.ToolInfo) ([]llm.ToolCall, error) {
	if d.Models == nil || !d.Models.Ready() {
		return nil, &model.ModelError{Backend: llm.BackendFast, Detail: "model gateway not ready"}
	}
	msgs = ModifyInputFunc(ctx, d.Config.Setting.MaxLimitToken, msgs)

	res, err := d.Models.Fast(ctx, msgs, infos)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(infos))
	for _, info := range infos {
		allowed[info.Name] = true
	}
	calls := make([]llm.ToolCall, 0, len(res.ToolCalls))
	for _, call := range res.ToolCalls {
		if !allowed[call.Name] && !allowed[tool.ModelName(call.Name)] {
			slog.Info("SelectTools drop undeclared tool call, name = %s", call.Name)
			continue
		}
		if path, ok := tool.PathOf(call.Name); ok {
			call.Name = path
		}
		if call.Arguments == nil {
			call.Arguments = map[string]any{}
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// Strong 调用强模型，输入先按长度限制截断
func (d *Deps) Strong(ctx context.Context, msgs []*schema.Message) (string, error) {
	if d.Models == nil {
		return "", &model.ModelError{Backend: llm.BackendStrong, Detail: "model gateway not configured"}
	}
	return d.Models.Strong(ctx, ModifyInputFunc(ctx, d.Config.Setting.MaxLimitToken, msgs))
}

// CallTool 调用金融工具
// 调用次数由网关按传输记录，这里只记录网关缺失的情况
func (d *Deps) CallTool(ctx context.Context, path string, payload map[string]any) (*tool.Result, error) {
	if d.Tools == nil {
		err := tool.NotConfigured(path)
		d.Metrics.ToolCall(path, err)
		return nil, err
	}
	res, err := d.Tools.Call(ctx, path, payload)
	if err != nil {
		slog.Error("CallTool failed, path = %s, err = %v", path, err)
	}
	return res, err
}

// Emit 向总线发布事件
func (d *Deps) Emit(name, correlationID string, data any) {
	if d.Bus == nil {
		return
	}
	if err := d.Bus.Publish(model.NewEvent(name, correlationID, data)); err != nil {
		slog.Error("Emit failed, event = %s, correlationId = %s, err = %v", name, correlationID, err)
	}
}

// EmitOutput 发布阶段结果的 agent-output 事件
func (d *Deps) EmitOutput(st *model.RunState, out *model.StageOutput) {
	d.Emit(consts.EventAgentOutput, st.CorrelationID, model.AgentOutputEvent{
		Agent:         out.AgentName,
		Action:        out.Action,
		Message:       out.HumanMessage,
		Result:        out.Payload,
		CorrelationID: st.CorrelationID,
		UsedFallback:  out.UsedFallback,
	})
}

// Publish 尽力而为地向消息代理发布领域事件
func (d *Deps) Publish(ctx context.Context, topic string, payload any) {
	broker.Publish(ctx, d.Broker, d.Metrics, d.Config.Broker.PublishTimeout, topic, payload)
}

// Calls 一个阶段内的工具调用集合，相同路径与参数只调用一次，可并发使用
type Calls struct {
	d *Deps

	mu      sync.Mutex
	results map[string]callResult
}

type callResult struct {
	res *tool.Result
	err error
}

// NewCalls 创建调用集合
func (d *Deps) NewCalls() *Calls {
	return &Calls{d: d, results: make(map[string]callResult)}
}

// Ensure 返回已有结果，没有则发起调用
func (c *Calls) Ensure(ctx context.Context, path string, payload map[string]any) (*tool.Result, error) {
	key := callKey(path, payload)
	c.mu.Lock()
	if r, ok := c.results[key]; ok {
		c.mu.Unlock()
		return r.res, r.err
	}
	c.mu.Unlock()

	res, err := c.d.CallTool(ctx, path, payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.results[key]; ok {
		return r.res, r.err
	}
	c.results[key] = callResult{res: res, err: err}
	return res, err
}

// Len 实际发起的调用数
func (c *Calls) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func callKey(path string, payload map[string]any) string {
	data, _ := json.Marshal(payload)
	return path + "#" + string(data)
}

// Binder 把模型给出的参数改写为阶段允许的参数，返回 false 表示丢弃该调用
type Binder func(call llm.ToolCall) (map[string]any, bool)

// RunSelected 执行模型选择的调用，返回被接受的数量
func (c *Calls) RunSelected(ctx context.Context, calls []llm.ToolCall, bind Binder) int {
	n := 0
	for _, call := range calls {
		payload, ok := bind(call)
		if !ok {
			slog.Info("RunSelected drop tool call, name = %s", call.Name)
			continue
		}
		_, _ = c.Ensure(ctx, call.Name, payload)
		n++
	}
	return n
}

// FormatAmount 千分位格式，25000 -> 25,000
func FormatAmount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// FormatTL 金额加货币符号
func FormatTL(n int64) string {
	return FormatAmount(n) + "₺"
}

// StringArg 读取模型参数中的字符串
func StringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Describe 用于日志的简短描述
func Describe(st *model.RunState) string {
	return fmt.Sprintf("correlationId = %s, userId = %s, stage = %s", st.CorrelationID, st.UserID, st.CurrentStage)
}

// ProposalsJSON 各代理的建议汇总，供提示词使用
func ProposalsJSON(st *model.RunState) string {
	out := make(map[string]any, 3)
	for _, stage := range []model.Stage{model.StagePayments, model.StageRisk, model.StageInvestment} {
		o, ok := st.Output(stage)
		if !ok {
			continue
		}
		out[o.AgentName] = map[string]any{
			"action":  o.Action,
			"message": o.HumanMessage,
			"payload": o.Payload,
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ProposalAmount 已批准的转账金额，没有提案时为 0
func ProposalAmount(st *model.RunState) int64 {
	if p := st.Proposal(); p != nil {
		return p.Amount
	}
	return 0
}
