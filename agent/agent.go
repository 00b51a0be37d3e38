package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/google/uuid"

	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/agent/coordinator"
	"github.com/hildam/fin-flow-go/agent/execution"
	"github.com/hildam/fin-flow-go/agent/human"
	"github.com/hildam/fin-flow-go/agent/investment"
	"github.com/hildam/fin-flow-go/agent/payments"
	"github.com/hildam/fin-flow-go/agent/risk"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/bus"
	"github.com/hildam/fin-flow-go/repo/checkpoint"
)

// ErrEngineClosed 引擎已关闭，不再接收新的运行
var ErrEngineClosed = errors.New("engine closed")

// 运行路径，用于指标
const (
	pathPipeline = "pipeline"
	pathDegraded = "degraded"
)

// Option 引擎选项
type Option func(*Engine)

// WithAutoApprove 用户交互阶段自动批准
func WithAutoApprove(v bool) Option {
	return func(e *Engine) { e.autoApprove = v }
}

// WithStore 使用外部的检查点存储，便于与清理任务共享
func WithStore(s *checkpoint.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithOnFinish 运行进入终态时回调，参数为最终状态
func WithOnFinish(fn func(st *model.RunState)) Option {
	return func(e *Engine) { e.onFinish = fn }
}

// UserActionRequest 外部提交的用户决定
type UserActionRequest struct {
	UserID        string
	CorrelationID string
	ProposalID    string
	Proposal      map[string]any
	Response      string
	// Kind 为空时按 Response 解析，Response 也为空视为批准
	Kind model.UserActionKind
}

// Action 转换为用户决定
func (r UserActionRequest) Action() model.UserAction {
	text := strings.TrimSpace(r.Response)
	if r.Kind != model.UserActionUnset {
		return model.UserAction{Kind: r.Kind, Text: text}
	}
	if text == "" {
		return model.UserAction{Kind: model.UserActionApprove}
	}
	return model.ParseUserAction(text)
}

// Engine 流水线状态机
// 每个运行一个协程，同一 correlationId 同时只有一个执行者
type Engine struct {
	d           *comm.Deps
	store       *checkpoint.Store
	stages      []comm.Stage
	execution   comm.Stage
	autoApprove bool
	onFinish    func(st *model.RunState)

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewEngine 创建引擎
func NewEngine(d *comm.Deps, opts ...Option) *Engine {
	e := &Engine{
		d: d,
		stages: []comm.Stage{
			payments.NewPayments(d),
			risk.NewRisk(d),
			investment.NewInvestment(d),
			coordinator.NewCoordinator(d),
		},
		execution:   execution.NewExecution(d),
		autoApprove: d.Config.Setting.AutoApprove,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = checkpoint.New()
	}
	e.store.OnChange(d.Metrics.SetCheckpoints)
	return e
}

// Store 检查点存储
func (e *Engine) Store() *checkpoint.Store {
	return e.store
}

// readiness 检查依赖是否初始化
func (e *Engine) readiness() error {
	var missing []string
	if e.d.Tools == nil || !e.d.Tools.Ready() {
		missing = append(missing, "tools")
	}
	if e.d.Models == nil || !e.d.Models.Ready() {
		missing = append(missing, "models")
	}
	if e.d.Bus == nil {
		missing = append(missing, "bus")
	}
	if len(missing) > 0 {
		return &model.ReadinessError{Missing: missing}
	}
	return nil
}

// IsReady 依赖是否全部就绪
func (e *Engine) IsReady() bool {
	return e.readiness() == nil
}

// Health 各依赖的健康状态
func (e *Engine) Health(ctx context.Context) map[string]bool {
	out := map[string]bool{
		"engine":       e.IsReady(),
		"mcp_tools":    e.d.Tools != nil && e.d.Tools.Healthy(ctx),
		"llm":          e.d.Models != nil && e.d.Models.Ready(),
		"broker":       e.d.Broker != nil && e.d.Broker.Ping(ctx) == nil,
		"event_bus":    e.d.Bus != nil,
		"redis":        false,
		"vector_store": false,
	}
	if e.d.Memory != nil {
		for k, v := range e.d.Memory.Health(ctx) {
			out[k] = v
		}
	}
	return out
}

// Subscribe 订阅事件流
func (e *Engine) Subscribe() *bus.Subscription {
	return e.d.Bus.Subscribe()
}

// Unsubscribe 取消订阅
func (e *Engine) Unsubscribe(s *bus.Subscription) {
	e.d.Bus.Unsubscribe(s)
}

// State 读取挂起运行的快照
func (e *Engine) State(correlationID string) (*model.RunState, bool) {
	return e.store.Parked(correlationID)
}

// StartRun 受理入账事件并在后台执行，返回 correlationId
// 同一 correlationId 已存在时拒绝
func (e *Engine) StartRun(ctx context.Context, userID string, amount int64, correlationID string) (string, error) {
	if e.closed.Load() {
		return "", ErrEngineClosed
	}
	if userID == "" || amount <= 0 {
		return "", fmt.Errorf("%w: userId = %q, amount = %d", model.ErrInvalidRequest, userID, amount)
	}
	if correlationID == "" {
		correlationID = "corr-" + uuid.NewString()
	}

	st := model.NewRunState(correlationID, userID, amount)
	if err := e.store.Begin(st); err != nil {
		slog.Error("StartRun rejected, correlationId = %s, err = %v", correlationID, err)
		return "", err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		// 运行不随请求取消
		e.run(context.WithoutCancel(ctx), st)
	}()
	slog.Info("StartRun accepted, correlationId = %s, userId = %s, amount = %d", correlationID, userID, amount)
	return correlationID, nil
}

// SubmitUserAction 提交用户决定，UserID 必须是运行所属用户
// 运行已停在 end 时在后台执行 execution；仍在执行中时记为待处理，由用户交互阶段取用
func (e *Engine) SubmitUserAction(ctx context.Context, req UserActionRequest) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if req.CorrelationID == "" || req.UserID == "" {
		return fmt.Errorf("%w: correlationId = %q, userId = %q", model.ErrInvalidRequest, req.CorrelationID, req.UserID)
	}
	action := req.Action()

	st, resumed, err := e.store.Deliver(req.CorrelationID, req.UserID, action)
	if err != nil {
		return err
	}
	if !resumed {
		slog.Info("SubmitUserAction queued, correlationId = %s, action = %s", req.CorrelationID, action.Kind)
		return nil
	}

	st.UserAction = action
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(context.WithoutCancel(ctx), st)
	}()
	slog.Info("SubmitUserAction resumed, correlationId = %s, action = %s", req.CorrelationID, action.Kind)
	return nil
}

// Wait 等待所有运行结束
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close 停止接收新的运行并等待已有运行结束
func (e *Engine) Close() {
	e.closed.Store(true)
	e.wg.Wait()
}

// run 执行一次完整运行
func (e *Engine) run(ctx context.Context, st *model.RunState) {
	if err := e.readiness(); err != nil {
		slog.Error("run not ready, use degraded path, %s, err = %v", comm.Describe(st), err)
		e.d.Metrics.RunStarted(pathDegraded)
		e.degraded(ctx, st)
		_ = st.Advance(model.StageEnd)
		e.park(ctx, st)
		return
	}

	e.d.Metrics.RunStarted(pathPipeline)
	for _, stage := range e.stages {
		if err := st.Advance(stage.Name()); err != nil {
			e.fail(ctx, st, stage.Name(), err)
			return
		}
		if _, err := e.runStage(ctx, stage, st, false); err != nil {
			e.fail(ctx, st, stage.Name(), err)
			return
		}
	}

	if err := st.Advance(model.StageUserInteraction); err != nil {
		e.fail(ctx, st, model.StageUserInteraction, err)
		return
	}
	if action, ok := e.store.TakePending(st.CorrelationID); ok {
		st.UserAction = action
	}
	if human.Route(st, e.autoApprove) == model.StageExecution {
		e.execute(ctx, st)
		return
	}
	if err := st.Advance(model.StageEnd); err != nil {
		e.fail(ctx, st, model.StageEnd, err)
		return
	}
	e.park(ctx, st)
}

// park 停在 end 释放持有；期间已收到决定则直接执行
// 释放后 st 可能已被 SubmitUserAction 接管，不能再读写
func (e *Engine) park(ctx context.Context, st *model.RunState) {
	desc := comm.Describe(st)
	if action, ok := e.store.Park(st.CorrelationID); ok {
		st.UserAction = action
		e.execute(ctx, st)
		return
	}
	e.d.Metrics.RunFinished(string(model.StageEnd))
	slog.Info("run parked, waiting for user action, %s", desc)
}

// execute 执行阶段，结束后丢弃存储点
func (e *Engine) execute(ctx context.Context, st *model.RunState) {
	if err := st.Advance(model.StageExecution); err != nil {
		e.finishWithError(st, model.StageExecution, err)
		return
	}
	force := st.Degraded || !e.IsReady()
	if _, err := e.runStage(ctx, e.execution, st, force); err != nil {
		e.finishWithError(st, model.StageExecution, err)
		return
	}
	if err := st.Advance(model.StageDone); err != nil {
		e.finishWithError(st, model.StageDone, err)
		return
	}
	e.finish(st)
}

// degraded 降级路径：各阶段直接执行固定工具计划
// 与 force 模式的流水线发布相同顺序的事件
func (e *Engine) degraded(ctx context.Context, st *model.RunState) {
	st.Degraded = true
	for _, stage := range e.stages {
		if _, err := e.runStage(ctx, stage, st, true); err != nil {
			slog.Error("degraded stage failed, %s, stage = %s, err = %v", comm.Describe(st), stage.Name(), err)
		}
	}
}

// fail 流水线中途失败：记录错误，走降级路径给出最终消息后结束
// 运行已按 pipeline 计数，这里不再重复计数
func (e *Engine) fail(ctx context.Context, st *model.RunState, stage model.Stage, err error) {
	slog.Error("run failed, use degraded path, %s, failed stage = %s, err = %v", comm.Describe(st), stage, err)
	st.Fail(stage, err)
	e.degraded(ctx, st)
	e.finish(st)
}

func (e *Engine) finishWithError(st *model.RunState, stage model.Stage, err error) {
	slog.Error("execution failed, %s, stage = %s, err = %v", comm.Describe(st), stage, err)
	st.Fail(stage, err)
	e.finish(st)
}

func (e *Engine) finish(st *model.RunState) {
	e.store.Finish(st.CorrelationID)
	e.d.Metrics.RunFinished(string(st.CurrentStage))
	if e.onFinish != nil {
		e.onFinish(st)
	}
}

// runStage 执行单个阶段，panic 转为 StageError
func (e *Engine) runStage(ctx context.Context, s comm.Stage, st *model.RunState, force bool) (out *model.StageOutput, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("runStage panic, %s, stage = %s, panic = %v", comm.Describe(st), s.Name(), r)
			out, err = nil, &model.StageError{Stage: s.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
		e.d.Metrics.ObserveStage(string(s.Name()), time.Since(start), out != nil && out.UsedFallback)
	}()

	out, err = s.Run(ctx, st, force)
	if err != nil {
		return nil, &model.StageError{Stage: s.Name(), Err: err}
	}
	return out, nil
}
