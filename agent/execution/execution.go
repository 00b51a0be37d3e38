package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HildaM/logs/slog"

	"github.com/hildam/fin-flow-go/agent/analyzer"
	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/agent/planner"
	"github.com/hildam/fin-flow-go/agent/reporter"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
)

// ErrNoUserAction 执行阶段需要用户决定
var ErrNoUserAction = errors.New("execution requires a user action")

// rejectTemplate 全部拒绝时返回给用户的消息
const rejectTemplate = `Tüm finansal önerileriniz reddedildi.

Kullanıcı: %s
Red Tarihi: %s
Correlation ID: %s
Orijinal Öneri: %s

Durum: Tüm öneriler reddedildi
İşlem: Hiçbir agent çalıştırılmadı`

// executionImpl 执行代理，根据用户决定执行提案、记录拒绝或处理自定义回复
type executionImpl struct {
	d        *comm.Deps
	handlers map[model.Intent]intentHandler
	now      func() time.Time
}

// NewExecution 创建实例
func NewExecution(d *comm.Deps) comm.Stage {
	e := &executionImpl{d: d, now: time.Now}
	e.handlers = map[model.Intent]intentHandler{
		model.IntentPayments:   e.handlePayments,
		model.IntentRisk:       e.handleRisk,
		model.IntentInvestment: e.handleInvestment,
		model.IntentGeneral:    e.handleGeneral,
	}
	return e
}

func (e *executionImpl) Name() model.Stage { return model.StageExecution }

// Run 写入 execution 结果与 finalResult，阶段推进由引擎负责
func (e *executionImpl) Run(ctx context.Context, st *model.RunState, force bool) (*model.StageOutput, error) {
	var (
		res          *model.ExecutionResult
		usedFallback bool
	)
	switch st.UserAction.Kind {
	case model.UserActionApprove:
		res, usedFallback = e.approve(ctx, st, force)
	case model.UserActionReject:
		res = e.reject(st)
	case model.UserActionCustom:
		res, usedFallback = e.custom(ctx, st, force)
	default:
		return nil, ErrNoUserAction
	}

	out := &model.StageOutput{
		AgentName:    consts.ExecutionAgent,
		Action:       consts.ActionExecutionCompleted,
		Payload:      res,
		HumanMessage: res.Message,
		UsedFallback: usedFallback,
	}
	st.FinalResult = res
	st.SetOutput(model.StageExecution, out)

	e.d.Emit(consts.EventExecution, st.CorrelationID, model.ExecutionEvent{
		Type:          consts.ExecutionResultType,
		UserID:        st.UserID,
		CorrelationID: st.CorrelationID,
		Result:        res,
	})
	e.d.Publish(ctx, consts.TopicPaymentsExecuted, map[string]any{
		"userId":        st.UserID,
		"correlationId": st.CorrelationID,
		"decision":      res.Decision,
		"status":        res.Status,
		"result":        res,
	})
	if e.d.Memory != nil {
		e.d.Memory.SetRecentAction(ctx, st.UserID, map[string]any{
			"action":        string(st.UserAction.Kind),
			"text":          st.UserAction.Text,
			"status":        res.Status,
			"correlationId": st.CorrelationID,
			"timestamp":     e.now().Unix(),
		})
	}
	slog.Info("execution done, %s, decision = %s, status = %s", comm.Describe(st), res.Decision, res.Status)
	return out, nil
}

// approve 生成执行计划，逐步执行并汇总报告
func (e *executionImpl) approve(ctx context.Context, st *model.RunState, force bool) (*model.ExecutionResult, bool) {
	plan, planFromModel := planner.BuildPlan(ctx, e.d, st, st.UserAction.Text, force)

	actions := make([]model.AgentAction, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		action := e.runStep(ctx, st, step)
		e.emitAction(st, action, !planFromModel)
		actions = append(actions, action)
	}

	report, reportFromModel := reporter.BuildReport(ctx, e.d, st, plan, actions, force)
	e.d.Emit(consts.EventFinalResultReport, st.CorrelationID, model.FinalReportEvent{
		Type:             "final_result_report",
		UserID:           st.UserID,
		CorrelationID:    st.CorrelationID,
		Report:           report,
		ExecutionResults: actions,
		AnalysisResult:   plan,
	})
	e.d.Emit(consts.EventAllProposalsApproved, st.CorrelationID, model.ProposalsApprovedEvent{
		Type:             consts.ActionProposalsApproved,
		UserID:           st.UserID,
		Analysis:         plan,
		ExecutionResults: actions,
		CorrelationID:    st.CorrelationID,
	})

	return &model.ExecutionResult{
		Type:          consts.ExecutionResultType,
		UserID:        st.UserID,
		CorrelationID: st.CorrelationID,
		Decision:      model.UserActionApprove,
		Status:        report.Status,
		Message:       report.Summary,
		Plan:          plan,
		Actions:       actions,
		Report:        report,
	}, !planFromModel || !reportFromModel
}

// runStep 执行计划中的一步，失败写入 Error 不中断后续步骤
func (e *executionImpl) runStep(ctx context.Context, st *model.RunState, step model.PlanStep) model.AgentAction {
	switch step.Agent {
	case consts.PaymentsAgent:
		// 金额始终以存储的提案为准
		amount := comm.ProposalAmount(st)
		res, err := e.d.CallTool(ctx, consts.ToolSavingsCreateTransfer, map[string]any{
			"userId":      st.UserID,
			"fromAccount": comm.StringArg(step.Parameters, "from", consts.CheckingAccount),
			"toSavingsId": comm.StringArg(step.Parameters, "to", consts.SavingsAccount),
			"amount":      amount,
		})
		if err != nil {
			return failed(step, err)
		}
		return model.AgentAction{
			Agent:   step.Agent,
			Action:  step.Action,
			Message: fmt.Sprintf("Transfer %s başarıyla gerçekleştirildi.", comm.FormatTL(amount)),
			Result:  res,
			Amount:  amount,
		}
	case consts.RiskAgent:
		res, err := e.d.CallTool(ctx, consts.ToolRiskPerformAnalysis, map[string]any{
			"userId":       st.UserID,
			"analysisType": comm.StringArg(step.Parameters, "analysisType", consts.ComprehensiveAnalysisType),
		})
		if err != nil {
			return failed(step, err)
		}
		score := "N/A"
		if s := res.Get("analysis.overallScore"); s.Exists() {
			score = s.String()
		}
		return model.AgentAction{
			Agent:   step.Agent,
			Action:  step.Action,
			Message: fmt.Sprintf("Risk analizi tamamlandı. Skor: %s", score),
			Result:  res,
		}
	case consts.InvestmentAgent:
		pref := comm.StringArg(step.Parameters, "preferredInvestment", consts.AssetBond)
		result, err := e.updatePreference(ctx, st, pref, intArg(step.Parameters, "allocation", consts.DefaultAllocation))
		if err != nil {
			return failed(step, err)
		}
		return model.AgentAction{
			Agent:   step.Agent,
			Action:  step.Action,
			Message: fmt.Sprintf("%s yatırım tercihi güncellendi.", pref),
			Result:  result,
		}
	}
	return failed(step, fmt.Errorf("unknown agent %s", step.Agent))
}

// updatePreference 更新投资偏好并查询对应行情，行情失败不影响结果
func (e *executionImpl) updatePreference(ctx context.Context, st *model.RunState, pref string, allocation int) (map[string]any, error) {
	res, err := e.d.CallTool(ctx, consts.ToolInvestmentUpdatePref, map[string]any{
		"userId":              st.UserID,
		"preferredInvestment": pref,
		"allocation":          allocation,
	})
	if err != nil {
		return nil, err
	}
	result := map[string]any{"preference": res}
	quotes, err := e.d.CallTool(ctx, consts.ToolMarketQuotes, map[string]any{
		"assetType": pref,
		"tenor":     consts.DefaultQuoteTenor,
	})
	if err != nil {
		slog.Error("execution quotes failed, %s, asset = %s, err = %v", comm.Describe(st), pref, err)
	} else {
		result["quotes"] = quotes
	}
	return result, nil
}

// reject 记录拒绝，不调用任何工具
func (e *executionImpl) reject(st *model.RunState) *model.ExecutionResult {
	msg := fmt.Sprintf(rejectTemplate, st.UserID, e.now().Format("2006-01-02 15:04:05"), st.CorrelationID, st.FinalMessage)
	e.d.Emit(consts.EventAllProposalsRejected, st.CorrelationID, model.ProposalsRejectedEvent{
		UserID:        st.UserID,
		Message:       msg,
		CorrelationID: st.CorrelationID,
		Status:        consts.StatusRejected,
	})
	return &model.ExecutionResult{
		Type:          consts.ExecutionResultType,
		UserID:        st.UserID,
		CorrelationID: st.CorrelationID,
		Decision:      model.UserActionReject,
		Status:        consts.StatusRejected,
		Message:       msg,
	}
}

// custom 分析用户回复，按意图交给对应处理函数
func (e *executionImpl) custom(ctx context.Context, st *model.RunState, force bool) (*model.ExecutionResult, bool) {
	text := st.UserAction.Text
	analysis := analyzer.Analyze(ctx, e.d, st, text, force)

	handler, ok := e.handlers[analysis.Intent]
	if !ok {
		handler = e.handleGeneral
	}
	action := handler(ctx, st, analysis)
	e.emitAction(st, action, analysis.UsedFallback)
	e.d.Emit(consts.EventChatAnalysis, st.CorrelationID, model.ChatAnalysisEvent{
		UserID:        st.UserID,
		UserResponse:  text,
		Analysis:      analysis,
		AgentAction:   &action,
		CorrelationID: st.CorrelationID,
	})

	status := consts.StatusCompleted
	if action.Error != "" {
		status = consts.StatusFailed
	}
	return &model.ExecutionResult{
		Type:          consts.ExecutionResultType,
		UserID:        st.UserID,
		CorrelationID: st.CorrelationID,
		Decision:      model.UserActionCustom,
		Status:        status,
		Message:       action.Message,
		Analysis:      analysis,
		Actions:       []model.AgentAction{action},
	}, analysis.UsedFallback
}

func (e *executionImpl) emitAction(st *model.RunState, a model.AgentAction, usedFallback bool) {
	e.d.Emit(consts.EventAgentOutput, st.CorrelationID, model.AgentOutputEvent{
		Agent:         a.Agent,
		Action:        a.Action,
		Message:       a.Message,
		Result:        a.Result,
		CorrelationID: st.CorrelationID,
		UsedFallback:  usedFallback,
	})
}

func failed(step model.PlanStep, err error) model.AgentAction {
	return model.AgentAction{
		Agent:   step.Agent,
		Action:  step.Action,
		Message: fmt.Sprintf("%s işlemi başarısız oldu.", step.Agent),
		Error:   err.Error(),
	}
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}
