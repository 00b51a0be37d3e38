package execution

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
)

// intentHandler 处理某一意图的自定义回复
type intentHandler func(ctx context.Context, st *model.RunState, a *model.AnalysisResult) model.AgentAction

// amountPattern 匹配 5000、5.000、5,000 这类写法
var amountPattern = regexp.MustCompile(`\d[\d.,]*`)

// FirstAmount 取文本中的第一个整数，千分位分隔符会被忽略
func FirstAmount(text string) (int64, bool) {
	for _, m := range amountPattern.FindAllString(text, -1) {
		digits := strings.NewReplacer(".", "", ",", "").Replace(strings.TrimRight(m, ".,"))
		if n, err := strconv.ParseInt(digits, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// handlePayments 用户要求修改金额且文本中有金额时修改转账，否则不做变更
func (e *executionImpl) handlePayments(ctx context.Context, st *model.RunState, a *model.AnalysisResult) model.AgentAction {
	action := model.AgentAction{Agent: consts.PaymentsAgent}
	newAmount, ok := FirstAmount(st.UserAction.Text)
	if !ok || !a.BoolParam("amount_modification") {
		action.Action = consts.ActionNoChange
		action.Message = "PaymentsAgent analizi tamamlandı."
		return action
	}

	res, err := e.d.CallTool(ctx, consts.ToolPaymentsModifyTransfer, map[string]any{
		"userId":         st.UserID,
		"newAmount":      newAmount,
		"originalAmount": comm.ProposalAmount(st),
		"transferId":     st.CorrelationID,
	})
	action.Action = consts.ActionTransferModified
	if err != nil {
		action.Message = "Transfer miktarı güncellenemedi."
		action.Error = err.Error()
		return action
	}
	action.Message = fmt.Sprintf("Transfer miktarı %s olarak güncellendi.", comm.FormatTL(newAmount))
	action.Result = res
	action.Amount = newAmount
	return action
}

// handleRisk 用户要求时执行综合风险分析
func (e *executionImpl) handleRisk(ctx context.Context, st *model.RunState, a *model.AnalysisResult) model.AgentAction {
	action := model.AgentAction{Agent: consts.RiskAgent, Action: consts.ActionNoChange, Message: "RiskAgent analizi tamamlandı."}
	if !a.BoolParam("risk_analysis") {
		return action
	}

	res, err := e.d.CallTool(ctx, consts.ToolRiskPerformAnalysis, map[string]any{
		"userId":       st.UserID,
		"analysisType": consts.ComprehensiveAnalysisType,
	})
	action.Action = consts.ActionRiskAnalysisDone
	if err != nil {
		action.Error = err.Error()
		return action
	}
	score := "N/A"
	if s := res.Get("analysis.overallScore"); s.Exists() {
		score = s.String()
	}
	action.Message = fmt.Sprintf("Risk analizi tamamlandı. Genel risk skoru: %s", score)
	action.Result = res
	return action
}

// handleInvestment 更新投资偏好
func (e *executionImpl) handleInvestment(ctx context.Context, st *model.RunState, a *model.AnalysisResult) model.AgentAction {
	pref := a.StringParam("preferred_investment", consts.AssetBond)
	action := model.AgentAction{Agent: consts.InvestmentAgent, Action: consts.ActionPreferenceUpdated}
	result, err := e.updatePreference(ctx, st, pref, consts.DefaultAllocation)
	if err != nil {
		action.Message = "Yatırım tercihi güncellenemedi."
		action.Error = err.Error()
		return action
	}
	action.Message = fmt.Sprintf("%s yatırım tercihi güncellendi.", pref)
	action.Result = result
	return action
}

// handleGeneral 一般性问题交给通用建议工具
func (e *executionImpl) handleGeneral(ctx context.Context, st *model.RunState, a *model.AnalysisResult) model.AgentAction {
	action := model.AgentAction{
		Agent:   consts.GeneralAgent,
		Action:  consts.ActionAdviceProvided,
		Message: "Genel danışmanlık hizmeti sağlandı.",
	}
	res, err := e.d.CallTool(ctx, consts.ToolGeneralGetAdvice, map[string]any{
		"userId":   st.UserID,
		"question": st.UserAction.Text,
	})
	if err != nil {
		action.Error = err.Error()
		return action
	}
	if advice := res.Get("advice").String(); advice != "" {
		action.Message = advice
	}
	action.Result = res
	return action
}
