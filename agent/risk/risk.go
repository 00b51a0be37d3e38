package risk

import (
	"context"
	"fmt"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/llm"
	"github.com/hildam/fin-flow-go/repo/template"
	"github.com/hildam/fin-flow-go/repo/tool"
)

// defaultScore 评分工具不可用时的分数
const defaultScore = 0.5

// riskImpl 风险代理
type riskImpl struct {
	d *comm.Deps
}

// NewRisk 创建实例
func NewRisk(d *comm.Deps) comm.Stage {
	return &riskImpl{d: d}
}

func (r *riskImpl) Name() model.Stage { return model.StageRisk }

// Run 以内部转账的方式为提案金额评分
func (r *riskImpl) Run(ctx context.Context, st *model.RunState, force bool) (*model.StageOutput, error) {
	proposal := st.Proposal()
	if proposal == nil {
		return nil, fmt.Errorf("risk stage needs a payments proposal")
	}

	calls := r.d.NewCalls()
	usedFallback := force || !r.selectTools(ctx, st, proposal, calls)

	res, err := calls.Ensure(ctx, consts.ToolRiskScoreTransaction, scorePayload(st.UserID, proposal))
	assessment := model.RiskAssessment{Score: defaultScore}
	var raw any
	if err != nil {
		slog.Error("risk score failed, use default score, %s, err = %v", comm.Describe(st), err)
		assessment.Factors = []string{"score_unavailable"}
	} else {
		raw = res
		if s := res.Get("score"); s.Exists() {
			assessment.Score = s.Float()
		}
		for _, f := range res.Get("factors").Array() {
			assessment.Factors = append(assessment.Factors, f.String())
		}
		assessment.Reason = res.Get("reason").String()
		assessment.Recommendation = res.Get("recommendation").String()
	}
	assessment.Level = model.RiskLevelFor(assessment.Score)

	payload := &model.RiskPayload{Assessment: assessment, Raw: raw}
	out := &model.StageOutput{
		AgentName:    consts.RiskAgent,
		Action:       consts.ActionRiskAssessed,
		Payload:      payload,
		HumanMessage: Message(assessment.Level),
		UsedFallback: usedFallback,
	}

	st.SetOutput(model.StageRisk, out)
	r.d.EmitOutput(st, out)
	r.d.Publish(ctx, consts.TopicRiskAnalysis, map[string]any{
		"userId":        st.UserID,
		"analysis":      assessment,
		"correlationId": st.CorrelationID,
	})
	slog.Info("risk done, %s, score = %v, level = %s", comm.Describe(st), assessment.Score, assessment.Level)
	return out, nil
}

// Message 风险等级对应的用户消息
func Message(level model.RiskLevel) string {
	switch level {
	case model.RiskLow:
		return "İşlem güvenli, düşük riskli."
	case model.RiskMedium:
		return "İşlem orta riskli, dikkatli ilerlenmeli."
	default:
		return "İşlem yüksek riskli."
	}
}

func scorePayload(userID string, p *model.Proposal) map[string]any {
	return map[string]any{
		"userId": userID,
		"tx": map[string]any{
			"amount": p.Amount,
			"type":   consts.InternalTransferTxType,
			"from":   p.FromAccount,
			"to":     p.ToAccount,
		},
	}
}

func (r *riskImpl) selectTools(ctx context.Context, st *model.RunState, p *model.Proposal, calls *comm.Calls) bool {
	msgs, err := template.Render(ctx, "risk", map[string]any{
		"user_id":         st.UserID,
		"proposal_amount": comm.FormatAmount(p.Amount),
		"from_account":    p.FromAccount,
		"to_account":      p.ToAccount,
	}, schema.UserMessage("Transfer önerisinin riskini değerlendir."))
	if err != nil {
		return false
	}

	selected, err := r.d.SelectTools(ctx, msgs, tool.Infos(consts.ToolRiskScoreTransaction))
	if err != nil {
		slog.Error("risk select tools failed, %s, err = %v", comm.Describe(st), err)
		return false
	}
	// 金额与类型以提案为准，忽略模型给出的参数
	return calls.RunSelected(ctx, selected, func(call llm.ToolCall) (map[string]any, bool) {
		if call.Name != consts.ToolRiskScoreTransaction {
			return nil, false
		}
		return scorePayload(st.UserID, p), true
	}) > 0
}
