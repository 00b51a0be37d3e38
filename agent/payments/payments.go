package payments

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

// toolPaths 支付阶段可用的工具
var toolPaths = []string{consts.ToolUserProfileGet, consts.ToolTransactionsQuery}

// paymentsImpl 支付代理，根据自动储蓄比例给出转账提案
type paymentsImpl struct {
	d *comm.Deps
}

// NewPayments 创建实例
func NewPayments(d *comm.Deps) comm.Stage {
	return &paymentsImpl{d: d}
}

func (p *paymentsImpl) Name() model.Stage { return model.StagePayments }

// Run 读取用户资料中的 autoSavingsRate，计算 floor(amount * rate)
func (p *paymentsImpl) Run(ctx context.Context, st *model.RunState, force bool) (*model.StageOutput, error) {
	calls := p.d.NewCalls()
	usedFallback := force || !p.selectTools(ctx, st, calls)

	rate := consts.DefaultAutoSavingsRate
	profile, err := calls.Ensure(ctx, consts.ToolUserProfileGet, map[string]any{"userId": st.UserID})
	if err != nil {
		slog.Error("payments get profile failed, use default rate, %s, err = %v", comm.Describe(st), err)
	} else if r := profile.Get("savedPreferences.autoSavingsRate"); r.Exists() {
		rate = r.Float()
	}

	amount := model.ProposeAmount(st.Amount, rate)
	payload := &model.PaymentsPayload{
		Proposal: model.Proposal{
			Action:      consts.ActionProposeTransfer,
			Amount:      amount,
			FromAccount: consts.CheckingAccount,
			ToAccount:   consts.SavingsAccount,
			Rate:        rate,
		},
		AutoSavingsRate: rate,
	}
	out := &model.StageOutput{
		AgentName:    consts.PaymentsAgent,
		Action:       consts.ActionProposeTransfer,
		Payload:      payload,
		HumanMessage: fmt.Sprintf("Maaşın %s olarak hesabına geçti. Plan gereği %s tasarrufa aktarılabilir.", comm.FormatTL(st.Amount), comm.FormatTL(amount)),
		UsedFallback: usedFallback,
	}

	st.SetOutput(model.StagePayments, out)
	p.d.EmitOutput(st, out)
	p.d.Publish(ctx, consts.TopicPaymentsPending, map[string]any{
		"userId":        st.UserID,
		"proposal":      payload.Proposal,
		"correlationId": st.CorrelationID,
	})
	slog.Info("payments done, %s, proposal = %d", comm.Describe(st), amount)
	return out, nil
}

// selectTools 询问模型需要的工具，返回是否有被接受的调用
func (p *paymentsImpl) selectTools(ctx context.Context, st *model.RunState, calls *comm.Calls) bool {
	msgs, err := template.Render(ctx, "payments", map[string]any{
		"user_id":        st.UserID,
		"amount":         comm.FormatAmount(st.Amount),
		"correlation_id": st.CorrelationID,
	}, schema.UserMessage("Maaş yatışını analiz et ve gerekli araçları çağır."))
	if err != nil {
		return false
	}

	selected, err := p.d.SelectTools(ctx, msgs, tool.Infos(toolPaths...))
	if err != nil {
		slog.Error("payments select tools failed, %s, err = %v", comm.Describe(st), err)
		return false
	}
	return calls.RunSelected(ctx, selected, func(call llm.ToolCall) (map[string]any, bool) {
		switch call.Name {
		case consts.ToolUserProfileGet:
			return map[string]any{"userId": st.UserID}, true
		case consts.ToolTransactionsQuery:
			payload := map[string]any{"userId": st.UserID}
			if limit, ok := call.Arguments["limit"].(float64); ok && limit > 0 {
				payload["limit"] = int(limit)
			}
			return payload, true
		}
		return nil, false
	}) > 0
}
