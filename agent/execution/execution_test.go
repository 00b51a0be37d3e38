package execution

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/broker"
	"github.com/hildam/fin-flow-go/repo/llm/llmtest"
	"github.com/hildam/fin-flow-go/repo/memory"
	"github.com/hildam/fin-flow-go/repo/tool"
	"github.com/hildam/fin-flow-go/repo/tool/tooltest"
)

func newStage(t *testing.T) (*executionImpl, *tooltest.Server, *broker.Recorder) {
	t.Helper()
	srv := tooltest.NewServer()
	t.Cleanup(srv.Close)
	tools, err := tool.NewHTTP(conf.ToolConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)

	rec := broker.NewRecorder()
	d := &comm.Deps{
		Tools:  tools,
		Models: &llmtest.Gateway{},
		Memory: memory.NewManager(memory.NewInMemory(), nil, nil),
		Broker: rec,
		Config: conf.Default(),
	}
	e := NewExecution(d).(*executionImpl)
	e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return e, srv, rec
}

func parkedState(action model.UserAction) *model.RunState {
	st := model.NewRunState("c1", "web_ui_user", 25000)
	st.SetOutput(model.StagePayments, &model.StageOutput{
		AgentName: consts.PaymentsAgent,
		Payload:   &model.PaymentsPayload{Proposal: model.Proposal{Amount: 7500}},
	})
	st.FinalMessage = "Öneri"
	st.UserAction = action
	return st
}

func TestFirstAmount(t *testing.T) {
	cases := map[string]int64{
		"5000 TL yap":          5000,
		"tutarı 5.000 olsun":   5000,
		"12,500₺ aktaralım":    12500,
		"önce 300, sonra 400":  300,
		"miktar 1000tl olsun.": 1000,
	}
	for text, want := range cases {
		got, ok := FirstAmount(text)
		assert.True(t, ok, text)
		assert.Equal(t, want, got, text)
	}
	_, ok := FirstAmount("miktarı değiştir")
	assert.False(t, ok)
}

func TestExecution_RequiresAction(t *testing.T) {
	e, _, _ := newStage(t)
	_, err := e.Run(context.Background(), parkedState(model.UserAction{}), false)
	assert.ErrorIs(t, err, ErrNoUserAction)
}

func TestExecution_Approve(t *testing.T) {
	e, srv, rec := newStage(t)
	st := parkedState(model.UserAction{Kind: model.UserActionApprove})

	out, err := e.Run(context.Background(), st, false)
	require.NoError(t, err)
	assert.Equal(t, consts.ExecutionAgent, out.AgentName)
	assert.Equal(t, consts.ActionExecutionCompleted, out.Action)
	assert.True(t, out.UsedFallback)

	res := st.FinalResult
	require.Len(t, res.Actions, 3)
	assert.Equal(t, "Transfer 7,500₺ başarıyla gerçekleştirildi.", res.Actions[0].Message)
	assert.Equal(t, "Risk analizi tamamlandı. Skor: 0.05", res.Actions[1].Message)
	assert.Equal(t, "bond yatırım tercihi güncellendi.", res.Actions[2].Message)
	assert.Equal(t, consts.StatusCompleted, res.Status)

	body := srv.Bodies(consts.ToolSavingsCreateTransfer)[0]
	assert.Equal(t, consts.CheckingAccount, body["fromAccount"])
	assert.Equal(t, consts.SavingsAccount, body["toSavingsId"])
	assert.Equal(t, 1, srv.Calls(consts.ToolMarketQuotes))

	var msg map[string]any
	require.NoError(t, rec.Decode(consts.TopicPaymentsExecuted, 0, &msg))
	assert.Equal(t, "approve", msg["decision"])
}

func TestExecution_ApprovePartialOnToolFailure(t *testing.T) {
	e, srv, _ := newStage(t)
	srv.Fail(consts.ToolRiskPerformAnalysis, http.StatusInternalServerError)
	st := parkedState(model.UserAction{Kind: model.UserActionApprove})

	_, err := e.Run(context.Background(), st, true)
	require.NoError(t, err)
	res := st.FinalResult
	assert.Equal(t, consts.StatusPartial, res.Status)
	assert.NotEmpty(t, res.Actions[1].Error)
	assert.Len(t, res.Report.FailedOperations, 1)
	assert.Equal(t, int64(7500), res.Report.TotalAmountProcessed)
}

func TestExecution_ApproveTransfersOnce(t *testing.T) {
	e, srv, _ := newStage(t)
	e.d.Models.(*llmtest.Gateway).StrongFunc = func(context.Context, []*schema.Message) (string, error) {
		return `{"approved_agents": ["PaymentsAgent"], "execution_plan": [
			{"agent": "PaymentsAgent", "action": "execute_transfer", "parameters": {"amount": 7500}},
			{"agent": "PaymentsAgent", "action": "execute_transfer", "parameters": {"amount": 7500}},
			{"agent": "PaymentsAgent", "action": "execute_transfer", "parameters": {"amount": 7500}}
		], "reasoning": "r", "priority": "high"}`, nil
	}
	st := parkedState(model.UserAction{Kind: model.UserActionApprove})

	_, err := e.Run(context.Background(), st, false)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Calls(consts.ToolSavingsCreateTransfer))
	assert.Equal(t, int64(7500), st.FinalResult.Report.TotalAmountProcessed)
}

func TestExecution_Reject(t *testing.T) {
	e, srv, _ := newStage(t)
	st := parkedState(model.UserAction{Kind: model.UserActionReject})

	_, err := e.Run(context.Background(), st, false)
	require.NoError(t, err)
	msg := st.FinalResult.Message
	assert.Contains(t, msg, "Kullanıcı: web_ui_user")
	assert.Contains(t, msg, "Red Tarihi: 2026-01-02 03:04:05")
	assert.Contains(t, msg, "Orijinal Öneri: Öneri")
	assert.Contains(t, msg, "İşlem: Hiçbir agent çalıştırılmadı")
	assert.Equal(t, 0, srv.Calls(consts.ToolSavingsCreateTransfer))
	assert.Equal(t, 0, srv.Calls(consts.ToolRiskPerformAnalysis))
}

func TestExecution_CustomDispatch(t *testing.T) {
	cases := []struct {
		text    string
		agent   string
		action  string
		message string
		tool    string
	}{
		{"Tutarı 5000 TL yapalım", consts.PaymentsAgent, consts.ActionTransferModified, "Transfer miktarı 5,000₺ olarak güncellendi.", consts.ToolPaymentsModifyTransfer},
		{"Miktarı değiştirmek istiyorum", consts.PaymentsAgent, consts.ActionNoChange, "PaymentsAgent analizi tamamlandı.", ""},
		{"Bu işlem güvenli mi?", consts.RiskAgent, consts.ActionRiskAnalysisDone, "Risk analizi tamamlandı. Genel risk skoru: 0.05", consts.ToolRiskPerformAnalysis},
		{"Hisse almak istiyorum", consts.InvestmentAgent, consts.ActionPreferenceUpdated, "equity yatırım tercihi güncellendi.", consts.ToolInvestmentUpdatePref},
		{"Tasarruf hakkında ne önerirsin?", consts.GeneralAgent, consts.ActionAdviceProvided, "Tasarruf oranınızı %30 civarında tutmanız önerilir.", consts.ToolGeneralGetAdvice},
	}
	for _, c := range cases {
		t.Run(c.text, func(t *testing.T) {
			e, srv, _ := newStage(t)
			st := parkedState(model.UserAction{Kind: model.UserActionCustom, Text: c.text})

			_, err := e.Run(context.Background(), st, false)
			require.NoError(t, err)
			res := st.FinalResult
			require.Len(t, res.Actions, 1)
			assert.Equal(t, c.agent, res.Actions[0].Agent)
			assert.Equal(t, c.action, res.Actions[0].Action)
			assert.Equal(t, c.message, res.Actions[0].Message)
			assert.Equal(t, model.UserActionCustom, res.Decision)
			if c.tool != "" {
				assert.Equal(t, 1, srv.Calls(c.tool))
			}
		})
	}
}

func TestExecution_ModifyTransferPayload(t *testing.T) {
	e, srv, _ := newStage(t)
	st := parkedState(model.UserAction{Kind: model.UserActionCustom, Text: "tutar 5000 olsun"})

	_, err := e.Run(context.Background(), st, true)
	require.NoError(t, err)
	body := srv.Bodies(consts.ToolPaymentsModifyTransfer)[0]
	assert.Equal(t, float64(5000), body["newAmount"])
	assert.Equal(t, float64(7500), body["originalAmount"])
	assert.Equal(t, "c1", body["transferId"])
}

func TestExecution_PaymentsWithoutAmountModification(t *testing.T) {
	e, srv, _ := newStage(t)
	e.d.Models.(*llmtest.Gateway).StrongFunc = func(context.Context, []*schema.Message) (string, error) {
		return `{"intent": "PaymentsAgent", "confidence": 0.9, "reasoning": "r",
			"parameters": {"amount_modification": false}, "action_required": false}`, nil
	}
	st := parkedState(model.UserAction{Kind: model.UserActionCustom, Text: "Geçen ay 5000 TL göndermiştim"})

	_, err := e.Run(context.Background(), st, false)
	require.NoError(t, err)
	require.Len(t, st.FinalResult.Actions, 1)
	assert.Equal(t, consts.ActionNoChange, st.FinalResult.Actions[0].Action)
	assert.Equal(t, 0, srv.Calls(consts.ToolPaymentsModifyTransfer))
}

func TestExecution_HandlersCoverEveryIntent(t *testing.T) {
	e, _, _ := newStage(t)
	for _, intent := range []model.Intent{model.IntentPayments, model.IntentRisk, model.IntentInvestment, model.IntentGeneral} {
		assert.Contains(t, e.handlers, intent)
	}
}
