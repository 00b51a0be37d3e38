package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/broker"
	"github.com/hildam/fin-flow-go/repo/llm"
	"github.com/hildam/fin-flow-go/repo/llm/llmtest"
	"github.com/hildam/fin-flow-go/repo/tool"
	"github.com/hildam/fin-flow-go/repo/tool/tooltest"
)

func newDeps(t *testing.T) (*comm.Deps, *tooltest.Server, *llmtest.Gateway, *broker.Recorder) {
	t.Helper()
	srv := tooltest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser("u1", 0.3)

	tools, err := tool.NewHTTP(conf.ToolConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, HealthTimeout: time.Second})
	require.NoError(t, err)
	models := &llmtest.Gateway{}
	rec := broker.NewRecorder()
	return &comm.Deps{Tools: tools, Models: models, Broker: rec, Config: conf.Default()}, srv, models, rec
}

func TestPayments_ProposalFromProfileRate(t *testing.T) {
	d, srv, _, rec := newDeps(t)
	st := model.NewRunState("c1", "u1", 25000)

	out, err := NewPayments(d).Run(context.Background(), st, false)
	require.NoError(t, err)

	p := st.Proposal()
	require.NotNil(t, p)
	assert.Equal(t, int64(7500), p.Amount)
	assert.Equal(t, consts.CheckingAccount, p.FromAccount)
	assert.Equal(t, consts.SavingsAccount, p.ToAccount)
	assert.Equal(t, consts.ActionProposeTransfer, out.Action)
	assert.Contains(t, out.HumanMessage, "7,500₺")
	assert.True(t, out.UsedFallback, "no tool selected by the model")
	assert.Equal(t, 1, srv.Calls(consts.ToolUserProfileGet))
	assert.Len(t, rec.Messages(consts.TopicPaymentsPending), 1)
}

func TestPayments_ToolModeCallsProfileOnce(t *testing.T) {
	d, srv, models, _ := newDeps(t)
	models.FastFunc = llmtest.CallTools(
		llm.ToolCall{Name: consts.ToolUserProfileGet, Arguments: map[string]any{"userId": "someone-else"}},
		llm.ToolCall{Name: consts.ToolTransactionsQuery, Arguments: map[string]any{"limit": float64(5)}},
	)
	st := model.NewRunState("c1", "u1", 10000)

	out, err := NewPayments(d).Run(context.Background(), st, false)
	require.NoError(t, err)
	assert.False(t, out.UsedFallback)
	assert.Equal(t, int64(3000), st.Proposal().Amount)
	assert.Equal(t, 1, srv.Calls(consts.ToolUserProfileGet))
	assert.Equal(t, 1, srv.Calls(consts.ToolTransactionsQuery))
	// 用户 id 以运行为准
	assert.Equal(t, "u1", srv.Bodies(consts.ToolUserProfileGet)[0]["userId"])
}

func TestPayments_ProfileFailureUsesDefaultRate(t *testing.T) {
	d, _, _, _ := newDeps(t)
	st := model.NewRunState("c1", "unknown", 10001)

	out, err := NewPayments(d).Run(context.Background(), st, true)
	require.NoError(t, err)
	assert.True(t, out.UsedFallback)
	assert.Equal(t, int64(3000), st.Proposal().Amount)
}

func TestPayments_ForceSkipsModel(t *testing.T) {
	d, _, models, _ := newDeps(t)
	st := model.NewRunState("c1", "u1", 25000)

	_, err := NewPayments(d).Run(context.Background(), st, true)
	require.NoError(t, err)
	assert.Zero(t, models.FastCalls())
}
