package planner

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/llm/llmtest"
)

func stateWithProposal(amount int64) *model.RunState {
	st := model.NewRunState("c1", "u1", 25000)
	st.SetOutput(model.StagePayments, &model.StageOutput{
		AgentName: consts.PaymentsAgent,
		Payload:   &model.PaymentsPayload{Proposal: model.Proposal{Amount: amount}},
	})
	return st
}

func TestFallbackPlan(t *testing.T) {
	plan := FallbackPlan(stateWithProposal(7500))
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, []string{consts.PaymentsAgent, consts.RiskAgent, consts.InvestmentAgent}, plan.ApprovedAgents)
	assert.Equal(t, int64(7500), plan.Steps[0].Parameters["amount"])
	assert.Equal(t, consts.ActionExecuteTransfer, plan.Steps[0].Action)
	assert.Equal(t, []string{consts.ToolInvestmentUpdatePref, consts.ToolMarketQuotes}, plan.Steps[2].Tools)
	assert.Equal(t, "high", plan.Priority)
}

func TestBuildPlan_ModelAmountIsIgnored(t *testing.T) {
	g := &llmtest.Gateway{StrongFunc: func(_ context.Context, msgs []*schema.Message) (string, error) {
		return `{"approved_agents": ["PaymentsAgent"], "execution_plan": [
			{"agent": "PaymentsAgent", "action": "execute_transfer", "mcp_tools": ["savings.createTransfer"], "parameters": {"amount": 99999}}
		], "reasoning": "r", "priority": "high"}`, nil
	}}
	d := &comm.Deps{Models: g, Config: conf.Default()}

	plan, fromModel := BuildPlan(context.Background(), d, stateWithProposal(7500), "", false)
	assert.True(t, fromModel)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, int64(7500), plan.Steps[0].Parameters["amount"])

	msgs := g.StrongMessages()[0]
	assert.Contains(t, msgs[0].Content, "7500")
}

func TestBuildPlan_Fallbacks(t *testing.T) {
	cases := map[string]string{
		"unknown agent": `{"execution_plan": [{"agent": "CoderAgent", "action": "x"}]}`,
		"empty plan":    `{"execution_plan": []}`,
		"not json":      `Plan hazır değil`,
		"duplicate transfer": `{"execution_plan": [
			{"agent": "PaymentsAgent", "action": "execute_transfer"},
			{"agent": "RiskAgent", "action": "perform_analysis"},
			{"agent": "PaymentsAgent", "action": "execute_transfer"}
		]}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			g := &llmtest.Gateway{StrongFunc: func(context.Context, []*schema.Message) (string, error) { return reply, nil }}
			d := &comm.Deps{Models: g, Config: conf.Default()}
			plan, fromModel := BuildPlan(context.Background(), d, stateWithProposal(7500), "onayla", false)
			assert.False(t, fromModel)
			assert.Len(t, plan.Steps, 3)
		})
	}
}

func TestBuildPlan_NilModels(t *testing.T) {
	plan, fromModel := BuildPlan(context.Background(), &comm.Deps{}, stateWithProposal(10), "", false)
	assert.False(t, fromModel)
	assert.Equal(t, int64(10), plan.Steps[0].Parameters["amount"])
}
