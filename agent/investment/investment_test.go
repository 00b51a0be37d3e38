package investment

import (
	"context"
	"net/http"
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

	tools, err := tool.NewHTTP(conf.ToolConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, HealthTimeout: time.Second})
	require.NoError(t, err)
	models := &llmtest.Gateway{}
	rec := broker.NewRecorder()
	return &comm.Deps{Tools: tools, Models: models, Broker: rec, Config: conf.Default()}, srv, models, rec
}

func withRisk(score float64) *model.RunState {
	st := model.NewRunState("c1", "u1", 25000)
	st.SetOutput(model.StageRisk, &model.StageOutput{
		AgentName: consts.RiskAgent,
		Payload:   &model.RiskPayload{Assessment: model.RiskAssessment{Score: score, Level: model.RiskLevelFor(score)}},
	})
	return st
}

func TestInvestment_StrategyByScore(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		strategy model.Strategy
		assets   []string
	}{
		{"low risk", 0.05, model.StrategyAggressive, []string{consts.AssetBond, consts.AssetEquity, consts.AssetFund}},
		{"medium risk", 0.5, model.StrategyConservative, []string{consts.AssetBond, consts.AssetSavings}},
		{"high risk", 0.9, model.StrategyConservative, []string{consts.AssetBond, consts.AssetSavings}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, srv, _, rec := newDeps(t)
			st := withRisk(tt.score)

			out, err := NewInvestment(d).Run(context.Background(), st, false)
			require.NoError(t, err)

			rc := st.Investment()
			require.NotNil(t, rc)
			assert.Equal(t, tt.strategy, rc.Strategy)
			assert.Len(t, rc.AssetQuotes, len(tt.assets))
			for _, a := range tt.assets {
				assert.Contains(t, rc.AssetQuotes, a)
				assert.Contains(t, out.HumanMessage, a)
			}
			assert.Equal(t, len(tt.assets), srv.Calls(consts.ToolMarketQuotes))
			assert.Len(t, rec.Messages(consts.TopicInvestmentsProposal), 1)
		})
	}
}

func TestInvestment_ModelLimitedToStrategyAssets(t *testing.T) {
	d, srv, models, _ := newDeps(t)
	models.FastFunc = llmtest.CallTools(
		llm.ToolCall{Name: consts.ToolMarketQuotes, Arguments: map[string]any{"assetType": "Bond", "tenor": "10Y"}},
		llm.ToolCall{Name: consts.ToolMarketQuotes, Arguments: map[string]any{"assetType": "crypto"}},
	)
	st := withRisk(0.05)

	out, err := NewInvestment(d).Run(context.Background(), st, false)
	require.NoError(t, err)
	assert.False(t, out.UsedFallback)
	assert.Equal(t, 3, srv.Calls(consts.ToolMarketQuotes), "bond is fetched once")
	for _, body := range srv.Bodies(consts.ToolMarketQuotes) {
		assert.Equal(t, consts.DefaultQuoteTenor, body["tenor"])
		assert.NotEqual(t, "crypto", body["assetType"])
	}
}

func TestInvestment_UnknownAssetOnlyIsFallback(t *testing.T) {
	d, _, models, _ := newDeps(t)
	models.FastFunc = llmtest.CallTools(llm.ToolCall{Name: consts.ToolMarketQuotes, Arguments: map[string]any{"assetType": "crypto"}})

	out, err := NewInvestment(d).Run(context.Background(), withRisk(0.5), false)
	require.NoError(t, err)
	assert.True(t, out.UsedFallback)
}

func TestInvestment_QuoteFailureKeepsAsset(t *testing.T) {
	d, srv, _, _ := newDeps(t)
	srv.Fail(consts.ToolMarketQuotes, http.StatusInternalServerError)
	st := withRisk(0.5)

	_, err := NewInvestment(d).Run(context.Background(), st, true)
	require.NoError(t, err)
	q, ok := st.Investment().AssetQuotes[consts.AssetBond].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, consts.AssetBond, q["assetType"])
	assert.NotEmpty(t, q["error"])
}

func TestInvestment_RequiresRisk(t *testing.T) {
	d, _, _, _ := newDeps(t)
	_, err := NewInvestment(d).Run(context.Background(), model.NewRunState("c1", "u1", 100), true)
	assert.Error(t, err)
}
