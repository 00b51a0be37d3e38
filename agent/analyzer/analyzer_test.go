package analyzer

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

func TestFallback(t *testing.T) {
	cases := []struct {
		text   string
		intent model.Intent
		param  string
		value  any
	}{
		{"Sadece tahvil yatırımı yapmak istiyorum", model.IntentInvestment, "preferred_investment", consts.AssetBond},
		{"Faiz getirisi ne kadar?", model.IntentInvestment, "preferred_investment", consts.AssetBond},
		{"Borsada hisse almak istiyorum", model.IntentInvestment, "preferred_investment", consts.AssetEquity},
		{"Tutarı 5000 yapalım", model.IntentPayments, "amount_modification", true},
		{"500tl olsun", model.IntentPayments, "amount_modification", true},
		{"3000 TL yeter", model.IntentPayments, "amount_modification", true},
		{"Bu işlem güvenli mi?", model.IntentRisk, "risk_analysis", true},
		{"merhaba", model.IntentGeneral, "general_query", true},
		// tl 只作为独立单词匹配
		{"kitlesel bir soru", model.IntentGeneral, "general_query", true},
	}
	for _, c := range cases {
		t.Run(c.text, func(t *testing.T) {
			res := Fallback(c.text)
			assert.Equal(t, c.intent, res.Intent)
			assert.Equal(t, c.value, res.Parameters[c.param])
			assert.True(t, res.UsedFallback)
			assert.Equal(t, c.intent != model.IntentGeneral, res.ActionRequired)
		})
	}
}

func TestFallback_Total(t *testing.T) {
	for _, text := range []string{"x", "😀", "   ", "1234", "ÇĞİÖŞÜ"} {
		res := Fallback(text)
		require.NotNil(t, res)
		assert.True(t, res.Intent.Valid())
	}
}

func TestFallback_ParamsNotShared(t *testing.T) {
	a := Fallback("tahvil")
	a.Parameters["preferred_investment"] = "equity"
	assert.Equal(t, consts.AssetBond, Fallback("tahvil").Parameters["preferred_investment"])
}

func newDeps(g *llmtest.Gateway) *comm.Deps {
	return &comm.Deps{Models: g, Config: conf.Default()}
}

func TestAnalyze_ModelResult(t *testing.T) {
	g := &llmtest.Gateway{StrongFunc: func(context.Context, []*schema.Message) (string, error) {
		return "Sonuç:\n```json\n{\"intent\": \"RiskAgent\", \"confidence\": 1.7, \"reasoning\": \"r\", \"action_required\": true}\n```", nil
	}}
	st := model.NewRunState("c", "u1", 100)

	res := Analyze(context.Background(), newDeps(g), st, "tahvil", false)
	assert.Equal(t, model.IntentRisk, res.Intent)
	assert.Equal(t, 1.0, res.Confidence)
	assert.NotNil(t, res.Parameters)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, 1, g.StrongCalls())
}

func TestAnalyze_FallbackOnInvalidIntent(t *testing.T) {
	g := &llmtest.Gateway{StrongFunc: func(context.Context, []*schema.Message) (string, error) {
		return `{"intent": "CoderAgent"}`, nil
	}}
	st := model.NewRunState("c", "u1", 100)

	res := Analyze(context.Background(), newDeps(g), st, "Sadece tahvil yatırımı yapmak istiyorum", false)
	assert.Equal(t, model.IntentInvestment, res.Intent)
	assert.True(t, res.UsedFallback)
}

func TestAnalyze_ForceSkipsModel(t *testing.T) {
	g := &llmtest.Gateway{}
	st := model.NewRunState("c", "u1", 100)

	res := Analyze(context.Background(), newDeps(g), st, "hisse", true)
	assert.Equal(t, consts.AssetEquity, res.Parameters["preferred_investment"])
	assert.Equal(t, 0, g.StrongCalls())
}
