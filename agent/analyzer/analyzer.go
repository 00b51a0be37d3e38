package analyzer

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/llm"
	"github.com/hildam/fin-flow-go/repo/template"
)

// rule 关键词规则，按顺序匹配
type rule struct {
	words      []string
	tokens     []string // 只作为独立单词匹配
	intent     model.Intent
	confidence float64
	reasoning  string
	params     map[string]any
}

var rules = []rule{
	{
		words:      []string{"tahvil", "bond", "faiz", "getiri"},
		intent:     model.IntentInvestment,
		confidence: 0.8,
		reasoning:  "Yatırım ürünü tercihi belirtildi",
		params:     map[string]any{"preferred_investment": consts.AssetBond},
	},
	{
		words:      []string{"hisse", "equity", "borsa", "sermaye"},
		intent:     model.IntentInvestment,
		confidence: 0.8,
		reasoning:  "Hisse senedi tercihi belirtildi",
		params:     map[string]any{"preferred_investment": consts.AssetEquity},
	},
	{
		words:      []string{"miktar", "tutar", "para", "₺"},
		tokens:     []string{"tl"},
		intent:     model.IntentPayments,
		confidence: 0.7,
		reasoning:  "Transfer miktarı değişikliği isteniyor",
		params:     map[string]any{"amount_modification": true},
	},
	{
		words:      []string{"risk", "güvenli", "emniyet"},
		intent:     model.IntentRisk,
		confidence: 0.7,
		reasoning:  "Risk analizi talebi",
		params:     map[string]any{"risk_analysis": true},
	},
}

// Fallback 关键词分类，对任意输入都返回结果
func Fallback(text string) *model.AnalysisResult {
	lower := strings.ToLower(text)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, r := range rules {
		if r.match(lower, tokens) {
			return &model.AnalysisResult{
				Intent:         r.intent,
				Confidence:     r.confidence,
				Reasoning:      r.reasoning,
				Parameters:     copyParams(r.params),
				ActionRequired: true,
				UsedFallback:   true,
			}
		}
	}
	return &model.AnalysisResult{
		Intent:         model.IntentGeneral,
		Confidence:     0.5,
		Reasoning:      "Genel soru veya bilgi talebi",
		Parameters:     map[string]any{"general_query": true},
		ActionRequired: false,
		UsedFallback:   true,
	}
}

func (r rule) match(lower string, tokens []string) bool {
	for _, w := range r.words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	for _, tok := range tokens {
		// 500tl 这类写法去掉数字前缀
		tok = strings.TrimLeft(tok, "0123456789")
		for _, want := range r.tokens {
			if tok == want {
				return true
			}
		}
	}
	return false
}

func copyParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Analyze 用强模型分类用户回复，解析失败或调用失败时使用关键词分类
func Analyze(ctx context.Context, d *comm.Deps, st *model.RunState, text string, force bool) *model.AnalysisResult {
	if force {
		return Fallback(text)
	}
	msgs, err := template.Render(ctx, "analyzer", map[string]any{
		"original_message": st.FinalMessage,
		"proposals":        comm.ProposalsJSON(st),
		"user_response":    text,
	}, schema.UserMessage(text))
	if err != nil {
		return Fallback(text)
	}
	msgs = comm.ModifyInputFunc(ctx, d.Config.Setting.MaxLimitToken, msgs)

	res, fromModel := llm.StrongJSON(ctx, d.Models, msgs, "analysis_result", func() model.AnalysisResult {
		return *Fallback(text)
	}, validate)
	if fromModel {
		normalize(&res)
	}
	slog.Info("analyze user response, %s, intent = %s, fromModel = %v", comm.Describe(st), res.Intent, fromModel)
	return &res
}

func validate(a *model.AnalysisResult) error {
	if !a.Intent.Valid() {
		return fmt.Errorf("unknown intent %q", a.Intent)
	}
	return nil
}

func normalize(a *model.AnalysisResult) {
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
	if a.Parameters == nil {
		a.Parameters = map[string]any{}
	}
	a.UsedFallback = false
}
