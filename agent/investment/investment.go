package investment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/llm"
	"github.com/hildam/fin-flow-go/repo/template"
	"github.com/hildam/fin-flow-go/repo/tool"
)

// investmentImpl 投资代理
type investmentImpl struct {
	d *comm.Deps
}

// NewInvestment 创建实例
func NewInvestment(d *comm.Deps) comm.Stage {
	return &investmentImpl{d: d}
}

func (i *investmentImpl) Name() model.Stage { return model.StageInvestment }

// Run 按风险分数选择策略，并发查询每种资产的行情
func (i *investmentImpl) Run(ctx context.Context, st *model.RunState, force bool) (*model.StageOutput, error) {
	risk := st.Risk()
	if risk == nil {
		return nil, fmt.Errorf("investment stage needs a risk assessment")
	}
	strategy := model.StrategyFor(risk.Score)
	assets := strategy.Assets()

	calls := i.d.NewCalls()
	usedFallback := force || !i.selectTools(ctx, st, risk, strategy, calls)

	var (
		mu     sync.Mutex
		quotes = make(map[string]any, len(assets))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, asset := range assets {
		asset := asset
		g.Go(func() error {
			res, err := calls.Ensure(gctx, consts.ToolMarketQuotes, quotePayload(asset))
			var quote any = res
			if err != nil {
				quote = map[string]any{"assetType": asset, "error": err.Error()}
			}
			mu.Lock()
			quotes[asset] = quote
			mu.Unlock()
			// 单个行情失败不影响其他资产
			return nil
		})
	}
	_ = g.Wait()

	payload := &model.InvestmentPayload{
		Recommendation: model.InvestmentRecommendation{Strategy: strategy, AssetQuotes: quotes},
	}
	out := &model.StageOutput{
		AgentName:    consts.InvestmentAgent,
		Action:       consts.ActionInvestmentProposed,
		Payload:      payload,
		HumanMessage: "Risk durumuna göre yatırım önerileri: " + strings.Join(assets, ", "),
		UsedFallback: usedFallback,
	}

	st.SetOutput(model.StageInvestment, out)
	i.d.EmitOutput(st, out)
	i.d.Publish(ctx, consts.TopicInvestmentsProposal, map[string]any{
		"userId":         st.UserID,
		"recommendation": payload.Recommendation,
		"correlationId":  st.CorrelationID,
	})
	slog.Info("investment done, %s, strategy = %s", comm.Describe(st), strategy)
	return out, nil
}

func quotePayload(asset string) map[string]any {
	return map[string]any{"assetType": asset, "tenor": consts.DefaultQuoteTenor}
}

func (i *investmentImpl) selectTools(ctx context.Context, st *model.RunState, risk *model.RiskAssessment, strategy model.Strategy, calls *comm.Calls) bool {
	assets := strategy.Assets()
	msgs, err := template.Render(ctx, "investment", map[string]any{
		"user_id":    st.UserID,
		"risk_score": risk.Score,
		"risk_level": string(risk.Level),
		"strategy":   string(strategy),
		"assets":     strings.Join(assets, ", "),
	}, schema.UserMessage("Strateji için gerekli piyasa verilerini topla."))
	if err != nil {
		return false
	}

	selected, err := i.d.SelectTools(ctx, msgs, tool.Infos(consts.ToolMarketQuotes))
	if err != nil {
		slog.Error("investment select tools failed, %s, err = %v", comm.Describe(st), err)
		return false
	}
	allowed := make(map[string]bool, len(assets))
	for _, a := range assets {
		allowed[a] = true
	}
	// 只接受策略内的资产，期限固定
	return calls.RunSelected(ctx, selected, func(call llm.ToolCall) (map[string]any, bool) {
		asset := strings.ToLower(comm.StringArg(call.Arguments, "assetType", ""))
		if call.Name != consts.ToolMarketQuotes || !allowed[asset] {
			return nil, false
		}
		return quotePayload(asset), true
	}) > 0
}
