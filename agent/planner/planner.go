package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/llm"
	"github.com/hildam/fin-flow-go/repo/template"
)

// approveText 用户没有附带回复时提示词使用的文本
const approveText = "Tüm önerileri onaylıyorum"

// BuildPlan 全部提案被批准后生成执行计划
// 强模型不可用或输出无效时使用固定的三步计划，第二个返回值表示是否来自模型
func BuildPlan(ctx context.Context, d *comm.Deps, st *model.RunState, userResponse string, force bool) (*model.ExecutionPlan, bool) {
	if force {
		return FallbackPlan(st), false
	}
	if userResponse == "" {
		userResponse = approveText
	}

	msgs, err := template.Render(ctx, "planner", map[string]any{
		"original_message": st.FinalMessage,
		"user_response":    userResponse,
		"proposals":        comm.ProposalsJSON(st),
		"proposal_amount":  comm.ProposalAmount(st),
	}, schema.UserMessage(userResponse))
	if err != nil {
		slog.Error("BuildPlan failed, render prompt err = %v", err)
		return FallbackPlan(st), false
	}
	msgs = comm.ModifyInputFunc(ctx, d.Config.Setting.MaxLimitToken, msgs)

	plan, fromModel := llm.StrongJSON(ctx, d.Models, msgs, "execution_plan", func() model.ExecutionPlan {
		return *FallbackPlan(st)
	}, validate)
	if fromModel {
		bindAmount(&plan, st)
	}
	slog.Info("BuildPlan done, %s, steps = %d, fromModel = %v", comm.Describe(st), len(plan.Steps), fromModel)
	return &plan, fromModel
}

// FallbackPlan 固定计划：转账、综合风险分析、债券投资偏好
func FallbackPlan(st *model.RunState) *model.ExecutionPlan {
	return &model.ExecutionPlan{
		ApprovedAgents: []string{consts.PaymentsAgent, consts.RiskAgent, consts.InvestmentAgent},
		Steps: []model.PlanStep{
			{
				Agent:  consts.PaymentsAgent,
				Action: consts.ActionExecuteTransfer,
				Tools:  []string{consts.ToolSavingsCreateTransfer},
				Parameters: map[string]any{
					"amount": comm.ProposalAmount(st),
					"from":   consts.CheckingAccount,
					"to":     consts.SavingsAccount,
				},
			},
			{
				Agent:      consts.RiskAgent,
				Action:     consts.ActionPerformAnalysis,
				Tools:      []string{consts.ToolRiskPerformAnalysis},
				Parameters: map[string]any{"analysisType": consts.ComprehensiveAnalysisType},
			},
			{
				Agent:  consts.InvestmentAgent,
				Action: consts.ActionExecuteInvestment,
				Tools:  []string{consts.ToolInvestmentUpdatePref, consts.ToolMarketQuotes},
				Parameters: map[string]any{
					"preferredInvestment": consts.AssetBond,
					"allocation":          consts.DefaultAllocation,
				},
			},
		},
		Reasoning: "Tüm öneriler onaylandığı için sırayla çalıştırılacak",
		Priority:  "high",
	}
}

// knownAgents 执行阶段能处理的代理
var knownAgents = map[string]bool{
	consts.PaymentsAgent:   true,
	consts.RiskAgent:       true,
	consts.InvestmentAgent: true,
}

func validate(p *model.ExecutionPlan) error {
	if len(p.Steps) == 0 {
		return errors.New("empty execution plan")
	}
	// 每个代理最多执行一次，重复的转账步骤会多次转出同一笔钱
	seen := make(map[string]bool, len(p.Steps))
	for _, step := range p.Steps {
		if !knownAgents[step.Agent] {
			return fmt.Errorf("unknown agent %q in plan", step.Agent)
		}
		if seen[step.Agent] {
			return fmt.Errorf("duplicate agent %q in plan", step.Agent)
		}
		seen[step.Agent] = true
	}
	return nil
}

// bindAmount 转账金额以存储的提案为准，模型给出的金额不生效
func bindAmount(p *model.ExecutionPlan, st *model.RunState) {
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Parameters == nil {
			step.Parameters = map[string]any{}
		}
		if step.Agent == consts.PaymentsAgent {
			step.Parameters["amount"] = comm.ProposalAmount(st)
		}
	}
}
