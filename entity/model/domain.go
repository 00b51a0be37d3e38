package model

import (
	"math"

	"github.com/hildam/fin-flow-go/entity/consts"
)

// Proposal 支付代理的转账提案
type Proposal struct {
	Action      string  `json:"action"`
	Amount      int64   `json:"amount"`
	FromAccount string  `json:"fromAccount"`
	ToAccount   string  `json:"toAccount"`
	Rate        float64 `json:"rate"`
}

// ProposeAmount 计算建议转账金额 floor(amount * rate)
// rate 会被限制在 [0,1]，结果保证 0 <= x <= amount
func ProposeAmount(amount int64, rate float64) int64 {
	if amount <= 0 {
		return 0
	}
	if math.IsNaN(rate) || rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	// 1e-9 吸收 0.3 这类二进制表示误差
	x := int64(math.Floor(float64(amount)*rate + 1e-9))
	if x < 0 {
		return 0
	}
	if x > amount {
		return amount
	}
	return x
}

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskLevelFor 由分数计算风险等级，全局唯一规则
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score < 0.3:
		return RiskLow
	case score < 0.7:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// RiskAssessment 风险评估
type RiskAssessment struct {
	Score          float64   `json:"score"`
	Level          RiskLevel `json:"level"`
	Factors        []string  `json:"factors"`
	Reason         string    `json:"reason,omitempty"`
	Recommendation string    `json:"recommendation,omitempty"`
}

// Strategy 投资策略
type Strategy string

const (
	StrategyAggressive   Strategy = "aggressive"
	StrategyConservative Strategy = "conservative"
)

// StrategyFor 风险分数低于 0.3 时采用激进策略
func StrategyFor(score float64) Strategy {
	if RiskLevelFor(score) == RiskLow {
		return StrategyAggressive
	}
	return StrategyConservative
}

// Assets 策略对应的资产类型
func (s Strategy) Assets() []string {
	if s == StrategyAggressive {
		return []string{consts.AssetBond, consts.AssetEquity, consts.AssetFund}
	}
	return []string{consts.AssetBond, consts.AssetSavings}
}

// InvestmentRecommendation 投资建议
type InvestmentRecommendation struct {
	Strategy    Strategy       `json:"strategy"`
	AssetQuotes map[string]any `json:"assetQuotes"`
}

// PaymentsPayload 支付阶段输出
type PaymentsPayload struct {
	Proposal        Proposal `json:"proposal"`
	AutoSavingsRate float64  `json:"autoSavingsRate"`
}

// RiskPayload 风险阶段输出
type RiskPayload struct {
	Assessment RiskAssessment `json:"assessment"`
	Raw        any            `json:"raw,omitempty"`
}

// InvestmentPayload 投资阶段输出
type InvestmentPayload struct {
	Recommendation InvestmentRecommendation `json:"recommendation"`
}

// CoordinatorPayload 协调者输出
type CoordinatorPayload struct {
	Message         string   `json:"message"`
	ShortTermMemory string   `json:"shortTermMemory,omitempty"`
	LongTermMemory  []string `json:"longTermMemory,omitempty"`
	Proposal        Proposal `json:"proposal"`
}

// Intent 用户意图，取值封闭
type Intent string

const (
	IntentPayments   Intent = consts.PaymentsAgent
	IntentRisk       Intent = consts.RiskAgent
	IntentInvestment Intent = consts.InvestmentAgent
	IntentGeneral    Intent = consts.GeneralAgent
)

// Valid 是否为已知意图
func (i Intent) Valid() bool {
	switch i {
	case IntentPayments, IntentRisk, IntentInvestment, IntentGeneral:
		return true
	}
	return false
}

// AnalysisResult 用户回复分析结果
type AnalysisResult struct {
	Intent          Intent         `json:"intent"`
	Confidence      float64        `json:"confidence"`
	Reasoning       string         `json:"reasoning"`
	Parameters      map[string]any `json:"parameters"`
	ActionRequired  bool           `json:"action_required"`
	PartialApproval bool           `json:"partial_approval"`
	ApprovedItems   []string       `json:"approved_items"`
	RejectedItems   []string       `json:"rejected_items"`
	UsedFallback    bool           `json:"used_fallback"`
}

// StringParam 读取字符串参数
func (a *AnalysisResult) StringParam(key, def string) string {
	if v, ok := a.Parameters[key].(string); ok && v != "" {
		return v
	}
	return def
}

// BoolParam 读取布尔参数
func (a *AnalysisResult) BoolParam(key string) bool {
	v, _ := a.Parameters[key].(bool)
	return v
}

// PlanStep 执行计划中的一步
type PlanStep struct {
	Agent      string         `json:"agent"`
	Action     string         `json:"action"`
	Tools      []string       `json:"mcp_tools"`
	Parameters map[string]any `json:"parameters"`
}

// ExecutionPlan 全部提案被批准后的执行计划
type ExecutionPlan struct {
	ApprovedAgents []string   `json:"approved_agents"`
	Steps          []PlanStep `json:"execution_plan"`
	Reasoning      string     `json:"reasoning"`
	Priority       string     `json:"priority"`
}

// AgentAction 单个代理在执行阶段的动作结果
type AgentAction struct {
	Agent   string `json:"agent"`
	Action  string `json:"action"`
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
	Amount  int64  `json:"amount,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FinalReport 执行完成后的总结报告
type FinalReport struct {
	Summary              string   `json:"summary"`
	SuccessfulOperations []string `json:"successful_operations"`
	FailedOperations     []string `json:"failed_operations"`
	TotalAmountProcessed int64    `json:"total_amount_processed"`
	Recommendations      []string `json:"recommendations"`
	NextSteps            []string `json:"next_steps"`
	Status               string   `json:"status"`
}

// ExecutionResult 执行阶段最终结果
type ExecutionResult struct {
	Type          string          `json:"type"`
	UserID        string          `json:"userId"`
	CorrelationID string          `json:"correlationId"`
	Decision      UserActionKind  `json:"decision"`
	Status        string          `json:"status"`
	Message       string          `json:"message,omitempty"`
	Analysis      *AnalysisResult `json:"analysis,omitempty"`
	Plan          *ExecutionPlan  `json:"plan,omitempty"`
	Actions       []AgentAction   `json:"actions,omitempty"`
	Report        *FinalReport    `json:"report,omitempty"`
}
