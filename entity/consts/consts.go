package consts

const (
	AppName = "fin_flow_go" // 应用名称，用于日志、指标前缀
)

// Agent 名字
const (
	PaymentsAgent    = "PaymentsAgent"    // 支付代理，负责工资入账后的储蓄转账提案
	RiskAgent        = "RiskAgent"        // 风险代理，负责评估转账风险
	InvestmentAgent  = "InvestmentAgent"  // 投资代理，根据风险等级给出投资建议
	CoordinatorAgent = "CoordinatorAgent" // 协调者，汇总各代理输出生成最终建议
	GeneralAgent     = "GeneralAgent"     // 通用代理，回答一般性问题
	ExecutionAgent   = "ExecutionAgent"   // 执行代理，处理用户决定后的执行阶段
)

// EventBus 事件名称
const (
	EventAgentOutput          = "agent-output"
	EventNotification         = "notification"
	EventChatAnalysis         = "chat-analysis"
	EventAllProposalsApproved = "all-proposals-approved"
	EventAllProposalsRejected = "all-proposals-rejected"
	EventExecution            = "execution"
	EventFinalResultReport    = "final-result-report"
)

// 工具路径
const (
	ToolUserProfileGet         = "userProfile.get"
	ToolTransactionsQuery      = "transactions.query"
	ToolRiskScoreTransaction   = "risk.scoreTransaction"
	ToolMarketQuotes           = "market.quotes"
	ToolSavingsCreateTransfer  = "savings.createTransfer"
	ToolPaymentsModifyTransfer = "payments.modifyTransfer"
	ToolRiskPerformAnalysis    = "risk.performAnalysis"
	ToolInvestmentUpdatePref   = "investment.updatePreference"
	ToolGeneralGetAdvice       = "general.getAdvice"
)

// 消息代理 topic
const (
	TopicTransactionsDeposit  = "transactions.deposit"
	TopicPaymentsPending      = "payments.pending"
	TopicPaymentsExecuted     = "payments.executed"
	TopicRiskAnalysis         = "risk.analysis"
	TopicInvestmentsProposal  = "investments.proposal"
	TopicAdvisorFinalMessage  = "advisor.finalMessage"
	DepositConsumerGroupID    = "fin-flow-deposit" // 入账消费者组
	FinalProposalType         = "final_proposal"
	ExecutionResultType       = "execution_result"
	InternalTransferTxType    = "internal_transfer"
	ComprehensiveAnalysisType = "comprehensive"
)

// 账户与默认参数
const (
	CheckingAccount        = "CHK001" // 默认支票账户
	SavingsAccount         = "SV001"  // 默认储蓄账户
	DefaultAutoSavingsRate = 0.3      // 用户未设置时的自动储蓄比例
	DefaultQuoteTenor      = "1Y"     // 行情查询期限
	DefaultAllocation      = 100      // 投资偏好默认配置比例
	CoordinatorFallbackMsg = "Analiz tamamlandı."
	LongTermMemoryQuery    = "deposit analysis" // 长期记忆检索语句
	LongTermMemoryTopK     = 3
)

// 资产类型
const (
	AssetBond    = "bond"
	AssetEquity  = "equity"
	AssetFund    = "fund"
	AssetSavings = "savings"
)

// 阶段动作标签
const (
	ActionProposeTransfer     = "propose_transfer"
	ActionRiskAssessed        = "risk_assessed"
	ActionInvestmentProposed  = "investment_proposed"
	ActionFinalProposal       = "final_proposal"
	ActionExecutionCompleted  = "execution_completed"
	ActionTransferModified    = "transfer_modified"
	ActionNoChange            = "no_change"
	ActionRiskAnalysisDone    = "risk_analysis_completed"
	ActionPreferenceUpdated   = "investment_preference_updated"
	ActionAdviceProvided      = "advice_provided"
	ActionExecuteTransfer     = "execute_transfer"
	ActionPerformAnalysis     = "perform_analysis"
	ActionExecuteInvestment   = "execute_investment"
	ActionProposalsRejected   = "proposals_rejected"
	ActionProposalsApproved   = "proposals_approved"
	ActionChatResponseHandled = "chat_response_handled"
)

// 执行状态
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)
