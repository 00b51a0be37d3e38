package model

import (
	"fmt"
	"strings"
	"time"
)

// Stage 流水线阶段
type Stage string

const (
	StageStart           Stage = "start"
	StagePayments        Stage = "payments"
	StageRisk            Stage = "risk"
	StageInvestment      Stage = "investment"
	StageCoordinator     Stage = "coordinator"
	StageUserInteraction Stage = "user_interaction"
	StageEnd             Stage = "end"
	StageExecution       Stage = "execution"
	StageDone            Stage = "done"
	StageFailed          Stage = "error"
)

// stageOrdinal 阶段序号，状态只能单调前进
var stageOrdinal = map[Stage]int{
	StageStart:           0,
	StagePayments:        1,
	StageRisk:            2,
	StageInvestment:      3,
	StageCoordinator:     4,
	StageUserInteraction: 5,
	StageEnd:             6,
	StageExecution:       7,
	StageDone:            8,
	StageFailed:          9,
}

// Ordinal 返回阶段序号，未知阶段返回 -1
func (s Stage) Ordinal() int {
	if o, ok := stageOrdinal[s]; ok {
		return o
	}
	return -1
}

// IsTerminal 是否为终态
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// UserActionKind 用户决定类型
type UserActionKind string

const (
	UserActionUnset   UserActionKind = ""
	UserActionApprove UserActionKind = "approve"
	UserActionReject  UserActionKind = "reject"
	UserActionCustom  UserActionKind = "custom"
)

// UserAction 用户对最终建议的决定
type UserAction struct {
	Kind UserActionKind `json:"kind,omitempty"` // 决定类型
	Text string         `json:"text,omitempty"` // 自定义回复原文
}

// IsSet 是否已经给出决定
func (a UserAction) IsSet() bool {
	switch a.Kind {
	case UserActionApprove, UserActionReject, UserActionCustom:
		return true
	}
	return false
}

var (
	approveWords = []string{"approve", "approved", "approve_all", "accept", "accepted", "evet", "onayla", "onaylıyorum"}
	rejectWords  = []string{"reject", "rejected", "reject_all", "hayır", "hayir", "reddet", "reddediyorum"}
)

// ParseUserAction 将用户回复解析为决定
func ParseUserAction(text string) UserAction {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return UserAction{}
	}
	lower := strings.ToLower(trimmed)
	for _, w := range approveWords {
		if lower == w {
			return UserAction{Kind: UserActionApprove}
		}
	}
	for _, w := range rejectWords {
		if lower == w {
			return UserAction{Kind: UserActionReject}
		}
	}
	return UserAction{Kind: UserActionCustom, Text: trimmed}
}

// StageOutput 单个阶段写入 RunState 的结果
type StageOutput struct {
	AgentName    string `json:"agentName"`
	Action       string `json:"action"`
	Payload      any    `json:"payload"`
	HumanMessage string `json:"humanMessage"`
	UsedFallback bool   `json:"usedFallback"`
}

// RunError 记录在 RunState 上的失败信息
type RunError struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// RunState 单次运行的状态，同一时刻只归属一个执行
type RunState struct {
	CorrelationID string                 `json:"correlationId"`
	UserID        string                 `json:"userId"`
	Amount        int64                  `json:"amount"` // 以最小货币单位计
	Outputs       map[Stage]*StageOutput `json:"outputs"`
	UserAction    UserAction             `json:"userAction"`
	CurrentStage  Stage                  `json:"currentStage"`
	History       []Stage                `json:"history"`
	Error         *RunError              `json:"error,omitempty"`
	FinalMessage  string                 `json:"finalMessage,omitempty"`
	FinalResult   *ExecutionResult       `json:"finalResult,omitempty"`
	Degraded      bool                   `json:"degraded"` // 是否走了降级路径
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// NewRunState 创建初始状态
func NewRunState(correlationID, userID string, amount int64) *RunState {
	now := time.Now()
	return &RunState{
		CorrelationID: correlationID,
		UserID:        userID,
		Amount:        amount,
		Outputs:       make(map[Stage]*StageOutput),
		CurrentStage:  StageStart,
		History:       []Stage{StageStart},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Advance 推进到下一个阶段
// 只允许序号严格递增；error 可由任意非终态进入
func (s *RunState) Advance(next Stage) error {
	cur := s.CurrentStage
	if cur.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal, next = %s", ErrInvalidTransition, cur, next)
	}
	if next.Ordinal() < 0 {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, next)
	}
	if next != StageFailed && next.Ordinal() <= cur.Ordinal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}
	s.CurrentStage = next
	s.History = append(s.History, next)
	s.UpdatedAt = time.Now()
	return nil
}

// Fail 记录失败并进入 error 终态
func (s *RunState) Fail(stage Stage, err error) {
	s.Error = &RunError{Stage: stage, Message: err.Error()}
	if !s.CurrentStage.IsTerminal() {
		_ = s.Advance(StageFailed)
	}
}

// SetOutput 写入阶段结果
func (s *RunState) SetOutput(stage Stage, out *StageOutput) {
	if s.Outputs == nil {
		s.Outputs = make(map[Stage]*StageOutput)
	}
	s.Outputs[stage] = out
	s.UpdatedAt = time.Now()
}

// Output 读取阶段结果
func (s *RunState) Output(stage Stage) (*StageOutput, bool) {
	out, ok := s.Outputs[stage]
	return out, ok
}

// Proposal 返回支付阶段的转账提案
func (s *RunState) Proposal() *Proposal {
	out, ok := s.Output(StagePayments)
	if !ok {
		return nil
	}
	if p, ok := out.Payload.(*PaymentsPayload); ok {
		return &p.Proposal
	}
	return nil
}

// Risk 返回风险评估结果
func (s *RunState) Risk() *RiskAssessment {
	out, ok := s.Output(StageRisk)
	if !ok {
		return nil
	}
	if p, ok := out.Payload.(*RiskPayload); ok {
		return &p.Assessment
	}
	return nil
}

// Investment 返回投资建议
func (s *RunState) Investment() *InvestmentRecommendation {
	out, ok := s.Output(StageInvestment)
	if !ok {
		return nil
	}
	if p, ok := out.Payload.(*InvestmentPayload); ok {
		return &p.Recommendation
	}
	return nil
}

// Clone 浅拷贝，供外部只读查看
func (s *RunState) Clone() *RunState {
	cp := *s
	cp.Outputs = make(map[Stage]*StageOutput, len(s.Outputs))
	for k, v := range s.Outputs {
		cp.Outputs[k] = v
	}
	cp.History = append([]Stage(nil), s.History...)
	return &cp
}
