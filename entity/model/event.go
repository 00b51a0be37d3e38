package model

import (
	"time"

	"github.com/google/uuid"
)

// Event 总线上的事件
type Event struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CorrelationID string    `json:"correlationId"`
	Data          any       `json:"data"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEvent 创建事件
func NewEvent(name, correlationID string, data any) Event {
	return Event{
		ID:            uuid.New().String(),
		Name:          name,
		CorrelationID: correlationID,
		Data:          data,
		Timestamp:     time.Now(),
	}
}

// AgentOutputEvent agent-output 事件数据
type AgentOutputEvent struct {
	Agent         string `json:"agent"`
	Action        string `json:"action"`
	Message       string `json:"message"`
	Result        any    `json:"result"`
	CorrelationID string `json:"correlationId"`
	UsedFallback  bool   `json:"usedFallback"`
}

// NotificationEvent notification 事件数据
type NotificationEvent struct {
	Type          string    `json:"type"`
	UserID        string    `json:"userId"`
	CorrelationID string    `json:"correlationId"`
	Message       string    `json:"message"`
	Proposal      *Proposal `json:"proposal"`
}

// ChatAnalysisEvent chat-analysis 事件数据
type ChatAnalysisEvent struct {
	UserID        string          `json:"userId"`
	UserResponse  string          `json:"userResponse"`
	Analysis      *AnalysisResult `json:"analysis"`
	AgentAction   *AgentAction    `json:"agentAction"`
	CorrelationID string          `json:"correlationId"`
}

// ProposalsApprovedEvent all-proposals-approved 事件数据
type ProposalsApprovedEvent struct {
	Type             string         `json:"type"`
	UserID           string         `json:"userId"`
	Analysis         *ExecutionPlan `json:"analysis"`
	ExecutionResults []AgentAction  `json:"executionResults"`
	CorrelationID    string         `json:"correlationId"`
}

// ProposalsRejectedEvent all-proposals-rejected 事件数据
type ProposalsRejectedEvent struct {
	UserID        string `json:"userId"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"`
}

// ExecutionEvent execution 事件数据
type ExecutionEvent struct {
	Type          string           `json:"type"`
	UserID        string           `json:"userId"`
	CorrelationID string           `json:"correlationId"`
	Result        *ExecutionResult `json:"result"`
}

// FinalReportEvent final-result-report 事件数据
type FinalReportEvent struct {
	Type             string         `json:"type"`
	UserID           string         `json:"userId"`
	CorrelationID    string         `json:"correlationId"`
	Report           *FinalReport   `json:"report"`
	ExecutionResults []AgentAction  `json:"executionResults"`
	AnalysisResult   *ExecutionPlan `json:"analysisResult"`
}
