package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"

	"github.com/hildam/fin-flow-go/agent/comm"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/template"
)

// 协调者可见的记忆工具
const (
	toolRecentAction  = "memory_recentAction"
	toolSearchSimilar = "memory_searchSimilar"
)

// memoryTools 记忆工具声明，参数由阶段绑定
var memoryTools = []*schema.ToolInfo{
	{
		Name: toolRecentAction,
		Desc: "Kullanıcının son eylemini kısa vadeli hafızadan getirir.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"userId": {Type: schema.String, Required: true},
		}),
	},
	{
		Name: toolSearchSimilar,
		Desc: "Geçmiş benzer analizleri uzun vadeli hafızada arar.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"userId": {Type: schema.String, Required: true},
			"query":  {Type: schema.String, Desc: "Arama cümlesi"},
		}),
	},
}

// snippetLen 长期记忆摘要长度
const snippetLen = 100

// coordinatorImpl 协调者，汇总各代理输出与记忆生成最终建议
type coordinatorImpl struct {
	d *comm.Deps
}

// NewCoordinator 创建实例
func NewCoordinator(d *comm.Deps) comm.Stage {
	return &coordinatorImpl{d: d}
}

func (c *coordinatorImpl) Name() model.Stage { return model.StageCoordinator }

// Run 读取记忆，调用强模型生成最终消息，更新记忆并发送通知
func (c *coordinatorImpl) Run(ctx context.Context, st *model.RunState, force bool) (*model.StageOutput, error) {
	proposal := st.Proposal()
	if proposal == nil {
		return nil, fmt.Errorf("coordinator stage needs a payments proposal")
	}

	usedFallback := force || !c.selectTools(ctx, st)

	// 记忆读取的参数固定，模型只决定是否走工具模式
	shortTerm := c.shortTermMemory(ctx, st.UserID)
	longTerm := c.longTermMemory(ctx, st.UserID)

	message := c.synthesize(ctx, st, shortTerm, longTerm)
	st.FinalMessage = message

	payload := &model.CoordinatorPayload{
		Message:         message,
		ShortTermMemory: shortTerm,
		LongTermMemory:  longTerm,
		Proposal:        *proposal,
	}
	out := &model.StageOutput{
		AgentName:    consts.CoordinatorAgent,
		Action:       consts.ActionFinalProposal,
		Payload:      payload,
		HumanMessage: message,
		UsedFallback: usedFallback,
	}
	st.SetOutput(model.StageCoordinator, out)

	c.updateMemories(ctx, st, message)

	notification := model.NotificationEvent{
		Type:          consts.FinalProposalType,
		UserID:        st.UserID,
		CorrelationID: st.CorrelationID,
		Message:       message,
		Proposal:      proposal,
	}
	c.d.Emit(consts.EventNotification, st.CorrelationID, notification)
	c.d.Publish(ctx, consts.TopicAdvisorFinalMessage, notification)
	slog.Info("coordinator done, %s", comm.Describe(st))
	return out, nil
}

func (c *coordinatorImpl) selectTools(ctx context.Context, st *model.RunState) bool {
	msgs, err := template.Render(ctx, "coordinator", map[string]any{
		"user_id": st.UserID,
		"amount":  comm.FormatAmount(st.Amount),
	}, schema.UserMessage("Son öneriyi hazırlamadan önce hafızayı kontrol et."))
	if err != nil {
		return false
	}
	selected, err := c.d.SelectTools(ctx, msgs, memoryTools)
	if err != nil {
		slog.Error("coordinator select tools failed, %s, err = %v", comm.Describe(st), err)
		return false
	}
	return len(selected) > 0
}

// shortTermMemory 最近一次用户动作
func (c *coordinatorImpl) shortTermMemory(ctx context.Context, userID string) string {
	if c.d.Memory == nil {
		return ""
	}
	rec := c.d.Memory.RecentAction(ctx, userID)
	if len(rec) == 0 {
		return ""
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	return "Son kullanıcı eylemi: " + string(data)
}

// longTermMemory 与本次入账相似的历史分析摘要
func (c *coordinatorImpl) longTermMemory(ctx context.Context, userID string) []string {
	if c.d.Memory == nil {
		return nil
	}
	hits := c.d.Memory.Search(ctx, userID, consts.LongTermMemoryQuery, consts.LongTermMemoryTopK)
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, snippet(h.Content))
	}
	return out
}

// synthesize 调用强模型，失败或为空时返回固定文案
func (c *coordinatorImpl) synthesize(ctx context.Context, st *model.RunState, shortTerm string, longTerm []string) string {
	longText := ""
	if len(longTerm) > 0 {
		lines := make([]string, 0, len(longTerm))
		for _, s := range longTerm {
			lines = append(lines, "- "+s)
		}
		longText = "Geçmiş benzer analizler:\n" + strings.Join(lines, "\n")
	}

	msgs, err := template.RenderPair(ctx, "advisor_system", "advisor_user", map[string]any{
		"user_id":            st.UserID,
		"amount":             comm.FormatAmount(st.Amount),
		"payments_message":   humanMessage(st, model.StagePayments),
		"risk_message":       humanMessage(st, model.StageRisk),
		"investment_message": humanMessage(st, model.StageInvestment),
		"short_term_memory":  shortTerm,
		"long_term_memory":   longText,
	})
	if err != nil {
		return consts.CoordinatorFallbackMsg
	}

	text, err := c.d.Strong(ctx, msgs)
	if err != nil {
		slog.Error("coordinator synthesize failed, use fallback message, %s, err = %v", comm.Describe(st), err)
		return consts.CoordinatorFallbackMsg
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return consts.CoordinatorFallbackMsg
	}
	return text
}

// updateMemories 写入长期记忆与短期事件，失败只记录日志
func (c *coordinatorImpl) updateMemories(ctx context.Context, st *model.RunState, message string) {
	if c.d.Memory == nil {
		return
	}
	c.d.Memory.Store(ctx, st.UserID, fmt.Sprintf("Deposit analysis for %d₺: %s", st.Amount, message), map[string]any{
		"type":          "deposit_analysis",
		"amount":        st.Amount,
		"correlationId": st.CorrelationID,
	})
	c.d.Memory.PushEvent(ctx, st.UserID, map[string]any{
		"type":    "deposit",
		"amount":  st.Amount,
		"ts":      time.Now().Unix(),
		"message": message,
	})
}

func humanMessage(st *model.RunState, stage model.Stage) string {
	if out, ok := st.Output(stage); ok {
		return out.HumanMessage
	}
	return ""
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetLen {
		return s
	}
	return string([]rune(s)[:snippetLen]) + "..."
}
