package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	hconsts "github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/protocol/sse"

	"github.com/hildam/fin-flow-go/agent"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/broker"
	"github.com/hildam/fin-flow-go/repo/bus"
	"github.com/hildam/fin-flow-go/repo/callback"
)

// Engine 前端依赖的引擎能力
type Engine interface {
	StartRun(ctx context.Context, userID string, amount int64, correlationID string) (string, error)
	SubmitUserAction(ctx context.Context, req agent.UserActionRequest) error
	Subscribe() *bus.Subscription
	Unsubscribe(s *bus.Subscription)
	IsReady() bool
	Health(ctx context.Context) map[string]bool
}

// Handler HTTP 前端
type Handler struct {
	engine Engine
	broker broker.Broker
}

// New 创建实例，b 为 nil 时手动发布接口返回 503
func New(engine Engine, b broker.Broker) *Handler {
	return &Handler{engine: engine, broker: b}
}

// DepositRequest 模拟入账
type DepositRequest struct {
	UserID        string `json:"userId"`
	Amount        int64  `json:"amount"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// ActionRequest 用户对最终建议的回复
type ActionRequest struct {
	UserID        string         `json:"userId"`
	CorrelationID string         `json:"correlationId"`
	ProposalID    string         `json:"proposalId,omitempty"`
	Proposal      map[string]any `json:"proposal,omitempty"`
	Response      string         `json:"response,omitempty"`
}

// PublishRequest 手动发布消息
type PublishRequest struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// SimulateDeposit POST /simulate_deposit
func (h *Handler) SimulateDeposit(ctx context.Context, c *app.RequestContext) {
	var req DepositRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, err := h.engine.StartRun(ctx, req.UserID, req.Amount, req.CorrelationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(hconsts.StatusAccepted, utils.H{"status": "accepted", "correlationId": id})
}

// Action POST /action，没有回复内容视为批准
func (h *Handler) Action(ctx context.Context, c *app.RequestContext) {
	h.submit(ctx, c, model.UserActionUnset, false)
}

// ChatResponse POST /chat_response，回复内容按自定义回复处理
func (h *Handler) ChatResponse(ctx context.Context, c *app.RequestContext) {
	h.submit(ctx, c, model.UserActionCustom, true)
}

// ApproveAll POST /approve_all_proposals
func (h *Handler) ApproveAll(ctx context.Context, c *app.RequestContext) {
	h.submit(ctx, c, model.UserActionApprove, false)
}

// RejectAll POST /reject_all_proposals
func (h *Handler) RejectAll(ctx context.Context, c *app.RequestContext) {
	h.submit(ctx, c, model.UserActionReject, false)
}

func (h *Handler) submit(ctx context.Context, c *app.RequestContext, kind model.UserActionKind, needText bool) {
	var req ActionRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if needText && strings.TrimSpace(req.Response) == "" {
		badRequest(c, errors.New("response is required"))
		return
	}

	err := h.engine.SubmitUserAction(ctx, agent.UserActionRequest{
		UserID:        req.UserID,
		CorrelationID: req.CorrelationID,
		ProposalID:    req.ProposalID,
		Proposal:      req.Proposal,
		Response:      req.Response,
		Kind:          kind,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(hconsts.StatusAccepted, utils.H{"status": "accepted", "correlationId": req.CorrelationID})
}

// Stream GET /stream，以 SSE 推送总线事件，可按 correlationId 过滤
// 写入失败或请求结束时立即取消订阅
func (h *Handler) Stream(ctx context.Context, c *app.RequestContext) {
	sub := h.engine.Subscribe()
	defer h.engine.Unsubscribe(sub)

	w := sse.NewWriter(c)
	defer w.Close()

	pusher := &callback.EventPusher{ID: c.Query("correlationId"), SSE: w}
	if err := pusher.Pump(ctx, sub, nil); err != nil {
		slog.Info("Stream closed, err = %v", err)
	}
}

// Health GET /health
func (h *Handler) Health(ctx context.Context, c *app.RequestContext) {
	services := h.engine.Health(ctx)
	status := "healthy"
	if !h.engine.IsReady() || !services["mcp_tools"] {
		status = "degraded"
	}
	c.JSON(hconsts.StatusOK, utils.H{"status": status, "services": services})
}

// Publish POST /kafka/publish
func (h *Handler) Publish(ctx context.Context, c *app.RequestContext) {
	var req PublishRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Topic == "" {
		badRequest(c, errors.New("topic is required"))
		return
	}
	if h.broker == nil {
		c.JSON(hconsts.StatusServiceUnavailable, utils.H{"error": "broker not configured"})
		return
	}
	if err := h.broker.Publish(ctx, req.Topic, req.Data); err != nil {
		slog.Error("Publish failed, topic = %s, err = %v", req.Topic, err)
		c.JSON(hconsts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	c.JSON(hconsts.StatusOK, utils.H{"status": "published", "topic": req.Topic})
}

func badRequest(c *app.RequestContext, err error) {
	c.JSON(hconsts.StatusBadRequest, utils.H{"error": err.Error()})
}

// writeError 按错误类型映射状态码
func writeError(c *app.RequestContext, err error) {
	status := hconsts.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		status = hconsts.StatusBadRequest
	case errors.Is(err, model.ErrRunNotFound):
		status = hconsts.StatusNotFound
	case errors.Is(err, model.ErrRunInFlight), errors.Is(err, model.ErrRunExists):
		status = hconsts.StatusConflict
	case errors.Is(err, agent.ErrEngineClosed):
		status = hconsts.StatusServiceUnavailable
	}
	c.JSON(status, utils.H{"error": err.Error()})
}
