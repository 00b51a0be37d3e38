package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hildam/fin-flow-go/agent"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/broker"
	"github.com/hildam/fin-flow-go/repo/bus"
)

// fakeEngine 记录调用并返回预设错误
type fakeEngine struct {
	bus       *bus.Bus
	startErr  error
	submitErr error
	notReady  bool

	started   []DepositRequest
	submitted []agent.UserActionRequest
}

func (f *fakeEngine) StartRun(_ context.Context, userID string, amount int64, id string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, DepositRequest{UserID: userID, Amount: amount, CorrelationID: id})
	if id == "" {
		id = "corr-generated"
	}
	return id, nil
}

func (f *fakeEngine) SubmitUserAction(_ context.Context, req agent.UserActionRequest) error {
	f.submitted = append(f.submitted, req)
	return f.submitErr
}

func (f *fakeEngine) Subscribe() *bus.Subscription    { return f.bus.Subscribe() }
func (f *fakeEngine) Unsubscribe(s *bus.Subscription) { f.bus.Unsubscribe(s) }
func (f *fakeEngine) IsReady() bool                   { return !f.notReady }
func (f *fakeEngine) Health(context.Context) map[string]bool {
	return map[string]bool{"mcp_tools": true, "redis": false}
}

func newServer(t *testing.T, e *fakeEngine, b broker.Broker) *server.Hertz {
	t.Helper()
	h := server.New()
	hd := New(e, b)
	h.POST("/simulate_deposit", hd.SimulateDeposit)
	h.POST("/action", hd.Action)
	h.POST("/chat_response", hd.ChatResponse)
	h.POST("/approve_all_proposals", hd.ApproveAll)
	h.POST("/reject_all_proposals", hd.RejectAll)
	h.POST("/kafka/publish", hd.Publish)
	h.GET("/health", hd.Health)
	return h
}

func do(h *server.Hertz, method, path, body string) (int, map[string]any) {
	w := ut.PerformRequest(h.Engine, method, path,
		&ut.Body{Body: bytes.NewBufferString(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	out := map[string]any{}
	_ = json.Unmarshal(resp.Body(), &out)
	return resp.StatusCode(), out
}

func TestSimulateDeposit(t *testing.T) {
	e := &fakeEngine{bus: bus.New()}
	defer e.bus.Close()
	h := newServer(t, e, nil)

	status, body := do(h, "POST", "/simulate_deposit", `{"userId": "u1", "amount": 25000}`)
	assert.Equal(t, 202, status)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "corr-generated", body["correlationId"])
	require.Len(t, e.started, 1)
	assert.Equal(t, int64(25000), e.started[0].Amount)
}

func TestSimulateDeposit_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: amount", model.ErrInvalidRequest), 400},
		{fmt.Errorf("%w: c1", model.ErrRunInFlight), 409},
		{fmt.Errorf("%w: c1", model.ErrRunExists), 409},
		{agent.ErrEngineClosed, 503},
		{errors.New("boom"), 500},
	}
	for _, c := range cases {
		e := &fakeEngine{bus: bus.New(), startErr: c.err}
		h := newServer(t, e, nil)
		status, _ := do(h, "POST", "/simulate_deposit", `{"userId": "u1", "amount": 1}`)
		assert.Equal(t, c.status, status, c.err.Error())
		e.bus.Close()
	}

	e := &fakeEngine{bus: bus.New()}
	defer e.bus.Close()
	status, _ := do(newServer(t, e, nil), "POST", "/simulate_deposit", `{not json`)
	assert.Equal(t, 400, status)
}

func TestActions(t *testing.T) {
	e := &fakeEngine{bus: bus.New()}
	defer e.bus.Close()
	h := newServer(t, e, nil)

	cases := []struct {
		path string
		body string
		kind model.UserActionKind
	}{
		{"/action", `{"userId": "u1", "correlationId": "c1", "proposalId": "p1"}`, model.UserActionUnset},
		{"/chat_response", `{"userId": "u1", "correlationId": "c1", "response": "tahvil"}`, model.UserActionCustom},
		{"/approve_all_proposals", `{"userId": "u1", "correlationId": "c1"}`, model.UserActionApprove},
		{"/reject_all_proposals", `{"userId": "u1", "correlationId": "c1"}`, model.UserActionReject},
	}
	for i, c := range cases {
		status, body := do(h, "POST", c.path, c.body)
		assert.Equal(t, 202, status, c.path)
		assert.Equal(t, "c1", body["correlationId"])
		require.Len(t, e.submitted, i+1)
		assert.Equal(t, c.kind, e.submitted[i].Kind, c.path)
	}
	assert.Equal(t, "p1", e.submitted[0].ProposalID)
	assert.Equal(t, model.UserActionApprove, e.submitted[0].Action().Kind)
	assert.Equal(t, "tahvil", e.submitted[1].Response)
}

func TestChatResponse_RequiresText(t *testing.T) {
	e := &fakeEngine{bus: bus.New()}
	defer e.bus.Close()
	status, _ := do(newServer(t, e, nil), "POST", "/chat_response", `{"userId": "u1", "correlationId": "c1", "response": "  "}`)
	assert.Equal(t, 400, status)
	assert.Empty(t, e.submitted)
}

func TestAction_NotFound(t *testing.T) {
	e := &fakeEngine{bus: bus.New(), submitErr: fmt.Errorf("%w: c9", model.ErrRunNotFound)}
	defer e.bus.Close()
	status, body := do(newServer(t, e, nil), "POST", "/approve_all_proposals", `{"userId": "u1", "correlationId": "c9"}`)
	assert.Equal(t, 404, status)
	assert.Contains(t, body["error"], "c9")
}

func TestHealth(t *testing.T) {
	e := &fakeEngine{bus: bus.New()}
	defer e.bus.Close()
	h := newServer(t, e, nil)

	status, body := do(h, "GET", "/health", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]any{"mcp_tools": true, "redis": false}, body["services"])

	e.notReady = true
	_, body = do(h, "GET", "/health", "")
	assert.Equal(t, "degraded", body["status"])
}

func TestPublish(t *testing.T) {
	e := &fakeEngine{bus: bus.New()}
	defer e.bus.Close()
	rec := broker.NewRecorder()
	h := newServer(t, e, rec)

	status, body := do(h, "POST", "/kafka/publish", `{"topic": "transactions.deposit", "data": {"userId": "u1", "amount": 100}}`)
	assert.Equal(t, 200, status)
	assert.Equal(t, "published", body["status"])

	var got map[string]any
	require.NoError(t, rec.Decode("transactions.deposit", 0, &got))
	assert.Equal(t, "u1", got["userId"])

	status, _ = do(h, "POST", "/kafka/publish", `{"data": {}}`)
	assert.Equal(t, 400, status)

	rec.Fail("t", errors.New("down"))
	status, _ = do(h, "POST", "/kafka/publish", `{"topic": "t", "data": 1}`)
	assert.Equal(t, 500, status)

	status, _ = do(newServer(t, e, nil), "POST", "/kafka/publish", `{"topic": "t", "data": 1}`)
	assert.Equal(t, 503, status)
}
