package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/httpc"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatModel 按顺序返回预设结果
type fakeChatModel struct {
	calls   atomic.Int32
	respond func(n int32) (*schema.Message, error)
	tools   []*schema.ToolInfo
}

func (f *fakeChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...ecmodel.Option) (*schema.Message, error) {
	return f.respond(f.calls.Add(1))
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...ecmodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (ecmodel.ToolCallingChatModel, error) {
	f.tools = tools
	return f, nil
}

func testConfig(rawURL string) conf.ModelConfig {
	return conf.ModelConfig{
		Fast:       conf.Model{ModelID: "llama3.2:3b", Timeout: time.Second, RawBaseURL: rawURL},
		Strong:     conf.Model{ModelID: "strong", Timeout: time.Second},
		Embedding:  conf.Model{ModelID: "nomic-embed-text:latest", BaseURL: rawURL, Timeout: time.Second},
		MaxRetries: 2,
	}
}

func TestClient_FastPrimaryToolCalls(t *testing.T) {
	fast := &fakeChatModel{respond: func(int32) (*schema.Message, error) {
		return &schema.Message{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{{
				ID:       "call-1",
				Function: schema.FunctionCall{Name: "userProfile_get", Arguments: `{"userId":"u9"}`},
			}},
		}, nil
	}}
	c, err := New(context.Background(), testConfig(""), WithModels(fast, &fakeChatModel{}))
	require.NoError(t, err)

	tools := []*schema.ToolInfo{{Name: "userProfile_get", Desc: "profile"}}
	res, err := c.Fast(context.Background(), []*schema.Message{schema.UserMessage("hi")}, tools)
	require.NoError(t, err)
	assert.Equal(t, BackendFast, res.Backend)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "userProfile_get", res.ToolCalls[0].Name)
	assert.Equal(t, "u9", res.ToolCalls[0].Arguments["userId"])
	assert.Equal(t, tools, fast.tools)
}

func TestClient_FastFallsBackToRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req rawChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2:3b", req.Model)
		assert.False(t, req.Stream)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"risk_scoreTransaction","arguments":{"userId":"u1"}}}]}}`))
	}))
	defer srv.Close()

	fast := &fakeChatModel{respond: func(int32) (*schema.Message, error) { return nil, errors.New("connection refused") }}
	c, err := New(context.Background(), testConfig(srv.URL), WithModels(fast, &fakeChatModel{}))
	require.NoError(t, err)

	res, err := c.Fast(context.Background(), []*schema.Message{schema.UserMessage("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendRaw, res.Backend)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "risk_scoreTransaction", res.ToolCalls[0].Name)
	assert.Equal(t, "u1", res.ToolCalls[0].Arguments["userId"])
}

func TestClient_FastBothFail(t *testing.T) {
	fast := &fakeChatModel{respond: func(int32) (*schema.Message, error) { return nil, errors.New("down") }}
	c, err := New(context.Background(), testConfig(""), WithModels(fast, &fakeChatModel{}))
	require.NoError(t, err)

	_, err = c.Fast(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, model.IsModelError(err))
}

func TestClient_StrongRetries(t *testing.T) {
	strong := &fakeChatModel{respond: func(n int32) (*schema.Message, error) {
		if n < 3 {
			return nil, errors.New("503")
		}
		return schema.AssistantMessage("tamam", nil), nil
	}}
	c, err := New(context.Background(), testConfig(""), WithModels(nil, strong), WithRetryInterval(time.Millisecond))
	require.NoError(t, err)

	text, err := c.Strong(context.Background(), []*schema.Message{schema.UserMessage("x")})
	require.NoError(t, err)
	assert.Equal(t, "tamam", text)
	assert.Equal(t, int32(3), strong.calls.Load())
}

func TestClient_StrongGivesUp(t *testing.T) {
	strong := &fakeChatModel{respond: func(int32) (*schema.Message, error) { return schema.AssistantMessage("  ", nil), nil }}
	cfg := testConfig("")
	cfg.MaxRetries = 1
	c, err := New(context.Background(), cfg, WithModels(nil, strong), WithRetryInterval(time.Millisecond))
	require.NoError(t, err)

	_, err = c.Strong(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, model.IsModelError(err))
	assert.Equal(t, int32(2), strong.calls.Load())
}

func TestClient_StrongStopsOnClientError(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		calls int32
	}{
		{"status 400", &httpc.StatusError{Code: http.StatusBadRequest}, 1},
		{"api 401", fmt.Errorf("failed to create chat completion: %w", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}), 1},
		{"request 404", &openai.RequestError{HTTPStatusCode: http.StatusNotFound, Err: errors.New("not found")}, 1},
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, 3},
		{"status 502", &httpc.StatusError{Code: http.StatusBadGateway}, 3},
		{"network", errors.New("connection refused"), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			strong := &fakeChatModel{respond: func(int32) (*schema.Message, error) { return nil, tc.err }}
			c, err := New(context.Background(), testConfig(""), WithModels(nil, strong), WithRetryInterval(time.Millisecond))
			require.NoError(t, err)

			_, err = c.Strong(context.Background(), nil)
			require.Error(t, err)
			assert.True(t, model.IsModelError(err))
			assert.Equal(t, tc.calls, strong.calls.Load())
		})
	}
}

func TestStrongJSON(t *testing.T) {
	type verdict struct {
		Intent string `json:"intent"`
	}
	fallback := func() verdict { return verdict{Intent: "GeneralAgent"} }

	strong := &fakeChatModel{respond: func(int32) (*schema.Message, error) {
		return schema.AssistantMessage("Cevap: {\"intent\": \"RiskAgent\"}", nil), nil
	}}
	c, err := New(context.Background(), testConfig(""), WithModels(nil, strong))
	require.NoError(t, err)

	got, ok := StrongJSON(context.Background(), c, nil, "verdict", fallback)
	assert.True(t, ok)
	assert.Equal(t, "RiskAgent", got.Intent)

	got, ok = StrongJSON[verdict](context.Background(), nil, nil, "verdict", fallback)
	assert.False(t, ok)
	assert.Equal(t, "GeneralAgent", got.Intent)
}

func TestClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), testConfig(srv.URL), WithModels(nil, nil))
	require.NoError(t, err)
	vec, err := c.Embed(context.Background(), "deposit analysis")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.InDelta(t, 0.2, vec[1], 1e-6)
}

func TestClient_Ready(t *testing.T) {
	c, err := New(context.Background(), conf.ModelConfig{}, WithModels(nil, nil))
	require.NoError(t, err)
	assert.False(t, c.Ready())

	c, err = New(context.Background(), conf.ModelConfig{}, WithModels(&fakeChatModel{}, &fakeChatModel{}))
	require.NoError(t, err)
	assert.True(t, c.Ready())
}
