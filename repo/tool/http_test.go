package tool

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/tool/tooltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, srv *tooltest.Server, timeout time.Duration) *HTTPGateway {
	t.Helper()
	g, err := NewHTTP(conf.ToolConfig{BaseURL: srv.URL, Timeout: timeout, HealthTimeout: time.Second})
	require.NoError(t, err)
	return g
}

func TestHTTPGateway_Call(t *testing.T) {
	srv := tooltest.NewServer()
	defer srv.Close()
	srv.AddUser("u1", 0.3)
	g := newTestGateway(t, srv, time.Second)

	res, err := g.Call(context.Background(), consts.ToolUserProfileGet, map[string]any{"userId": "u1"})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, res.Get("savedPreferences.autoSavingsRate").Float(), 1e-9)
	assert.Equal(t, "u1", res.Get("userId").String())
	assert.Equal(t, 1, srv.Calls(consts.ToolUserProfileGet))
}

func TestHTTPGateway_StatusError(t *testing.T) {
	srv := tooltest.NewServer()
	defer srv.Close()
	g := newTestGateway(t, srv, time.Second)

	_, err := g.Call(context.Background(), consts.ToolUserProfileGet, map[string]any{"userId": "unknown"})
	require.Error(t, err)
	var te *model.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, consts.ToolUserProfileGet, te.Path)
	assert.Equal(t, "status 404", te.Detail)

	srv.Fail(consts.ToolMarketQuotes, http.StatusInternalServerError)
	_, err = g.Call(context.Background(), consts.ToolMarketQuotes, map[string]any{"assetType": "bond"})
	assert.True(t, model.IsToolError(err))
}

func TestHTTPGateway_Timeout(t *testing.T) {
	srv := tooltest.NewServer()
	defer srv.Close()
	srv.Delay(consts.ToolRiskScoreTransaction, 500*time.Millisecond)
	g := newTestGateway(t, srv, 50*time.Millisecond)

	start := time.Now()
	_, err := g.Call(context.Background(), consts.ToolRiskScoreTransaction, map[string]any{"userId": "u1"})
	require.Error(t, err)
	assert.True(t, model.IsToolError(err))
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestHTTPGateway_Healthy(t *testing.T) {
	srv := tooltest.NewServer()
	g := newTestGateway(t, srv, time.Second)
	assert.True(t, g.Healthy(context.Background()))
	assert.True(t, g.Ready())

	srv.Close()
	assert.False(t, g.Healthy(context.Background()))
}

func TestResult_Get(t *testing.T) {
	r := &Result{Raw: []byte(`{"analysis":{"overallScore":0.05},"quotes":[{"rate":0.28}]}`)}
	assert.InDelta(t, 0.05, r.Get("analysis.overallScore").Float(), 1e-9)
	assert.Equal(t, int64(1), r.Get("quotes.#").Int())
	assert.False(t, r.Get("missing").Exists())

	var nilRes *Result
	assert.False(t, nilRes.Get("x").Exists())
	b, err := nilRes.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestCatalog(t *testing.T) {
	infos := Infos(consts.ToolUserProfileGet, consts.ToolTransactionsQuery, "unknown.tool")
	require.Len(t, infos, 2)
	assert.Equal(t, "userProfile_get", infos[0].Name)

	path, ok := PathOf("risk_scoreTransaction")
	assert.True(t, ok)
	assert.Equal(t, consts.ToolRiskScoreTransaction, path)

	path, ok = PathOf("market.quotes")
	assert.True(t, ok)
	assert.Equal(t, consts.ToolMarketQuotes, path)

	_, ok = PathOf("rm_rf")
	assert.False(t, ok)
}
