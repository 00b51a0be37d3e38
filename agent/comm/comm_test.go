package comm

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/repo/metrics"
	"github.com/hildam/fin-flow-go/repo/tool"
	"github.com/hildam/fin-flow-go/repo/tool/tooltest"
)

func TestDeps_CallToolCountsOnce(t *testing.T) {
	srv := tooltest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser("u1", 0.3)
	srv.Fail(consts.ToolRiskScoreTransaction, http.StatusInternalServerError)

	m := metrics.New()
	tools, err := tool.NewHTTP(conf.ToolConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, tool.WithMetrics(m))
	require.NoError(t, err)
	d := &Deps{Tools: tools, Metrics: m, Config: conf.Default()}

	_, err = d.CallTool(context.Background(), consts.ToolUserProfileGet, map[string]any{"userId": "u1"})
	require.NoError(t, err)
	_, err = d.CallTool(context.Background(), consts.ToolRiskScoreTransaction, map[string]any{"userId": "u1"})
	require.Error(t, err)

	want := `
# HELP finflow_tool_calls_total Finance tool invocations by path and outcome
# TYPE finflow_tool_calls_total counter
finflow_tool_calls_total{outcome="error",path="risk.scoreTransaction"} 1
finflow_tool_calls_total{outcome="ok",path="userProfile.get"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(want), "finflow_tool_calls_total"))
}

func TestDeps_CallToolWithoutGateway(t *testing.T) {
	m := metrics.New()
	d := &Deps{Metrics: m}

	_, err := d.CallTool(context.Background(), consts.ToolMarketQuotes, nil)
	require.Error(t, err)

	want := `
# HELP finflow_tool_calls_total Finance tool invocations by path and outcome
# TYPE finflow_tool_calls_total counter
finflow_tool_calls_total{outcome="error",path="market.quotes"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(want), "finflow_tool_calls_total"))
}
