package template

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPromptTemplate_Embedded(t *testing.T) {
	OverrideDir = t.TempDir()
	defer func() { OverrideDir = "prompts" }()

	for _, name := range []string{"payments", "risk", "investment", "coordinator", "advisor_system", "advisor_user", "analyzer", "planner", "reporter"} {
		content, err := GetPromptTemplate(context.Background(), name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, content, name)
	}

	_, err := GetPromptTemplate(context.Background(), "missing")
	assert.Error(t, err)
}

func TestGetPromptTemplate_Override(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "risk.md"), []byte("override {{ user_id }}"), 0o644))
	OverrideDir = dir
	defer func() { OverrideDir = "prompts" }()

	msgs, err := Render(context.Background(), "risk", map[string]any{"user_id": "u1"}, schema.UserMessage("merhaba"))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "override u1", msgs[0].Content)
	assert.Equal(t, "merhaba", msgs[1].Content)
}

func TestRenderPair(t *testing.T) {
	OverrideDir = ""
	defer func() { OverrideDir = "prompts" }()

	msgs, err := RenderPair(context.Background(), "advisor_system", "advisor_user", map[string]any{
		"user_id":            "u1",
		"amount":             "25,000",
		"payments_message":   "p",
		"risk_message":       "r",
		"investment_message": "i",
		"short_term_memory":  "",
		"long_term_memory":   "",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "Kullanıcı u1 için 25,000₺ maaş yatışı analizi")
}
