package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Tool.BaseURL, cfg.Tool.BaseURL)
	assert.Equal(t, 6*time.Second, cfg.Tool.Timeout)
	assert.Equal(t, "financial_memory", cfg.Memory.Vector.Collection)
	assert.Equal(t, 768, cfg.Memory.Vector.VectorSize)
	assert.Equal(t, 24*time.Hour, cfg.Memory.ShortTermTTL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
tool:
  base_url: http://localhost:4000
  timeout: 2s
model:
  strong:
    model_id: test-strong
broker:
  driver: nats
setting:
  auto_approve: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000", cfg.Tool.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Tool.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Tool.HealthTimeout, "untouched keys keep defaults")
	assert.Equal(t, "test-strong", cfg.Model.Strong.ModelID)
	assert.Equal(t, Default().Model.Strong.BaseURL, cfg.Model.Strong.BaseURL)
	assert.Equal(t, "nats", cfg.Broker.Driver)
	assert.True(t, cfg.Setting.AutoApprove)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tool:\n  base_url: http://file:4000\n"), 0o644))

	t.Setenv("FINFLOW_TOOL__BASE_URL", "http://env:4000")
	t.Setenv("HF_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env:4000", cfg.Tool.BaseURL)
	assert.Equal(t, "secret", cfg.Model.Strong.APIKey)
	assert.Equal(t, "***", redacted(cfg).Model.Strong.APIKey)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "model.strong.api_key", envKey("FINFLOW_MODEL__STRONG__API_KEY"))
	assert.Equal(t, "", legacyKey("PATH"))
	assert.Equal(t, "tool.base_url", legacyKey("MCP_BASE_URL"))
}
