package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
market:
  sources:
    - name: sina
      enabled: true
      priority: 1
      timeout_ms: 3000
llm:
  model: qwen-plus
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "qwen-plus", cfg.LLM.Model)
	require.Len(t, cfg.Market.Sources, 1)
	require.Equal(t, "sina", cfg.Market.Sources[0].Name)
	// untouched sections keep defaults
	require.Equal(t, "data/app.db", cfg.Store.Sqlite.Path)
	require.NotEmpty(t, cfg.Resolver.ASharePrefixes)
	require.Equal(t, 120, cfg.Analysis.StreamTimeoutSec)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	t.Setenv("PORT", "7070")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "sk-test", cfg.LLM.APIKey)
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoad_InvalidPort(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	t.Setenv("PORT", "not-a-port")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
