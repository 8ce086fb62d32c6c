package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.AppPort)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	require.Equal(t, 90*time.Second, cfg.ExtractionTimeout)
	require.Equal(t, "https://api.openalex.org", cfg.OpenAlexBaseURL)
	require.Equal(t, 20, cfg.SearchPerPage)
	require.Equal(t, 5, cfg.PreEvalConcurrency)
	require.Equal(t, 10, cfg.DeepBatchSize)
	require.Equal(t, 5000, cfg.StatementMaxLen)
	require.False(t, cfg.IsProduction())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PAPERPROOF_APP_ENV", "production")
	t.Setenv("PAPERPROOF_AI_MODEL", "gpt-4o")
	t.Setenv("PAPERPROOF_OPENAI_API_KEY", "sk-test")
	t.Setenv("PAPERPROOF_OPENALEX_BASE_URL", "https://api.openalex.org/")

	cfg, err := Load()
	require.NoError(t, err)

	require.True(t, cfg.IsProduction())
	require.Equal(t, "gpt-4o", cfg.OpenAIModel)
	require.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	require.Equal(t, "https://api.openalex.org", cfg.OpenAlexBaseURL)
}

func TestLoadRejectsBadDurations(t *testing.T) {
	t.Setenv("PAPERPROOF_SESSION_CACHE_TTL", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "session cache ttl")
}

func TestHTTPAddress(t *testing.T) {
	require.Equal(t, ":8080", Config{AppPort: "8080"}.HTTPAddress())
	require.Equal(t, ":9000", Config{AppPort: ":9000"}.HTTPAddress())
}
