package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omen-systems/omen/internal/domain"
)

func TestLoad_DevelopmentDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, 0.35, cfg.MinConfidence)
	assert.True(t, cfg.EnableCorrelation)
	assert.Len(t, cfg.Sources, len(domain.AllSources))
}

func TestLoad_ProductionRequiresPepper(t *testing.T) {
	t.Setenv("OMEN_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestLoad_UnknownEnvRejected(t *testing.T) {
	t.Setenv("OMEN_ENV", "sandbox")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_SourcesFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  prediction_markets:
    provider: polymarket
    base_url: https://api.polymarket.example
    enabled: true
  news:
    provider: newsdesk
    enabled: false
`), 0o644))
	t.Setenv("OMEN_SOURCES_FILE", path)
	t.Setenv("PREDICTION_MARKETS_API_KEY", "env-secret")

	cfg, err := Load()
	require.NoError(t, err)

	pm := cfg.Sources[domain.SourcePredictionMarkets]
	assert.Equal(t, "polymarket", pm.Provider)
	assert.Equal(t, "env-secret", pm.APIKey, "env API key survives the overlay")
	assert.True(t, pm.HasCredentials())

	assert.False(t, cfg.Sources[domain.SourceNews].Enabled)
}

func TestLoad_SourcesFileUnknownSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources:\n  astrology:\n    enabled: true\n"), 0o644))
	t.Setenv("OMEN_SOURCES_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestValidate(t *testing.T) {
	cfg := Config{LedgerBasePath: "./data", MinConfidence: 0.5, RateLimitRPM: 100}
	assert.NoError(t, cfg.Validate())

	cfg.MinConfidence = 1.5
	assert.Error(t, cfg.Validate())

	cfg.MinConfidence = 0.5
	cfg.LedgerBasePath = ""
	assert.Error(t, cfg.Validate())
}

func TestHasCredentials(t *testing.T) {
	assert.False(t, SourceConfig{}.HasCredentials())
	assert.False(t, SourceConfig{Provider: "x"}.HasCredentials())
	assert.True(t, SourceConfig{Provider: "x", APIKey: "k"}.HasCredentials())
	assert.True(t, SourceConfig{Provider: "x", BaseURL: "https://u"}.HasCredentials())
}
