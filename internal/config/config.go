// Package config loads engine configuration from the environment plus
// optional YAML files for scheduler jobs and source definitions.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omen-systems/omen/internal/domain"
)

// Environment selects runtime behavior (audit strictness, live gating)
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// SourceConfig describes one configured ingestion source
type SourceConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Enabled  bool   `yaml:"enabled"`
}

// HasCredentials reports whether the source can reach a real provider
func (s SourceConfig) HasCredentials() bool {
	return s.Provider != "" && (s.APIKey != "" || s.BaseURL != "")
}

// Config is the process-wide configuration
type Config struct {
	Env            Environment
	LedgerBasePath string
	DatabaseURL    string
	RedisURL       string

	RiskcastURL    string
	RiskcastAPIKey string

	APIKeyPepper   string
	APIKeyHashes   []string
	ListenAddr     string
	RateLimitRPM   int
	RateLimitBurst int

	MinConfidence     float64
	EnableCorrelation bool
	DryRun            bool

	BackupDir           string
	BackupRetentionDays int
	DrainTimeout        time.Duration

	Sources map[domain.Source]SourceConfig
}

// Load reads configuration from the environment. In production a missing
// OMEN_API_KEY_PEPPER is a hard error; development gets permissive
// defaults so the engine runs out of the box.
func Load() (Config, error) {
	cfg := Config{
		Env:                 Environment(envOr("OMEN_ENV", string(EnvDevelopment))),
		LedgerBasePath:      envOr("OMEN_LEDGER_BASE_PATH", "./data/ledger"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		RiskcastURL:         os.Getenv("RISKCAST_URL"),
		RiskcastAPIKey:      os.Getenv("RISKCAST_API_KEY"),
		APIKeyPepper:        os.Getenv("OMEN_API_KEY_PEPPER"),
		APIKeyHashes:        splitList(os.Getenv("OMEN_API_KEY_HASHES")),
		ListenAddr:          envOr("OMEN_LISTEN_ADDR", ":8090"),
		RateLimitRPM:        envInt("OMEN_RATE_LIMIT_RPM", 120),
		RateLimitBurst:      envInt("OMEN_RATE_LIMIT_BURST", 20),
		MinConfidence:       envFloat("OMEN_MIN_CONFIDENCE", 0.35),
		EnableCorrelation:   envBool("OMEN_ENABLE_CORRELATION", true),
		DryRun:              envBool("OMEN_DRY_RUN", false),
		BackupDir:           os.Getenv("OMEN_BACKUP_DIR"),
		BackupRetentionDays: envInt("OMEN_BACKUP_RETENTION_DAYS", 14),
		DrainTimeout:        envDuration("OMEN_DRAIN_TIMEOUT", 30*time.Second),
		Sources:             loadSources(),
	}

	switch cfg.Env {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return cfg, domain.Ef(domain.KindConfiguration, "unknown OMEN_ENV %q", cfg.Env)
	}

	if cfg.Env == EnvProduction && cfg.APIKeyPepper == "" {
		return cfg, domain.Ef(domain.KindConfiguration, "OMEN_API_KEY_PEPPER is required in production")
	}

	// OMEN_SOURCES_FILE overlays the env-derived source blocks; env API
	// keys stay authoritative so secrets never need to live in the file.
	if path := os.Getenv("OMEN_SOURCES_FILE"); path != "" {
		if err := mergeSourcesFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func mergeSourcesFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.E(domain.KindConfiguration, err)
	}

	var file struct {
		Sources map[domain.Source]SourceConfig `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return domain.Ef(domain.KindConfiguration, "parse sources file %s: %v", path, err)
	}

	for src, sc := range file.Sources {
		known := false
		for _, k := range domain.AllSources {
			if k == src {
				known = true
				break
			}
		}
		if !known {
			return domain.Ef(domain.KindConfiguration, "sources file names unknown source %q", src)
		}
		if existing, ok := cfg.Sources[src]; ok && existing.APIKey != "" {
			sc.APIKey = existing.APIKey
		}
		cfg.Sources[src] = sc
	}
	return nil
}

// loadSources reads per-source env blocks: <SOURCE>_PROVIDER,
// <SOURCE>_API_KEY, <SOURCE>_BASE_URL, <SOURCE>_ENABLED.
func loadSources() map[domain.Source]SourceConfig {
	sources := make(map[domain.Source]SourceConfig, len(domain.AllSources))
	for _, src := range domain.AllSources {
		prefix := strings.ToUpper(string(src))
		sources[src] = SourceConfig{
			Provider: os.Getenv(prefix + "_PROVIDER"),
			APIKey:   os.Getenv(prefix + "_API_KEY"),
			BaseURL:  os.Getenv(prefix + "_BASE_URL"),
			Enabled:  envBool(prefix+"_ENABLED", true),
		}
	}
	return sources
}

// IsProduction reports whether the engine runs with production gating
func (c Config) IsProduction() bool { return c.Env == EnvProduction }

// Validate checks cross-field consistency
func (c Config) Validate() error {
	if c.LedgerBasePath == "" {
		return domain.Ef(domain.KindConfiguration, "ledger base path must not be empty")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return domain.Ef(domain.KindConfiguration, "min confidence %.2f outside [0,1]", c.MinConfidence)
	}
	if c.RateLimitRPM <= 0 {
		return domain.Ef(domain.KindConfiguration, "rate limit rpm must be positive")
	}
	return nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// Fingerprint returns a redacted summary for startup logging
func (c Config) Fingerprint() string {
	enabled := 0
	for _, s := range c.Sources {
		if s.Enabled && s.HasCredentials() {
			enabled++
		}
	}
	return fmt.Sprintf("env=%s ledger=%s db=%t redis=%t sources=%d/%d",
		c.Env, c.LedgerBasePath, c.DatabaseURL != "", c.RedisURL != "", enabled, len(c.Sources))
}
