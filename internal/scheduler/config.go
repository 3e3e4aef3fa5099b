package scheduler

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omen-systems/omen/internal/domain"
)

// Duration accepts Go duration strings ("5m", "1h30m") in YAML
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// JobConfig is one polling job
type JobConfig struct {
	Source    domain.Source `yaml:"source"`
	Interval  Duration      `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	Stream    bool          `yaml:"stream"`
}

// LifecycleJobConfig controls the ledger maintenance pass
type LifecycleJobConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

// Config is the scheduler's YAML shape
type Config struct {
	Jobs      []JobConfig        `yaml:"jobs"`
	Lifecycle LifecycleJobConfig `yaml:"lifecycle"`
}

// DefaultConfig polls every source at a conservative cadence
func DefaultConfig() Config {
	jobs := make([]JobConfig, 0, len(domain.AllSources))
	for _, src := range domain.AllSources {
		job := JobConfig{Source: src, Interval: Duration(5 * time.Minute), BatchSize: 50}
		if src == domain.SourceVesselTracking {
			job.Stream = true
		}
		jobs = append(jobs, job)
	}
	return Config{
		Jobs:      jobs,
		Lifecycle: LifecycleJobConfig{Enabled: true, Interval: Duration(time.Hour)},
	}
}

// LoadConfig reads the scheduler configuration from a YAML file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read scheduler config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse scheduler config: %w", err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	for i := range c.Jobs {
		if c.Jobs[i].Interval <= 0 {
			c.Jobs[i].Interval = Duration(5 * time.Minute)
		}
		if c.Jobs[i].BatchSize <= 0 {
			c.Jobs[i].BatchSize = 50
		}
	}
	if c.Lifecycle.Interval <= 0 {
		c.Lifecycle.Interval = Duration(time.Hour)
	}
	return c
}

// Validate rejects jobs for unknown sources
func (c Config) Validate() error {
	known := make(map[domain.Source]bool, len(domain.AllSources))
	for _, src := range domain.AllSources {
		known[src] = true
	}
	for _, job := range c.Jobs {
		if !known[job.Source] {
			return fmt.Errorf("scheduler job for unknown source %q", job.Source)
		}
	}
	return nil
}
