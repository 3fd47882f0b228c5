// Package config loads exploration policy from a YAML file with environment
// overrides. Everything that shapes a run (budget profiles, classifier
// thresholds, detector thresholds, the answering model) is policy here, not
// a constant buried in the engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rand/fractal/internal/budget"
	"github.com/rand/fractal/internal/classify"
	"github.com/rand/fractal/internal/detect"
)

// Config is the full policy for the exploration engine.
type Config struct {
	// DBPath is the SQLite file holding exploration graphs.
	DBPath string `yaml:"db_path"`

	// Profiles maps intensity names to budget ceilings.
	Profiles budget.Profiles `yaml:"profiles"`

	Classifier classify.Config `yaml:"classifier"`
	Detector   detect.Config   `yaml:"detector"`

	Answerer AnswererConfig `yaml:"answerer"`
	Run      RunConfig      `yaml:"run"`
}

// AnswererConfig selects and tunes the answering capability.
type AnswererConfig struct {
	// Model is the OpenRouter model identifier.
	Model string `yaml:"model"`

	// FallbackModel is tried when the primary model fails.
	FallbackModel string `yaml:"fallback_model"`

	// MaxOutputTokens bounds one answer.
	MaxOutputTokens int64 `yaml:"max_output_tokens"`
}

// Duration wraps time.Duration so YAML accepts "90s" and "5m" forms.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// RunConfig tunes the scheduler.
type RunConfig struct {
	// MaxParallel caps concurrent dispatches in a batch (0 = batch size).
	MaxParallel int `yaml:"max_parallel"`

	// DispatchTimeout bounds one answering call.
	DispatchTimeout Duration `yaml:"dispatch_timeout"`

	// Timeout bounds the whole run; on expiry the graph halts as
	// budget_exhausted with partial results preserved.
	Timeout Duration `yaml:"timeout"`

	// Synthesize writes a synthesis node when the graph halts.
	Synthesize bool `yaml:"synthesize"`
}

// Default returns the built-in policy.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DBPath:     filepath.Join(home, ".fractal", "graphs.db"),
		Profiles:   budget.DefaultProfiles(),
		Classifier: classify.DefaultConfig(),
		Detector:   detect.DefaultConfig(),
		Answerer: AnswererConfig{
			MaxOutputTokens: 1024,
		},
		Run: RunConfig{
			DispatchTimeout: Duration(60 * time.Second),
			Timeout:         Duration(10 * time.Minute),
			Synthesize:      true,
		},
	}
}

// Load reads the config file at path, if it exists, over the defaults, then
// applies environment overrides. A missing file is not an error; a malformed
// one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("FRACTAL_CONFIG")
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".fractal", "config.yaml")
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FRACTAL_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("FRACTAL_MODEL"); v != "" {
		c.Answerer.Model = v
	}
	if v := os.Getenv("FRACTAL_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Run.MaxParallel = n
		}
	}
	if v := os.Getenv("FRACTAL_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Run.Timeout = Duration(d)
		}
	}
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	for name, p := range c.Profiles {
		if p.MaxAgents < 1 || p.MaxDepth < 1 {
			return fmt.Errorf("profile %s: max_agents and max_depth must be >= 1", name)
		}
	}
	if c.Classifier.OverlapThreshold < 0 || c.Classifier.OverlapThreshold > 1 {
		return fmt.Errorf("classifier.overlap_threshold must be in [0, 1]")
	}
	if c.Detector.ConvergenceThreshold < 0 || c.Detector.ConvergenceThreshold > 1 {
		return fmt.Errorf("detector.convergence_threshold must be in [0, 1]")
	}
	return nil
}
