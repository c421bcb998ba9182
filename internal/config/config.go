package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultScheme     = "rk4"
	DefaultH0         = 0.01
	DefaultTEnd       = 10.0
	DefaultMinStep    = 1e-12
	DefaultMaxRetries = 10
	DefaultMaxIter    = 50
	DefaultTolerance  = 1e-6
	DefaultAtol       = 1e-9
	DefaultSafety     = 0.9
	DefaultGrowthCap  = 5.0
)

// Config is the run configuration surface: model selection, scheme selection
// and its parameters, stepping bounds, and snapshot policy. Values load from
// YAML over defaults, with environment variables taking precedence.
type Config struct {
	Model  string `yaml:"model" env:"SIMFRAME_MODEL"`
	Scheme string `yaml:"scheme" env:"SIMFRAME_SCHEME"`

	T0   float64 `yaml:"t0"`
	TEnd float64 `yaml:"t_end"`
	H0   float64 `yaml:"h0"`

	MinStep    float64 `yaml:"min_step"`
	MaxStep    float64 `yaml:"max_step"`
	MaxRetries int     `yaml:"max_retries"`

	Tolerance float64 `yaml:"tolerance"` // relative, adaptive schemes
	Atol      float64 `yaml:"atol"`      // absolute, adaptive and implicit schemes
	Safety    float64 `yaml:"safety"`
	GrowthCap float64 `yaml:"growth_cap"`

	MaxIterations int     `yaml:"max_iterations"` // implicit solves
	Damping       float64 `yaml:"damping"`        // implicit Newton solves

	SnapshotEvery int       `yaml:"snapshot_every"`
	Snapshots     []float64 `yaml:"snapshots"`

	DataDir  string `yaml:"data_dir" env:"SIMFRAME_DATA"`
	LogLevel string `yaml:"log_level" env:"SIMFRAME_LOG_LEVEL"`

	Params map[string]float64 `yaml:"params"` // model parameters
}

func DefaultConfig() *Config {
	return &Config{
		Model:         "decay",
		Scheme:        DefaultScheme,
		TEnd:          DefaultTEnd,
		H0:            DefaultH0,
		MinStep:       DefaultMinStep,
		MaxRetries:    DefaultMaxRetries,
		Tolerance:     DefaultTolerance,
		Atol:          DefaultAtol,
		Safety:        DefaultSafety,
		GrowthCap:     DefaultGrowthCap,
		MaxIterations: DefaultMaxIter,
		Damping:       1.0,
		SnapshotEvery: 10,
		DataDir:       ".simframe",
		LogLevel:      "info",
		Params:        map[string]float64{},
	}
}

// Load reads YAML from path over the defaults, then applies environment
// overrides. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	return cfg, cfg.Validate()
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.H0 <= 0 {
		return fmt.Errorf("config: h0 must be positive, got %g", c.H0)
	}
	if c.TEnd <= c.T0 && len(c.Snapshots) == 0 {
		return fmt.Errorf("config: t_end must be after t0")
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("config: tolerance must be positive, got %g", c.Tolerance)
	}
	if c.MaxStep > 0 && c.MaxStep < c.MinStep {
		return fmt.Errorf("config: max_step %g below min_step %g", c.MaxStep, c.MinStep)
	}
	for i := 1; i < len(c.Snapshots); i++ {
		if c.Snapshots[i] <= c.Snapshots[i-1] {
			return fmt.Errorf("config: snapshots must be strictly increasing")
		}
	}
	return nil
}

// Param returns a model parameter, falling back to the given default.
func (c *Config) Param(name string, fallback float64) float64 {
	if v, ok := c.Params[name]; ok {
		return v
	}
	return fallback
}
