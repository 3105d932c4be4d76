// Package config handles dreamnet configuration from a YAML file with defaults.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level dreamnet configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Training TrainingConfig `yaml:"training"`
	Synth    SynthConfig    `yaml:"synth"`
	Frames   FramesConfig   `yaml:"frames"`
	Journal  JournalConfig  `yaml:"journal"`
}

// ModelConfig locates and shapes the persisted classifier.
type ModelConfig struct {
	Path   string `yaml:"path"`
	Hidden []int  `yaml:"hidden"`
	Seed   int64  `yaml:"seed"`
}

// TrainingConfig controls training from scratch.
type TrainingConfig struct {
	CSV       string  `yaml:"csv"`
	Fakes     bool    `yaml:"fakes"`
	FakeCount int     `yaml:"fake_count"`
	Epochs    int     `yaml:"epochs"`
	Rate      float64 `yaml:"rate"`
	Seed      int64   `yaml:"seed"`
}

// SynthConfig holds the synthesis loop constants.
type SynthConfig struct {
	Classes       int     `yaml:"classes"`
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	Iterations    int     `yaml:"iterations"`
	StateRate     float64 `yaml:"state_rate"`
	ModelRateStep float64 `yaml:"model_rate_step"`
	Step          float64 `yaml:"step"`
	Concurrent    bool    `yaml:"concurrent"`
	Seed          int64   `yaml:"seed"` // 0 picks a time-based seed
}

// FramesConfig controls snapshots and the assembled animation.
type FramesConfig struct {
	Dir       string `yaml:"dir"`
	GIF       string `yaml:"gif"`
	Every     int    `yaml:"every"`
	MaxFrames int    `yaml:"max_frames"`
	Delay     int    `yaml:"delay"` // 100ths of a second
	Scale     int    `yaml:"scale"`
}

// JournalConfig selects the run journal. An empty DSN disables it; a
// postgres:// URL uses PostgreSQL, anything else is a SQLite file.
type JournalConfig struct {
	DSN string `yaml:"dsn"`
}

// Pixels is the length of a flattened image.
func (s SynthConfig) Pixels() int {
	return s.Width * s.Height
}

// OutputSize is the classifier output: every real class plus the sentinel.
func (s SynthConfig) OutputSize() int {
	return s.Classes + 1
}

func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Path: "data/model.json",
		},
		Training: TrainingConfig{
			CSV:       "data/mnist_train.csv",
			Fakes:     true,
			FakeCount: 60000,
			Epochs:    3,
			Rate:      0.002,
		},
		Synth: SynthConfig{
			Classes:       10,
			Width:         28,
			Height:        28,
			Iterations:    201,
			StateRate:     0.04,
			ModelRateStep: 0.005,
			Step:          0.01,
			Concurrent:    true,
		},
		Frames: FramesConfig{
			Dir:       "data/iterations",
			GIF:       "data/iterations/all.gif",
			Every:     5,
			MaxFrames: 100,
			Delay:     10,
			Scale:     1,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("synth.classes", c.Synth.Classes)
	positive("synth.width", c.Synth.Width)
	positive("synth.height", c.Synth.Height)
	positive("synth.iterations", c.Synth.Iterations)
	positive("frames.every", c.Frames.Every)
	positive("frames.max_frames", c.Frames.MaxFrames)
	positive("frames.scale", c.Frames.Scale)
	if c.Synth.Step <= 0 {
		errs = append(errs, fmt.Errorf("synth.step must be positive, got %v", c.Synth.Step))
	}
	if c.Frames.Delay < 0 {
		errs = append(errs, fmt.Errorf("frames.delay must not be negative, got %d", c.Frames.Delay))
	}
	for _, h := range c.Model.Hidden {
		positive("model.hidden", h)
	}
	if c.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	return errors.Join(errs...)
}
