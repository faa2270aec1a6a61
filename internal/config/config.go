package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"anchorsync/internal/gesture"
	"anchorsync/internal/scene"
	"anchorsync/internal/storage"
	"anchorsync/src/model"
)

// Config represents the structure of config.yaml plus environment overrides
type Config struct {
	Log        model.LogConfig  `yaml:"log"`
	Repository RepositoryConfig `yaml:"repository"`
	Spatial    SpatialConfig    `yaml:"spatial"`
	Chat       ChatConfig       `yaml:"chat"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// RepositoryConfig selects and configures the task store
type RepositoryConfig struct {
	Backend      string        `yaml:"backend"` // memory, redis, sqlite or file
	RedisURL     string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	RedisKey     string        `yaml:"redis_key" split_words:"true"`
	RedisChannel string        `yaml:"redis_channel" split_words:"true"`
	SQLitePath   string        `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	FilePath     string        `yaml:"file_path" split_words:"true"`
	WriteTimeout time.Duration `yaml:"write_timeout" split_words:"true"`
}

// SpatialConfig bounds gestures and sizes markers
type SpatialConfig struct {
	MinScale       float64       `yaml:"min_scale" split_words:"true"`
	MaxScale       float64       `yaml:"max_scale" split_words:"true"`
	ZoomStep       float64       `yaml:"zoom_step" split_words:"true"`
	BoxSize        float64       `yaml:"box_size" split_words:"true"`
	LabelMargin    float64       `yaml:"label_margin" split_words:"true"`
	PlacementDelay time.Duration `yaml:"placement_delay" split_words:"true"`
}

// ChatConfig configures the text-completion collaborator
type ChatConfig struct {
	Provider      string        `yaml:"provider"` // openai, ollama, ark or deepseek
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url" split_words:"true"`
	APIKey        string        `yaml:"api_key" envconfig:"API_KEY"`
	MaxTokens     int           `yaml:"max_tokens" split_words:"true"`
	Temperature   float64       `yaml:"temperature"`
	Timeout       time.Duration `yaml:"timeout"`
	Transcript    string        `yaml:"transcript"` // memory or redis
	TranscriptTTL time.Duration `yaml:"transcript_ttl" split_words:"true"`
	MaxTurns      int           `yaml:"max_turns" split_words:"true"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

var (
	Backends  = []string{"memory", "redis", "sqlite", "file"}
	Providers = []string{"openai", "ollama", "ark", "deepseek"}
)

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Log: model.DefaultLogConfig(),
		Repository: RepositoryConfig{
			Backend:      "memory",
			RedisURL:     "redis://localhost:6379/0",
			RedisKey:     storage.DefaultRedisKey,
			RedisChannel: storage.DefaultRedisChannel,
			SQLitePath:   "data/anchorsync.db",
			FilePath:     "data/tasks.json",
			WriteTimeout: storage.DefaultWriteTimeout,
		},
		Spatial: SpatialConfig{
			MinScale:       gesture.DefaultMinScale,
			MaxScale:       gesture.DefaultMaxScale,
			ZoomStep:       gesture.DefaultZoomStep,
			BoxSize:        scene.DefaultBoxSize,
			LabelMargin:    scene.DefaultLabelMargin,
			PlacementDelay: scene.DefaultPlacementDelay,
		},
		Chat: ChatConfig{
			Provider:      "openai",
			Model:         "openai/gpt-3.5-turbo",
			BaseURL:       "https://openrouter.ai/api/v1",
			MaxTokens:     1500,
			Temperature:   0.7,
			Timeout:       30 * time.Second,
			Transcript:    "memory",
			TranscriptTTL: 40 * time.Minute,
			MaxTurns:      10,
		},
	}
}

// LoadFile overlays config.yaml at path onto cfg
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error parsing YAML: %w", err)
	}
	return nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	var errs []error

	if !contains(Backends, c.Repository.Backend) {
		errs = append(errs, fmt.Errorf("repository.backend: unknown backend %q", c.Repository.Backend))
	}
	if c.Repository.WriteTimeout <= 0 {
		errs = append(errs, errors.New("repository.write_timeout must be positive"))
	}

	s := c.Spatial
	if s.MinScale <= 0 {
		errs = append(errs, errors.New("spatial.min_scale must be positive"))
	}
	if s.MaxScale < s.MinScale {
		errs = append(errs, fmt.Errorf("spatial.max_scale %.2f is below min_scale %.2f", s.MaxScale, s.MinScale))
	}
	if s.ZoomStep <= 1 {
		errs = append(errs, errors.New("spatial.zoom_step must be greater than 1"))
	}
	if s.BoxSize <= 0 || s.LabelMargin < 0 {
		errs = append(errs, errors.New("spatial.box_size must be positive and label_margin non-negative"))
	}
	if s.PlacementDelay <= 0 {
		errs = append(errs, errors.New("spatial.placement_delay must be positive"))
	}

	if !contains(Providers, c.Chat.Provider) {
		errs = append(errs, fmt.Errorf("chat.provider: unknown provider %q", c.Chat.Provider))
	}
	if c.Chat.Transcript != "memory" && c.Chat.Transcript != "redis" {
		errs = append(errs, fmt.Errorf("chat.transcript: unknown store %q", c.Chat.Transcript))
	}
	if c.Chat.MaxTurns <= 0 {
		errs = append(errs, errors.New("chat.max_turns must be positive"))
	}

	return errors.Join(errs...)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
