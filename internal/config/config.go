// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	NewsData NewsDataConfig `mapstructure:"newsdata"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Registry RegistryConfig `mapstructure:"registry"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// NewsDataConfig configures the NewsData.io source adapter.
type NewsDataConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	PageSize       int    `mapstructure:"page_size"`
	MaxPages       int    `mapstructure:"max_pages"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// OpenAIConfig configures the classifier adapter.
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Endpoint       string `mapstructure:"endpoint"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PipelineConfig governs per-job pipeline behavior.
type PipelineConfig struct {
	ClassifyConcurrency    int `mapstructure:"classify_concurrency"`
	FetchTimeoutSeconds    int `mapstructure:"fetch_timeout_seconds"`
	ClassifyTimeoutSeconds int `mapstructure:"classify_timeout_seconds"`
	StoreTimeoutSeconds    int `mapstructure:"store_timeout_seconds"`
}

// RegistryConfig bounds the in-memory job registry.
type RegistryConfig struct {
	MaxJobs int `mapstructure:"max_jobs"`
}

// StorageConfig selects and configures the result store backend.
type StorageConfig struct {
	// Provider is one of "local", "postgres", or "gcs".
	Provider string         `mapstructure:"provider"`
	Local    LocalStorage   `mapstructure:"local"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	GCS      GCSConfig      `mapstructure:"gcs"`
}

// LocalStorage sets the result directory for the local backend.
type LocalStorage struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PostgresConfig controls access to the relational result store.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// GCSConfig sets the bucket and prefix for blob persistence.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("newsdata.page_size", 10)
	v.SetDefault("newsdata.max_pages", 10)
	v.SetDefault("newsdata.timeout_seconds", 30)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout_seconds", 60)
	v.SetDefault("pipeline.classify_concurrency", 4)
	v.SetDefault("pipeline.fetch_timeout_seconds", 120)
	v.SetDefault("pipeline.classify_timeout_seconds", 60)
	v.SetDefault("pipeline.store_timeout_seconds", 15)
	v.SetDefault("registry.max_jobs", 100)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local.base_dir", "results")
	v.SetDefault("storage.postgres.table", "job_results")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.ClassifyConcurrency <= 0 {
		return fmt.Errorf("pipeline.classify_concurrency must be > 0")
	}
	if c.Registry.MaxJobs <= 0 {
		return fmt.Errorf("registry.max_jobs must be > 0")
	}
	switch c.Storage.Provider {
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket must be set")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	if c.PubSub.Enabled {
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
		}
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout converts the configured fetch budget into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Pipeline.FetchTimeoutSeconds) * time.Second
}

// ClassifyTimeout converts the configured classify budget into a duration.
func (c Config) ClassifyTimeout() time.Duration {
	return time.Duration(c.Pipeline.ClassifyTimeoutSeconds) * time.Second
}

// StoreTimeout converts the configured persistence budget into a duration.
func (c Config) StoreTimeout() time.Duration {
	return time.Duration(c.Pipeline.StoreTimeoutSeconds) * time.Second
}
