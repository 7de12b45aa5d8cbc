package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Blob       BlobConfig       `yaml:"blob" mapstructure:"blob"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Compliance ComplianceConfig `yaml:"compliance" mapstructure:"compliance"`
	Predict    PredictConfig    `yaml:"predict" mapstructure:"predict"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"` // sqlite file path
}

// AnthropicConfig holds Anthropic API settings for the extraction models.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	Model          string `yaml:"model" mapstructure:"model"`
	VisionModel    string `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens      int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	CallTimeoutSec int    `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
}

// EmbeddingConfig holds settings for the embedding service.
type EmbeddingConfig struct {
	Host           string `yaml:"host" mapstructure:"host"`
	Model          string `yaml:"model" mapstructure:"model"`
	Dimensions     int    `yaml:"dimensions" mapstructure:"dimensions"`
	CallTimeoutSec int    `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
}

// BlobConfig configures document byte access.
type BlobConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ExtractConfig configures page normalization and chunked extraction.
type ExtractConfig struct {
	MaxChunkTokens    int     `yaml:"max_chunk_tokens" mapstructure:"max_chunk_tokens"`
	MinPageChars      int     `yaml:"min_page_chars" mapstructure:"min_page_chars"`
	ChunkConcurrency  int     `yaml:"chunk_concurrency" mapstructure:"chunk_concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	// RouterKeywords replaces the built-in page-routing lexicon when set.
	RouterKeywords []string `yaml:"router_keywords" mapstructure:"router_keywords"`
}

// ComplianceConfig tunes the fixed eligibility ruleset.
type ComplianceConfig struct {
	MinAge            int      `yaml:"min_age" mapstructure:"min_age"`
	MaxAge            int      `yaml:"max_age" mapstructure:"max_age"`
	SerologyWhitelist []string `yaml:"serology_whitelist" mapstructure:"serology_whitelist"`
}

// PredictConfig configures similarity prediction.
type PredictConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MaxSimilarCases     int     `yaml:"max_similar_cases" mapstructure:"max_similar_cases"`
}

// WorkerConfig configures the document worker pool.
type WorkerConfig struct {
	PoolSize  int `yaml:"pool_size" mapstructure:"pool_size"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DONOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.path", "donor-audit.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.call_timeout_secs", 120)
	v.SetDefault("embedding.host", "http://localhost:11434")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.call_timeout_secs", 30)
	v.SetDefault("blob.dir", "documents")
	v.SetDefault("extract.max_chunk_tokens", 30000)
	v.SetDefault("extract.min_page_chars", 40)
	v.SetDefault("extract.chunk_concurrency", 4)
	v.SetDefault("extract.requests_per_second", 2.0)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("compliance.min_age", 15)
	v.SetDefault("compliance.max_age", 76)
	v.SetDefault("compliance.serology_whitelist", []string{"CMV IgG", "CMV Total IgG"})
	v.SetDefault("predict.similarity_threshold", 0.85)
	v.SetDefault("predict.max_similar_cases", 10)
	v.SetDefault("worker.pool_size", 4)
	v.SetDefault("worker.queue_size", 256)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks required credentials. A missing credential is fatal at
// startup, not retried.
func (c *Config) Validate() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic.key is required")
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.Path == "" {
			return eris.New("config: store.path is required for the sqlite driver")
		}
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Embedding.Dimensions <= 0 {
		return eris.New("config: embedding.dimensions must be positive")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
