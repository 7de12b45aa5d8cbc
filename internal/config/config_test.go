package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, 15, cfg.Compliance.MinAge)
	assert.Equal(t, 76, cfg.Compliance.MaxAge)
	assert.Equal(t, 0.85, cfg.Predict.SimilarityThreshold)
	assert.Equal(t, 3, cfg.Extract.MaxAttempts)
	assert.Equal(t, 4, cfg.Worker.PoolSize)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DONOR_STORE_DRIVER", "sqlite")
	t.Setenv("DONOR_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate_MissingAnthropicKey(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key")
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := &Config{
		Anthropic: AnthropicConfig{Key: "sk-test"},
		Store:     StoreConfig{Driver: "postgres"},
		Embedding: EmbeddingConfig{Dimensions: 768},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestValidate_SQLiteOK(t *testing.T) {
	cfg := &Config{
		Anthropic: AnthropicConfig{Key: "sk-test"},
		Store:     StoreConfig{Driver: "sqlite", Path: "test.db"},
		Embedding: EmbeddingConfig{Dimensions: 768},
	}
	require.NoError(t, cfg.Validate())
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := &Config{
		Anthropic: AnthropicConfig{Key: "sk-test"},
		Store:     StoreConfig{Driver: "mysql"},
		Embedding: EmbeddingConfig{Dimensions: 768},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store driver "mysql"`)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "console"}))
}
