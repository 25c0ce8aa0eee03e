// Package config provides configuration loading and structs for the mybook search service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Search    SearchConfig    `yaml:"search"`
	Sync      SyncConfig      `yaml:"sync"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the book database DSN and the vector index file path.
// DatabaseDSN is either a SQLite file path or a postgres:// URL.
type StorageConfig struct {
	DatabaseDSN string        `yaml:"database_dsn"`
	IndexPath   string        `yaml:"index_path"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is "onnx" or "hash".
	Provider   string        `yaml:"provider"`
	ModelPath  string        `yaml:"model_path"`
	VocabPath  string        `yaml:"vocab_path"`
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
	Normalize  *bool         `yaml:"normalize"`
	Timeout    time.Duration `yaml:"timeout"`
}

// NormalizeOrDefault returns whether embeddings are L2-normalized; defaults to true when unset.
func (e *EmbeddingConfig) NormalizeOrDefault() bool {
	if e.Normalize != nil {
		return *e.Normalize
	}
	return true
}

// VectorConfig selects the vector index implementation.
type VectorConfig struct {
	IndexType string `yaml:"index_type"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
}

// Stale-entry policies applied when a book's description is cleared.
const (
	ClearedKeep   = "keep"
	ClearedRemove = "remove"
)

// SyncConfig holds index synchronization settings.
type SyncConfig struct {
	// OnDescriptionCleared is "keep" (leave the stale vector until the next
	// rebuild) or "remove" (drop it immediately).
	OnDescriptionCleared string `yaml:"on_description_cleared"`
	// RebuildSchedule is an optional 5-field cron expression for background rebuilds.
	RebuildSchedule string `yaml:"rebuild_schedule"`
	WatchIndex      *bool  `yaml:"watch_index"`
}

// WatchIndexOrDefault returns whether the server reloads the index file on change; defaults to true.
func (s *SyncConfig) WatchIndexOrDefault() bool {
	if s.WatchIndex != nil {
		return *s.WatchIndex
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read, parsed, or fails validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	if !isPostgresDSN(cfg.Storage.DatabaseDSN) {
		cfg.Storage.DatabaseDSN = expandPath(cfg.Storage.DatabaseDSN, configDir)
	}
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Embedding.VocabPath != "" {
		cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	}

	return &cfg, nil
}

// Validate rejects values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Sync.OnDescriptionCleared {
	case ClearedKeep, ClearedRemove:
	default:
		return fmt.Errorf("invalid sync.on_description_cleared %q (want keep or remove)", c.Sync.OnDescriptionCleared)
	}
	switch c.Embedding.Provider {
	case "onnx", "hash":
	default:
		return fmt.Errorf("invalid embedding.provider %q (want onnx or hash)", c.Embedding.Provider)
	}
	if c.Search.DefaultK > c.Search.MaxK {
		return fmt.Errorf("search.default_k (%d) exceeds search.max_k (%d)", c.Search.DefaultK, c.Search.MaxK)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
