// Package config provides configuration loading and structs for the kotae server and CLI.
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
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// StaticDir is served under /static. Defaults to the upload directory.
	StaticDir string `yaml:"static_dir"`
	// MaxUploadMB caps the size of an uploaded document.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
	DataDir   string `yaml:"data_dir"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is onnx, openai or hash.
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	// Type is memory, sqlite, bolt or qdrant.
	Type       string        `yaml:"type"`
	Collection string        `yaml:"collection"`
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LLMConfig configures the chat completion endpoint.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature *float64      `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
}

// TemperatureOrDefault returns the configured temperature, 0.1 when unset.
func (l *LLMConfig) TemperatureOrDefault() float64 {
	if l.Temperature != nil {
		return *l.Temperature
	}
	return DefaultTemperature
}

// RetrievalConfig holds question-time retrieval settings.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// IndexingConfig holds document ingestion settings.
type IndexingConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
	ReplaceOnReindex  *bool    `yaml:"replace_on_reindex"`
	MaxChunkWords     int      `yaml:"max_chunk_words"`
	ChunkOverlap      int      `yaml:"chunk_overlap"`
}

// ReplaceOnReindexOrDefault reports whether re-indexing purges old entries; true when unset.
func (i *IndexingConfig) ReplaceOnReindexOrDefault() bool {
	if i.ReplaceOnReindex != nil {
		return *i.ReplaceOnReindex
	}
	return true
}

// WatchConfig controls the upload directory watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, and expands paths. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			configDir = filepath.Dir(path)
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	cfg.Server.StaticDir = expandPath(cfg.Server.StaticDir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
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

// ApplyEnv overrides settings from the environment. GROQ_API_KEY is read for the
// hosted default; KOTAE_LLM_API_KEY wins over it.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("GROQ_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("KOTAE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("KOTAE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.Vector.Type = "qdrant"
		cfg.Vector.URL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.Vector.APIKey = v
	}
	if v := os.Getenv("KOTAE_UPLOAD_DIR"); v != "" {
		cfg.Storage.UploadDir = v
	}
}

// Validate rejects settings the components cannot work with.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "onnx", "openai", "hash":
	default:
		return fmt.Errorf("unknown embedding provider %q (supported: onnx, openai, hash)", c.Embedding.Provider)
	}
	switch c.Vector.Type {
	case "memory", "sqlite", "bolt", "qdrant":
	default:
		return fmt.Errorf("unknown vector type %q (supported: memory, sqlite, bolt, qdrant)", c.Vector.Type)
	}
	if c.Vector.Type == "qdrant" && c.Vector.URL == "" {
		return fmt.Errorf("vector.url is required for qdrant")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	if c.Indexing.ChunkOverlap < 0 || (c.Indexing.MaxChunkWords > 0 && c.Indexing.ChunkOverlap >= c.Indexing.MaxChunkWords) {
		return fmt.Errorf("indexing.chunk_overlap must be smaller than max_chunk_words")
	}
	return nil
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// expandPath converts a path to absolute. "~/" expands to the home directory; other
// relative paths are relative to configDir.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
		return path
	}
	if abs, err := filepath.Abs(filepath.Join(configDir, path)); err == nil {
		return abs
	}
	return path
}
