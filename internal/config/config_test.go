package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GROQ_API_KEY", "KOTAE_LLM_API_KEY", "KOTAE_EMBEDDING_API_KEY", "QDRANT_URL", "QDRANT_API_KEY", "KOTAE_UPLOAD_DIR"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
vector:
  type: bolt
  timeout: 5s
llm:
  model: llama3
  temperature: 0
retrieval:
  top_k: 5
indexing:
  allowed_extensions: [".pdf", ".docx"]
  replace_on_reindex: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("addr = %s", cfg.Server.Addr())
	}
	if cfg.Vector.Type != "bolt" || cfg.Vector.Timeout != 5*time.Second {
		t.Errorf("vector = %+v", cfg.Vector)
	}
	if cfg.LLM.Model != "llama3" || cfg.LLM.TemperatureOrDefault() != 0 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("top_k = %d", cfg.Retrieval.TopK)
	}
	if len(cfg.Indexing.AllowedExtensions) != 2 || cfg.Indexing.ReplaceOnReindexOrDefault() {
		t.Errorf("indexing = %+v", cfg.Indexing)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_missingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Vector.Collection != DefaultCollection || cfg.Retrieval.TopK != 3 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if !filepath.IsAbs(cfg.Storage.UploadDir) {
		t.Errorf("upload dir not absolute: %s", cfg.Storage.UploadDir)
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeConfig(t, "server: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_pathsRelativeToConfigDir(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  upload_dir: "./uploads"
  data_dir: "index"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)
	if cfg.Storage.UploadDir != filepath.Join(dir, "uploads") {
		t.Errorf("upload_dir = %s", cfg.Storage.UploadDir)
	}
	if cfg.Storage.DataDir != filepath.Join(dir, "index") {
		t.Errorf("data_dir = %s", cfg.Storage.DataDir)
	}
	if cfg.Server.StaticDir != cfg.Storage.UploadDir {
		t.Errorf("static_dir = %s, want upload dir", cfg.Server.StaticDir)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	cfg, err := Load(writeConfig(t, "vector:\n  type: sqlite\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "groq-key" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.Vector.Type != "qdrant" || cfg.Vector.URL != "http://qdrant:6333" {
		t.Errorf("vector = %+v", cfg.Vector)
	}

	t.Setenv("KOTAE_LLM_API_KEY", "own-key")
	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "own-key" {
		t.Errorf("api key = %q, want KOTAE_LLM_API_KEY to win", cfg.LLM.APIKey)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Port != 8000 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Embedding.Provider != "onnx" || cfg.Embedding.Dimensions != 384 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Vector.Type != "sqlite" {
		t.Errorf("vector type = %s", cfg.Vector.Type)
	}
	if cfg.LLM.BaseURL != DefaultLLMBaseURL || cfg.LLM.Model != DefaultLLMModel {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.TemperatureOrDefault() != 0.1 {
		t.Errorf("temperature = %v", cfg.LLM.TemperatureOrDefault())
	}
	if len(cfg.Indexing.AllowedExtensions) != 1 || cfg.Indexing.AllowedExtensions[0] != ".pdf" {
		t.Errorf("allowed extensions = %v", cfg.Indexing.AllowedExtensions)
	}
	if !cfg.Indexing.ReplaceOnReindexOrDefault() {
		t.Error("replace_on_reindex should default to true")
	}
	if cfg.Retrieval.MinScore != 0 {
		t.Errorf("min_score = %v, want 0", cfg.Retrieval.MinScore)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad provider", func(c *Config) { c.Embedding.Provider = "word2vec" }},
		{"bad vector type", func(c *Config) { c.Vector.Type = "faiss" }},
		{"qdrant without url", func(c *Config) { c.Vector.Type = "qdrant"; c.Vector.URL = "" }},
		{"overlap too large", func(c *Config) { c.Indexing.MaxChunkWords = 10; c.Indexing.ChunkOverlap = 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	ok := &Config{}
	ApplyDefaults(ok)
	if err := ok.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestSave(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{Server: ServerConfig{Host: "localhost", Port: 9090}}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
