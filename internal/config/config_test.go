package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected openai, got %s", cfg.LLM.Provider)
	}
	if cfg.KB.ChunkSize != 900 {
		t.Errorf("expected chunk size 900, got %d", cfg.KB.ChunkSize)
	}
	if cfg.Media.ImageTaskTimeoutSec != 90 {
		t.Errorf("expected image timeout 90, got %d", cfg.Media.ImageTaskTimeoutSec)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected 1536, got %d", cfg.Embedding.Dimensions)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[server]
addr = ":9001"

[kb]
chunk_size = 1200

[keys]
openai = "toml-key"
`), 0644)

	cfg := Load(path)
	if cfg.Server.Addr != ":9001" {
		t.Errorf("expected :9001, got %s", cfg.Server.Addr)
	}
	if cfg.KB.ChunkSize != 1200 {
		t.Errorf("expected chunk size 1200, got %d", cfg.KB.ChunkSize)
	}
	// Defaults preserved
	if cfg.KB.ChunkOverlap != 150 {
		t.Errorf("default overlap should be preserved, got %d", cfg.KB.ChunkOverlap)
	}
	if cfg.APIKey("openai") != "toml-key" {
		t.Errorf("expected toml-key, got %s", cfg.APIKey("openai"))
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TEXT_PROVIDER", "groq")
	t.Setenv("TEXT_MODEL", "llama-3.1-8b-instant")
	t.Setenv("KB_RAG_CHUNK_SIZE", "700")
	t.Setenv("TAVILY_API_KEY", "tv-key")
	t.Setenv("LOG_SSE_TOKENS", "1")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Models.Text.Provider != "groq" {
		t.Errorf("expected groq, got %s", cfg.Models.Text.Provider)
	}
	if cfg.Models.Text.Model != "llama-3.1-8b-instant" {
		t.Errorf("expected llama model, got %s", cfg.Models.Text.Model)
	}
	if cfg.KB.ChunkSize != 700 {
		t.Errorf("expected 700, got %d", cfg.KB.ChunkSize)
	}
	if cfg.Web.TavilyAPIKey != "tv-key" {
		t.Errorf("expected tv-key, got %s", cfg.Web.TavilyAPIKey)
	}
	if !cfg.Stream.LogSSETokens {
		t.Error("expected LogSSETokens true")
	}
}

func TestAPIKeyEnvWins(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "env-key")
	cfg := Default()
	cfg.Keys = map[string]string{"groq": "toml-key"}
	if got := cfg.APIKey("groq"); got != "env-key" {
		t.Errorf("expected env-key, got %s", got)
	}
	if got := cfg.APIKey("mistral"); got != "" {
		t.Errorf("expected empty key, got %s", got)
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := Default()
	cfg.Stream.MetaTokenDelayMs = 20
	cfg.Media.ImageTaskTimeoutSec = 30
	cfg.Models.Support.Model = "gpt-4o-mini"

	ec := cfg.EngineConfig()
	if ec.MetaStreamDelay != 20*time.Millisecond {
		t.Errorf("MetaStreamDelay = %v", ec.MetaStreamDelay)
	}
	if ec.ImageTimeout != 30*time.Second {
		t.Errorf("ImageTimeout = %v", ec.ImageTimeout)
	}
	if ec.Models.Support.Model != "gpt-4o-mini" {
		t.Errorf("Support model = %s", ec.Models.Support.Model)
	}
}
