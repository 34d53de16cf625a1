// Package config loads server configuration: defaults, then a TOML file,
// then env vars (env wins).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/observer"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Models    ModelsConfig    `toml:"models"`
	Media     MediaConfig     `toml:"media"`
	Stream    StreamConfig    `toml:"stream"`
	KB        KBConfig        `toml:"kb"`
	Web       WebConfig       `toml:"web"`
	Database  DatabaseConfig  `toml:"database"`
	Observer  ObserverConfig  `toml:"observer"`

	// Keys holds per-provider API keys from TOML; env vars of the form
	// OPENAI_API_KEY take precedence via APIKey.
	Keys map[string]string `toml:"keys"`
}

type ServerConfig struct {
	Addr          string `toml:"addr"`
	DataDir       string `toml:"data_dir"`
	SessionTTLMin int    `toml:"session_ttl_min"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
}

// ModelRef is a per-node provider/model override; empty fields inherit
// the run's selection.
type ModelRef struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
}

type ModelsConfig struct {
	Planner ModelRef `toml:"planner"`
	Intent  ModelRef `toml:"intent"`
	Text    ModelRef `toml:"text"`
	Role    ModelRef `toml:"role"`
	Support ModelRef `toml:"support"`

	WebSupportModel    string `toml:"web_support_model"`
	RAGSupportModel    string `toml:"rag_support_model"`
	VisionSupportModel string `toml:"vision_support_model"`
}

type MediaConfig struct {
	ImageModel          string `toml:"image_model"`
	TTSModel            string `toml:"tts_model"`
	VisionModel         string `toml:"vision_model"`
	ImageTaskTimeoutSec int    `toml:"image_task_timeout_sec"`
	ImageAPITimeoutSec  int    `toml:"image_api_timeout_sec"`
}

type StreamConfig struct {
	InitialStartDelayMs int  `toml:"initial_start_delay_ms"`
	InitialTokenDelayMs int  `toml:"initial_token_delay_ms"`
	MetaTokenDelayMs    int  `toml:"meta_token_delay_ms"`
	ArxivTokenDelayMs   int  `toml:"arxiv_token_delay_ms"`
	LogSSETokens        bool `toml:"log_sse_tokens"`
}

type KBConfig struct {
	RootPath     string `toml:"root_path"`
	ChunkSize    int    `toml:"chunk_size"`
	ChunkOverlap int    `toml:"chunk_overlap"`
	CacheTTLSec  int    `toml:"cache_ttl_sec"`
}

type WebConfig struct {
	TavilyAPIKey string `toml:"tavily_api_key"`
	UserAgent    string `toml:"user_agent"`
}

type DatabaseConfig struct {
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server:    ServerConfig{Addr: ":8000", DataDir: "data", SessionTTLMin: 60},
		LLM:       LLMConfig{Provider: "openai", Model: "gpt-4o-mini"},
		Embedding: EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536},
		Media:     MediaConfig{ImageModel: "gpt-image-1", TTSModel: "tts-1", VisionModel: "gpt-4o-mini", ImageTaskTimeoutSec: 90, ImageAPITimeoutSec: 60},
		KB:        KBConfig{RootPath: "knowledge-base", ChunkSize: 900, ChunkOverlap: 150, CacheTTLSec: 180},
		Database:  DatabaseConfig{Path: "data/omniagent.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
// An empty path falls back to OMNIAGENT_CONFIG, then "omniagent.toml".
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = os.Getenv("OMNIAGENT_CONFIG")
	}
	if path == "" {
		path = "omniagent.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	envStr("OMNIAGENT_ADDR", &cfg.Server.Addr)
	envStr("OMNIAGENT_DATA_DIR", &cfg.Server.DataDir)
	envInt("OMNIAGENT_SESSION_TTL_MIN", &cfg.Server.SessionTTLMin)

	envStr("PLANNER_PROVIDER", &cfg.Models.Planner.Provider)
	envStr("PLANNER_MODEL", &cfg.Models.Planner.Model)
	envStr("INTENT_PROVIDER", &cfg.Models.Intent.Provider)
	envStr("INTENT_MODEL", &cfg.Models.Intent.Model)
	envStr("TEXT_PROVIDER", &cfg.Models.Text.Provider)
	envStr("TEXT_MODEL", &cfg.Models.Text.Model)
	envStr("ROLE_PROVIDER", &cfg.Models.Role.Provider)
	envStr("ROLE_MODEL", &cfg.Models.Role.Model)
	envStr("SUPPORT_PROVIDER", &cfg.Models.Support.Provider)
	envStr("SUPPORT_MODEL", &cfg.Models.Support.Model)
	envStr("WEB_SUPPORT_MODEL", &cfg.Models.WebSupportModel)
	envStr("RAG_SUPPORT_MODEL", &cfg.Models.RAGSupportModel)
	envStr("VISION_SUPPORT_MODEL", &cfg.Models.VisionSupportModel)

	envStr("IMAGE_MODEL", &cfg.Media.ImageModel)
	envStr("TTS_MODEL", &cfg.Media.TTSModel)
	envStr("VISION_MODEL", &cfg.Media.VisionModel)
	envInt("IMAGE_TASK_TIMEOUT_SEC", &cfg.Media.ImageTaskTimeoutSec)
	envInt("IMAGE_API_TIMEOUT_SEC", &cfg.Media.ImageAPITimeoutSec)

	envInt("INITIAL_START_DELAY_MS", &cfg.Stream.InitialStartDelayMs)
	envInt("INITIAL_TOKEN_DELAY_MS", &cfg.Stream.InitialTokenDelayMs)
	envInt("META_STREAM_TOKEN_DELAY_MS", &cfg.Stream.MetaTokenDelayMs)
	envInt("ARXIV_STREAM_TOKEN_DELAY_MS", &cfg.Stream.ArxivTokenDelayMs)
	envBool("LOG_SSE_TOKENS", &cfg.Stream.LogSSETokens)

	envStr("KB_ROOT_PATH", &cfg.KB.RootPath)
	envInt("KB_RAG_CHUNK_SIZE", &cfg.KB.ChunkSize)
	envInt("KB_RAG_CHUNK_OVERLAP", &cfg.KB.ChunkOverlap)
	envInt("KB_RAG_CACHE_TTL_SEC", &cfg.KB.CacheTTLSec)

	envStr("TAVILY_API_KEY", &cfg.Web.TavilyAPIKey)

	envStr("OMNIAGENT_DB_PATH", &cfg.Database.Path)
	envStr("OMNIAGENT_POSTGRES_URL", &cfg.Database.PostgresURL)

	envBool("OMNIAGENT_OBSERVER_ENABLED", &cfg.Observer.Enabled)

	return cfg
}

// APIKey returns the API key for a provider: the PROVIDER_API_KEY env
// var, else the [keys] table, else "".
func (c Config) APIKey(provider string) string {
	env := strings.ToUpper(provider) + "_API_KEY"
	if v := os.Getenv(env); v != "" {
		return v
	}
	return c.Keys[provider]
}

// EngineConfig maps the loaded config onto engine tunables.
func (c Config) EngineConfig() omniagent.EngineConfig {
	ec := omniagent.DefaultEngineConfig()
	ec.MetaStreamDelay = time.Duration(c.Stream.MetaTokenDelayMs) * time.Millisecond
	ec.ArxivStreamDelay = time.Duration(c.Stream.ArxivTokenDelayMs) * time.Millisecond
	if c.Media.ImageTaskTimeoutSec > 0 {
		ec.ImageTimeout = time.Duration(c.Media.ImageTaskTimeoutSec) * time.Second
	}
	ec.Models = omniagent.ModelOverrides{
		Intent:             omniagent.ModelRef(c.Models.Intent),
		Text:               omniagent.ModelRef(c.Models.Text),
		Role:               omniagent.ModelRef(c.Models.Role),
		Support:            omniagent.ModelRef(c.Models.Support),
		WebSupportModel:    c.Models.WebSupportModel,
		RAGSupportModel:    c.Models.RAGSupportModel,
		VisionSupportModel: c.Models.VisionSupportModel,
	}
	return ec
}

// CacheTTLDuration returns the KB query-cache TTL.
func (c KBConfig) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// SessionTTLDuration returns the idle session lifetime.
func (c Config) SessionTTLDuration() time.Duration {
	return time.Duration(c.Server.SessionTTLMin) * time.Minute
}

// PricingOverrides converts the TOML pricing table to observer pricing.
func (c Config) PricingOverrides() map[string]observer.ModelPricing {
	if len(c.Observer.Pricing) == 0 {
		return nil
	}
	out := make(map[string]observer.ModelPricing, len(c.Observer.Pricing))
	for model, p := range c.Observer.Pricing {
		out[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
	}
	return out
}

func envStr(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "True":
		*dst = true
	}
}
