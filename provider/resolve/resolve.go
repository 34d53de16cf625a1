// Package resolve creates chat and embedding providers from
// provider-agnostic configuration, and owns the model fallback catalog.
package resolve

import (
	"fmt"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/provider/openaicompat"
)

// Defaults used when a request leaves provider/model empty.
const (
	DefaultProvider = "openai"
	DefaultModel    = "gpt-4o-mini"
)

// ProviderModels is the per-provider model menu surfaced to clients.
var ProviderModels = map[string][]string{
	"openai":   {"gpt-4o-mini", "gpt-4.1-mini", "gpt-4o"},
	"groq":     {"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
	"deepseek": {"deepseek-chat", "deepseek-reasoner"},
	"together": {"meta-llama/Llama-3.3-70B-Instruct-Turbo", "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo"},
	"mistral":  {"mistral-small-latest", "mistral-large-latest"},
	"ollama":   {"llama3.1", "qwen2.5"},
}

// fallbackModels are tried after the menu when the selected model is
// missing on the provider side.
var fallbackModels = map[string][]string{
	"openai":   {"gpt-4o-mini", "gpt-4.1-mini", "gpt-4o"},
	"groq":     {"llama-3.1-8b-instant"},
	"deepseek": {"deepseek-chat"},
	"together": {"meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo"},
	"mistral":  {"mistral-small-latest"},
	"ollama":   {"llama3.1"},
}

// Candidates returns the ordered, deduplicated model chain for provider:
// the selected model first, then the provider's menu, then fallbacks.
func Candidates(provider, selected string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(m string) {
		if m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	add(selected)
	for _, m := range ProviderModels[provider] {
		add(m)
	}
	for _, m := range fallbackModels[provider] {
		add(m)
	}
	return out
}

// Config holds provider-agnostic configuration for creating a chat Provider.
type Config struct {
	Provider string // "openai", "groq", "deepseek", "together", "mistral", "ollama"
	APIKey   string
	Model    string
	BaseURL  string // auto-filled for known providers

	// Common cross-provider options (nil = use provider default).
	Temperature *float64
	TopP        *float64
}

// EmbeddingConfig holds provider-agnostic configuration for creating an
// EmbeddingProvider.
type EmbeddingConfig struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// Provider creates an omniagent.Provider from a provider-agnostic Config.
func Provider(cfg Config) (omniagent.Provider, error) {
	switch cfg.Provider {
	case "openai", "groq", "deepseek", "together", "mistral", "ollama":
		return openaiCompatProvider(cfg), nil
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
}

// EmbeddingProvider creates an omniagent.EmbeddingProvider from a
// provider-agnostic EmbeddingConfig.
func EmbeddingProvider(cfg EmbeddingConfig) (omniagent.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "openai", "ollama", "together", "mistral":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL(cfg.Provider)
		}
		var opts []openaicompat.EmbedderOption
		opts = append(opts, openaicompat.WithEmbedderName(cfg.Provider))
		if cfg.Dimensions > 0 {
			opts = append(opts, openaicompat.WithDimensions(cfg.Dimensions))
		}
		return openaicompat.NewEmbedder(cfg.APIKey, cfg.Model, baseURL, opts...), nil
	default:
		return nil, fmt.Errorf("resolve: embedding provider %q not supported", cfg.Provider)
	}
}

// KeyFunc returns the API key for a provider, or "" when unset.
type KeyFunc func(provider string) string

// Resolver builds an omniagent.ProviderResolver over the given key lookup.
// A missing key for a non-default provider falls back to the default
// provider and model rather than failing the run.
func Resolver(keys KeyFunc) omniagent.ProviderResolver {
	return func(provider, model string) (omniagent.Provider, error) {
		if provider == "" {
			provider = DefaultProvider
		}
		if model == "" {
			model = DefaultModel
		}
		key := keys(provider)
		// Ollama runs locally and needs no key.
		if key == "" && provider != "ollama" {
			if provider != DefaultProvider && keys(DefaultProvider) != "" {
				provider, model, key = DefaultProvider, DefaultModel, keys(DefaultProvider)
			} else {
				return nil, fmt.Errorf("resolve: no API key for provider %q", provider)
			}
		}
		return Provider(Config{Provider: provider, APIKey: key, Model: model})
	}
}

func openaiCompatProvider(cfg Config) omniagent.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	var provOpts []openaicompat.ProviderOption
	provOpts = append(provOpts, openaicompat.WithName(cfg.Provider))

	var reqOpts []openaicompat.Option
	if cfg.Temperature != nil {
		reqOpts = append(reqOpts, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		reqOpts = append(reqOpts, openaicompat.WithTopP(*cfg.TopP))
	}
	if len(reqOpts) > 0 {
		provOpts = append(provOpts, openaicompat.WithOptions(reqOpts...))
	}
	return openaicompat.NewProvider(cfg.APIKey, cfg.Model, baseURL, provOpts...)
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
