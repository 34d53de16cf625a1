package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	omniagent "github.com/rishisan99/OmniAgent"
)

// Embedder implements omniagent.EmbeddingProvider against the OpenAI
// embeddings endpoint.
type Embedder struct {
	apiKey  string
	model   string
	baseURL string
	dims    int
	client  *http.Client
	name    string
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithEmbedderHTTPClient sets a custom HTTP client.
func WithEmbedderHTTPClient(c *http.Client) EmbedderOption {
	return func(e *Embedder) { e.client = c }
}

// WithEmbedderName sets the name returned by Name().
func WithEmbedderName(name string) EmbedderOption {
	return func(e *Embedder) { e.name = name }
}

// WithDimensions overrides the reported vector size. Defaults to 1536
// (text-embedding-3-small).
func WithDimensions(d int) EmbedderOption {
	return func(e *Embedder) { e.dims = d }
}

// NewEmbedder creates an embedding client for an OpenAI-compatible API.
func NewEmbedder(apiKey, model, baseURL string, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		dims:    1536,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the provider name.
func (e *Embedder) Name() string { return e.name }

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int { return e.dims }

// Embed returns embedding vectors for texts, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	p := &Provider{apiKey: e.apiKey, baseURL: e.baseURL, client: e.client, name: e.name}
	resp, err := p.sendHTTP(ctx, "/embeddings", EmbeddingsRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpErr(resp)
	}

	var out EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &omniagent.ErrLLM{Provider: e.name, Message: fmt.Sprintf("decode embeddings: %v", err)}
	}
	if len(out.Data) != len(texts) {
		return nil, &omniagent.ErrLLM{Provider: e.name, Message: fmt.Sprintf("embeddings count mismatch: got %d, want %d", len(out.Data), len(texts))}
	}

	vecs := make([][]float32, len(out.Data))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(vecs) {
			return nil, &omniagent.ErrLLM{Provider: e.name, Message: fmt.Sprintf("embedding index out of range: %d", item.Index)}
		}
		v := make([]float32, len(item.Embedding))
		for i, f := range item.Embedding {
			v[i] = float32(f)
		}
		vecs[item.Index] = v
	}
	return vecs, nil
}

var _ omniagent.EmbeddingProvider = (*Embedder)(nil)
