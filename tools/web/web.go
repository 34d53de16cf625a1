// Package web implements the web retrieval lane: Tavily search, Wikipedia
// search, and the arXiv Atom API, queried in parallel with readability
// enrichment of top results.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	omniagent "github.com/rishisan99/OmniAgent"
)

// Lane defaults.
const (
	defaultTopK    = 5
	requestTimeout = 12 * time.Second
	defaultUA      = "Mozilla/5.0 (compatible; OmniAgentBot/1.0)"
)

// sourcePart is one source's contribution to the lane result.
type sourcePart struct {
	source    string
	data      map[string]any
	citations []omniagent.Citation
	err       error
}

// Lane queries the configured web sources for a task and merges their
// results into one envelope. Partial failures are tolerated; the lane fails
// only when every source fails.
type Lane struct {
	tavilyKey string
	userAgent string
	client    *http.Client
	logger    *slog.Logger

	// Endpoint overrides for tests.
	tavilyURL    string
	wikipediaURL string
	arxivURL     string
}

// Option configures a Lane.
type Option func(*Lane)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Lane) { w.logger = l }
}

// WithUserAgent overrides the User-Agent sent to Wikipedia and page fetches.
func WithUserAgent(ua string) Option {
	return func(w *Lane) { w.userAgent = ua }
}

// WithHTTPClient injects a custom HTTP client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(w *Lane) { w.client = c }
}

// New creates the web lane. tavilyKey may be empty; Tavily queries then fail
// and the other sources still answer.
func New(tavilyKey string, opts ...Option) *Lane {
	w := &Lane{
		tavilyKey:    tavilyKey,
		userAgent:    defaultUA,
		client:       &http.Client{Timeout: requestTimeout},
		logger:       omniagent.NopLogger(),
		tavilyURL:    tavilyEndpoint,
		wikipediaURL: wikipediaEndpoint,
		arxivURL:     arxivEndpoint,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Kind implements omniagent.Lane.
func (w *Lane) Kind() string { return omniagent.TaskWeb }

// Run implements omniagent.Lane.
func (w *Lane) Run(ctx context.Context, t omniagent.Task, _ *omniagent.RunState, _ *omniagent.Emitter) omniagent.ToolResult {
	sources := t.Sources
	if len(sources) == 0 {
		sources = []string{omniagent.SourceTavily}
	}
	topK := t.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	parts := make([]sourcePart, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src string) {
			defer wg.Done()
			parts[i] = w.querySource(ctx, src, t.Query, topK)
		}(i, src)
	}
	wg.Wait()

	var partMaps []any
	var citations []omniagent.Citation
	okCount := 0
	lastErr := ""
	for _, p := range parts {
		if p.err != nil {
			w.logger.Warn("web source failed", "source", p.source, "err", p.err)
			lastErr = p.err.Error()
			continue
		}
		okCount++
		partMaps = append(partMaps, map[string]any{
			"source": p.source,
			"data":   p.data,
		})
		citations = append(citations, p.citations...)
	}

	if okCount == 0 {
		return omniagent.ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: lastErr}
	}
	return omniagent.ToolResult{
		TaskID: t.ID,
		Kind:   t.Kind,
		OK:     true,
		Data: map[string]any{
			"query": t.Query,
			"parts": partMaps,
		},
		Citations: citations,
	}
}

func (w *Lane) querySource(ctx context.Context, source, query string, topK int) sourcePart {
	switch source {
	case omniagent.SourceArxiv:
		return w.arxivSearch(ctx, query, topK)
	case omniagent.SourceWikipedia:
		return w.wikipediaSearch(ctx, query, topK)
	default:
		return w.tavilySearch(ctx, query, topK)
	}
}
