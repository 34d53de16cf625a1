package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"

	omniagent "github.com/rishisan99/OmniAgent"
)

const (
	tavilyEndpoint = "https://api.tavily.com/search"

	// Page enrichment limits.
	enrichTopN    = 2
	enrichTimeout = 8 * time.Second
	enrichMaxBody = 512 << 10
	enrichMaxText = 8000
)

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// tavilySearch queries the Tavily search API and enriches the top results
// with readability-extracted page content.
func (w *Lane) tavilySearch(ctx context.Context, query string, topK int) sourcePart {
	part := sourcePart{source: omniagent.SourceTavily}
	if w.tavilyKey == "" {
		part.err = fmt.Errorf("tavily: missing api key")
		return part
	}

	body, err := json.Marshal(map[string]any{
		"api_key":     w.tavilyKey,
		"query":       query,
		"max_results": topK,
	})
	if err != nil {
		part.err = err
		return part
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.tavilyURL, bytes.NewReader(body))
	if err != nil {
		part.err = err
		return part
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		part.err = fmt.Errorf("tavily: %w", err)
		return part
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		part.err = fmt.Errorf("tavily: status %d: %s", resp.StatusCode, string(msg))
		return part
	}

	var data struct {
		Results []tavilyResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		part.err = fmt.Errorf("tavily: decode: %w", err)
		return part
	}

	w.enrichResults(ctx, data.Results)

	results := make([]any, 0, len(data.Results))
	for _, r := range data.Results {
		results = append(results, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"content": r.Content,
			"score":   r.Score,
		})
		part.citations = append(part.citations, omniagent.Citation{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: truncateText(r.Content, 300),
		})
	}
	part.data = map[string]any{"results": results}
	return part
}

// enrichResults replaces thin snippets on the top results with readable page
// content. Fetch failures leave the snippet as-is.
func (w *Lane) enrichResults(ctx context.Context, results []tavilyResult) {
	n := enrichTopN
	if n > len(results) {
		n = len(results)
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if text := w.fetchReadable(ctx, results[i].URL); text != "" {
				results[i].Content = text
			}
		}(i)
	}
	wg.Wait()
}

// fetchReadable downloads a page and extracts its main text, returning ""
// on any failure.
func (w *Lane) fetchReadable(ctx context.Context, rawURL string) string {
	fctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, enrichMaxBody))
	if err != nil {
		return ""
	}

	parsed, _ := url.Parse(rawURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil || article.TextContent == "" {
		return ""
	}
	return truncateText(strings.TrimSpace(article.TextContent), enrichMaxText)
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
