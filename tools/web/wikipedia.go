package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/ingest"
)

const wikipediaEndpoint = "https://en.wikipedia.org/w/api.php"

// wikipediaSearch queries the MediaWiki search API. Snippets arrive as HTML
// fragments and are stripped to plain text.
func (w *Lane) wikipediaSearch(ctx context.Context, query string, topK int) sourcePart {
	part := sourcePart{source: omniagent.SourceWikipedia}

	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "search")
	q.Set("srsearch", query)
	q.Set("srlimit", fmt.Sprintf("%d", topK))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.wikipediaURL+"?"+q.Encode(), nil)
	if err != nil {
		part.err = err
		return part
	}
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		part.err = fmt.Errorf("wikipedia: %w", err)
		return part
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		part.err = fmt.Errorf("wikipedia: status %d: %s", resp.StatusCode, string(msg))
		return part
	}

	var data struct {
		Query struct {
			Search []struct {
				Title   string `json:"title"`
				Snippet string `json:"snippet"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		part.err = fmt.Errorf("wikipedia: decode: %w", err)
		return part
	}

	results := make([]any, 0, len(data.Query.Search))
	for _, s := range data.Query.Search {
		pageURL := "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(s.Title, " ", "_"))
		content := strings.TrimSpace(ingest.StripHTML(s.Snippet))
		results = append(results, map[string]any{
			"title":   s.Title,
			"url":     pageURL,
			"content": content,
		})
		part.citations = append(part.citations, omniagent.Citation{
			Title:   s.Title,
			URL:     pageURL,
			Snippet: truncateText(content, 300),
		})
	}
	part.data = map[string]any{"results": results}
	return part
}
