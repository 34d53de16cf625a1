package web

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	omniagent "github.com/rishisan99/OmniAgent"
)

const arxivEndpoint = "https://export.arxiv.org/api/query"

var (
	arxivQuotedRe = regexp.MustCompile(`"([^"]{2,})"|'([^']{2,})'`)
	arxivYearRe   = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

// genAITriggers mark a query as generative-AI themed; genAIBoostTerms then
// bias the post-ranking toward papers that are actually about the topic
// rather than merely recent.
var (
	genAITriggers = []string{
		"genai", "generative ai", "generative model", "llm", "llms",
		"large language model", "diffusion model", "foundation model",
		"gpt", "chatgpt", "text-to-image", "prompt",
	}
	genAIBoostTerms = []string{
		"generative", "language model", "llm", "diffusion",
		"transformer", "gpt", "fine-tun", "prompt",
	}
	genAICategoryClause = "(cat:cs.CL OR cat:cs.LG OR cat:cs.AI OR cat:cs.CV)"
)

// arxivQuery is the effective API request derived from a raw lane query.
type arxivQuery struct {
	search string
	sortBy string
	boost  []string
}

// buildArxivQuery turns the user's free-form query into an arXiv search
// expression. A quoted span is treated as a title hint and searched as
// ti:"…" OR all:"…" under relevance sort; GenAI-themed queries are scoped
// to the CS categories; an explicit year (or year range) becomes a
// submittedDate filter.
func buildArxivQuery(raw string) arxivQuery {
	q := collapseSpaces(raw)
	low := strings.ToLower(q)
	out := arxivQuery{sortBy: "submittedDate"}

	if hint := arxivTitleHint(q); hint != "" {
		out.search = fmt.Sprintf("ti:%q OR all:%q", hint, hint)
		out.sortBy = "relevance"
	} else {
		out.search = "all:" + q
	}

	for _, t := range genAITriggers {
		if strings.Contains(low, t) {
			out.search = "(" + out.search + ") AND " + genAICategoryClause
			out.boost = genAIBoostTerms
			break
		}
	}

	if years := arxivYearRe.FindAllString(q, -1); len(years) > 0 {
		from, to := years[0], years[0]
		for _, y := range years[1:] {
			if y < from {
				from = y
			}
			if y > to {
				to = y
			}
		}
		out.search = "(" + out.search + ") AND submittedDate:[" + from + "01010000 TO " + to + "12312359]"
	}
	return out
}

func arxivTitleHint(q string) string {
	m := arxivQuotedRe.FindStringSubmatch(q)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// arxivTerms returns lowercase query terms of length >= 3 used for overlap
// scoring.
func arxivTerms(s string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?\"'()[]")
		if len(w) >= 3 {
			out = append(out, w)
		}
	}
	return out
}

// rankArxivEntries orders entries by term overlap between the query and the
// entry's title+summary; boost terms count double so topical papers beat
// merely recent ones. The sort is stable, preserving API order on ties.
func rankArxivEntries(entries []arxivEntry, query string, boost []string) []arxivEntry {
	terms := arxivTerms(query)
	scores := make([]int, len(entries))
	for i, e := range entries {
		text := strings.ToLower(collapseSpaces(e.Title) + " " + collapseSpaces(e.Summary))
		for _, t := range terms {
			if strings.Contains(text, t) {
				scores[i]++
			}
		}
		for _, b := range boost {
			if strings.Contains(text, b) {
				scores[i] += 2
			}
		}
	}
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	out := make([]arxivEntry, len(entries))
	for i, j := range idx {
		out[i] = entries[j]
	}
	return out
}

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Links     []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
}

// arxivSearch queries the arXiv Atom API with the effective query built by
// buildArxivQuery, post-ranks the feed by term overlap and keeps the top-k.
// Items carry the canonical abs URL so downstream rendering never
// paraphrases paper links.
func (w *Lane) arxivSearch(ctx context.Context, query string, topK int) sourcePart {
	part := sourcePart{source: omniagent.SourceArxiv}
	eff := buildArxivQuery(query)

	// Over-fetch so post-ranking has candidates to demote.
	fetch := topK * 3
	if fetch < 10 {
		fetch = 10
	}
	q := url.Values{}
	q.Set("search_query", eff.search)
	q.Set("start", "0")
	q.Set("max_results", fmt.Sprintf("%d", fetch))
	q.Set("sortBy", eff.sortBy)
	q.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.arxivURL+"?"+q.Encode(), nil)
	if err != nil {
		part.err = err
		return part
	}
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		part.err = fmt.Errorf("arxiv: %w", err)
		return part
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		part.err = fmt.Errorf("arxiv: status %d: %s", resp.StatusCode, string(msg))
		return part
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		part.err = fmt.Errorf("arxiv: decode: %w", err)
		return part
	}

	ranked := rankArxivEntries(feed.Entries, query, eff.boost)
	items := make([]any, 0, len(ranked))
	for _, e := range ranked {
		if len(items) >= topK {
			break
		}
		title := collapseSpaces(e.Title)
		absURL := arxivAbsURL(e)
		if title == "" || absURL == "" {
			continue
		}
		summary := collapseSpaces(e.Summary)
		items = append(items, map[string]any{
			"title":     title,
			"url":       absURL,
			"published": e.Published,
			"summary":   summary,
		})
		part.citations = append(part.citations, omniagent.Citation{
			Title:   title,
			URL:     absURL,
			Snippet: truncateText(summary, 300),
		})
	}
	part.data = map[string]any{"items": items}
	return part
}

// arxivAbsURL returns the entry's canonical abstract URL. The Atom id field
// is that URL; the alternate link is the fallback.
func arxivAbsURL(e arxivEntry) string {
	if strings.Contains(e.ID, "arxiv.org/abs/") {
		return strings.TrimSpace(e.ID)
	}
	for _, l := range e.Links {
		if l.Rel == "alternate" && strings.Contains(l.Href, "arxiv.org/abs/") {
			return l.Href
		}
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
