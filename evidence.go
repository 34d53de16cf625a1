package omniagent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func dataString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func dataSlice(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

func dataMaps(m map[string]any, key string) []map[string]any {
	var out []map[string]any
	for _, v := range dataSlice(m, key) {
		if mm, ok := v.(map[string]any); ok {
			out = append(out, mm)
		}
	}
	return out
}

// orderedOutputs returns lane results in task order so digests and
// evidence are deterministic regardless of completion order.
func orderedOutputs(st *RunState) []ToolResult {
	out := make([]ToolResult, 0, len(st.Outputs))
	for _, t := range st.Tasks {
		if r, ok := st.Outputs[t.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// toolContextText renders all successful lane outputs into the digest the
// synthesizer prompt consumes.
func toolContextText(st *RunState) string {
	var rows []string
	for _, v := range orderedOutputs(st) {
		if !v.OK {
			continue
		}
		switch v.Kind {
		case TaskRAG:
			matches := dataMaps(v.Data, "matches")
			if len(matches) > 4 {
				matches = matches[:4]
			}
			var snippets []string
			for _, m := range matches {
				snippets = append(snippets, truncate(dataString(m, "text"), 500))
			}
			if len(snippets) > 0 {
				rows = append(rows, "RAG:\n"+strings.Join(snippets, "\n---\n"))
			}
		case TaskKBRAG:
			matches := dataMaps(v.Data, "matches")
			if len(matches) > 5 {
				matches = matches[:5]
			}
			var snippets []string
			for _, m := range matches {
				snippets = append(snippets, truncate(dataString(m, "text"), 500))
			}
			if len(snippets) > 0 {
				rows = append(rows, "KB_RAG:\n"+strings.Join(snippets, "\n---\n"))
			}
		case TaskWeb:
			var lines []string
			for _, part := range dataMaps(v.Data, "parts") {
				pd, _ := part["data"].(map[string]any)
				items := dataMaps(pd, "items")
				if len(items) > 0 {
					if len(items) > 8 {
						items = items[:8]
					}
					for _, it := range items {
						title := strings.TrimSpace(dataString(it, "title"))
						url := strings.TrimSpace(dataString(it, "url"))
						summ := strings.TrimSpace(dataString(it, "summary"))
						pub := strings.TrimSpace(dataString(it, "published"))
						if title != "" {
							lines = append(lines, "- "+title)
						}
						if pub != "" {
							lines = append(lines, "  published: "+pub)
						}
						if url != "" {
							lines = append(lines, "  url: "+url)
						}
						if summ != "" {
							lines = append(lines, "  summary: "+truncate(summ, 300))
						}
					}
					continue
				}
				results := dataMaps(pd, "results")
				if len(results) > 8 {
					results = results[:8]
				}
				for _, it := range results {
					title := strings.TrimSpace(dataString(it, "title"))
					url := strings.TrimSpace(dataString(it, "url"))
					content := strings.TrimSpace(dataString(it, "content"))
					if title != "" {
						lines = append(lines, "- "+title)
					}
					if url != "" {
						lines = append(lines, "  url: "+url)
					}
					if content != "" {
						lines = append(lines, "  snippet: "+truncate(content, 260))
					}
				}
			}
			if len(lines) > 0 {
				rows = append(rows, "WEB:\n"+strings.Join(lines, "\n"))
			}
		case TaskVision:
			rows = append(rows, "VISION: "+dataString(v.Data, "text"))
		case TaskDoc:
			rows = append(rows, "DOC: "+truncate(dataString(v.Data, "text"), 1200))
		}
	}
	// When this turn produced no doc/rag context, fall back to the
	// persisted doc artifact so follow-up questions keep working.
	hasDocOrRAG := false
	for _, r := range rows {
		if strings.HasPrefix(r, "DOC:") || strings.HasPrefix(r, "RAG:") {
			hasDocOrRAG = true
			break
		}
	}
	if !hasDocOrRAG && st.Artifacts != nil && st.Artifacts.Doc != nil {
		if memText := strings.TrimSpace(st.Artifacts.Doc.Text); memText != "" {
			rows = append(rows, "DOC: "+truncate(memText, 1200))
		}
	}
	return strings.Join(rows, "\n\n")
}

// toolResultDigest renders one lane result for support summarization.
func toolResultDigest(r ToolResult) string {
	switch r.Kind {
	case TaskRAG, TaskKBRAG:
		matches := dataMaps(r.Data, "matches")
		if len(matches) > 4 {
			matches = matches[:4]
		}
		var snippets []string
		for _, m := range matches {
			snippets = append(snippets, truncate(dataString(m, "text"), 500))
		}
		return strings.Join(snippets, "\n---\n")
	case TaskVision:
		return dataString(r.Data, "text")
	case TaskWeb:
		var lines []string
		for _, c := range r.Citations {
			line := "- " + c.Title
			if c.Snippet != "" {
				line += ": " + truncate(c.Snippet, 260)
			}
			lines = append(lines, line)
			if len(lines) >= 8 {
				break
			}
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

type arxivItem struct {
	Title     string
	URL       string
	Published string
	Summary   string
}

// arxivItemsFromOutputs collects canonical arXiv paper links from web lane
// outputs, deduped by URL.
func arxivItemsFromOutputs(st *RunState) []arxivItem {
	var items []arxivItem
	seen := map[string]bool{}
	for _, v := range orderedOutputs(st) {
		if v.Kind != TaskWeb || !v.OK {
			continue
		}
		for _, part := range dataMaps(v.Data, "parts") {
			pd, _ := part["data"].(map[string]any)
			for _, it := range dataMaps(pd, "items") {
				title := strings.TrimSpace(dataString(it, "title"))
				url := strings.TrimSpace(dataString(it, "url"))
				if title == "" || url == "" {
					continue
				}
				if !strings.Contains(url, "arxiv.org/abs/") {
					continue
				}
				if seen[url] {
					continue
				}
				seen[url] = true
				items = append(items, arxivItem{
					Title:     title,
					URL:       url,
					Published: strings.TrimSpace(dataString(it, "published")),
					Summary:   strings.TrimSpace(dataString(it, "summary")),
				})
			}
		}
	}
	return items
}

// renderArxivMarkdown renders arXiv results deterministically so paper
// titles and URLs are never paraphrased by a model.
func renderArxivMarkdown(items []arxivItem) string {
	lines := []string{"## Results from Arxiv", "", "Here are recent research papers from arXiv:", ""}
	for i, it := range items {
		lines = append(lines, fmt.Sprintf("%d. [%s](%s)", i+1, it.Title, it.URL))
		if it.Published != "" {
			lines = append(lines, "Published: "+truncate(it.Published, 10))
		}
		if it.Summary != "" {
			lines = append(lines, "Summary: "+truncate(it.Summary, 280))
		}
		lines = append(lines, "")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// kbUniqueCitations collects deduped KB citations for the Sources suffix.
func kbUniqueCitations(st *RunState) []Citation {
	seen := map[string]bool{}
	var out []Citation
	for _, v := range orderedOutputs(st) {
		if v.Kind != TaskKBRAG || !v.OK {
			continue
		}
		for _, c := range v.Citations {
			title := strings.TrimSpace(c.Title)
			url := strings.TrimSpace(c.URL)
			if title == "" || url == "" {
				continue
			}
			key := title + "|" + url
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Citation{Title: title, URL: url})
		}
	}
	return out
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		if len(w) >= 3 {
			out[w] = true
		}
	}
	return out
}

// evidenceRow is one candidate grounding snippet.
type evidenceRow struct {
	Kind   string
	Source string
	Text   string
}

// rankedEvidence scores retrieval snippets by word overlap with the query
// and returns the deduped top 5.
func rankedEvidence(st *RunState, query string) []evidenceRow {
	var rows []evidenceRow
	for _, v := range orderedOutputs(st) {
		if !v.OK {
			continue
		}
		switch v.Kind {
		case TaskRAG, TaskKBRAG:
			matches := dataMaps(v.Data, "matches")
			if len(matches) > 12 {
				matches = matches[:12]
			}
			for _, m := range matches {
				rows = append(rows, evidenceRow{
					Kind:   v.Kind,
					Source: strings.TrimSpace(dataString(m, "source")),
					Text:   strings.TrimSpace(dataString(m, "text")),
				})
			}
		case TaskWeb:
			for _, c := range v.Citations {
				rows = append(rows, evidenceRow{
					Kind:   v.Kind,
					Source: strings.TrimSpace(c.URL),
					Text:   strings.TrimSpace(c.Snippet),
				})
			}
		}
	}
	if len(rows) == 0 {
		return nil
	}

	qset := wordSet(query)
	type scored struct {
		row     evidenceRow
		overlap int
		idx     int
	}
	items := make([]scored, len(rows))
	for i, r := range rows {
		overlap := 0
		for w := range wordSet(r.Text + " " + r.Source) {
			if qset[w] {
				overlap++
			}
		}
		items[i] = scored{row: r, overlap: overlap, idx: i}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].overlap > items[j].overlap })

	var top []evidenceRow
	seen := map[string]bool{}
	for _, it := range items {
		key := it.row.Source + "|" + truncate(it.row.Text, 120)
		if seen[key] {
			continue
		}
		seen[key] = true
		top = append(top, it.row)
		if len(top) >= 5 {
			break
		}
	}
	return top
}

func evidenceText(rows []evidenceRow) string {
	if len(rows) == 0 {
		return ""
	}
	var out []string
	for i, r := range rows {
		src := r.Source
		if src == "" {
			src = "unknown"
		}
		out = append(out, fmt.Sprintf("%d. [%s] source=%s\n   snippet=%s", i+1, r.Kind, src, truncate(r.Text, 320)))
	}
	return strings.Join(out, "\n")
}

var entityQueryRe = regexp.MustCompile(`^\s*(?:who is|tell me about|about)\s+([a-z][a-z .'-]{2,})\??\s*$`)

// conflictSignals flags possible entity bleed: sources matching the first
// token of the target entity but not the last.
func conflictSignals(query string, rows []evidenceRow) []string {
	q := strings.TrimSpace(strings.ToLower(query))
	m := entityQueryRe.FindStringSubmatch(q)
	if m == nil {
		return nil
	}
	entity := strings.TrimSpace(spacesRe.ReplaceAllString(m[1], " "))
	var tokens []string
	for _, t := range strings.Split(entity, " ") {
		if len(t) >= 2 {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) < 2 {
		return nil
	}
	first, last := tokens[0], tokens[len(tokens)-1]
	var mismatched []string
	for _, r := range rows {
		src := strings.ToLower(r.Source)
		if strings.Contains(src, first) && !strings.Contains(src, last) {
			mismatched = append(mismatched, r.Source)
		}
	}
	if len(mismatched) == 0 {
		return nil
	}
	if len(mismatched) > 3 {
		mismatched = mismatched[:3]
	}
	return []string{fmt.Sprintf("Possible entity bleed for target '%s' in sources: %s", entity, strings.Join(mismatched, ", "))}
}
