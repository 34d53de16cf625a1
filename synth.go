package omniagent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var greetingOnlyRe = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|yo|sup|what'?s up|good\s+morning|good\s+afternoon|good\s+evening)[!. ]*$`)

const lengthRules = "Length policy:\n" +
	"- Explanation/overview/definition requests: target about 1 page (roughly 350-500 words).\n" +
	"- Greetings, acknowledgements, or very simple asks: keep concise (1-4 lines).\n" +
	"- Mixed asks: allocate length proportionally and avoid filler.\n"

func historyText(history []ChatMessage) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > 12 {
		history = history[len(history)-12:]
	}
	rows := make([]string, len(history))
	for i, m := range history {
		role := m.Role
		if role == "" {
			role = "user"
		}
		rows[i] = strings.ToUpper(role) + ": " + m.Content
	}
	return strings.Join(rows, "\n")
}

// kbEntityMiss reports whether any KB lane returned an empty match set with
// an unmatched entity hint, and the hint itself.
func kbEntityMiss(st *RunState) (bool, string) {
	for _, v := range orderedOutputs(st) {
		if v.Kind != TaskKBRAG || !v.OK {
			continue
		}
		miss := strings.TrimSpace(dataString(v.Data, "entity_not_found"))
		if miss != "" && len(dataMaps(v.Data, "matches")) == 0 {
			return true, miss
		}
	}
	return false, ""
}

// synthesize produces the main text answer for the turn and streams it as
// token events. Deterministic renderers handle arXiv listings and KB entity
// misses; everything else goes through the text model with a prompt built
// from the tool context, ranked evidence, and the collaboration contract.
func (e *Engine) synthesize(ctx context.Context, st *RunState, em *Emitter) (string, error) {
	queryText := st.TextQuery
	if queryText == "" {
		queryText = st.UserText
	}

	hasMediaBlocks := false
	var webTasks, kbTasks int
	arxivOnlyWeb := true
	hasArxivContext := false
	for _, t := range st.Tasks {
		switch t.Kind {
		case TaskImageGen, TaskTTS, TaskDoc:
			hasMediaBlocks = true
		case TaskWeb:
			webTasks++
			for _, s := range t.Sources {
				if s == SourceArxiv {
					hasArxivContext = true
				}
			}
			if len(t.Sources) != 1 || t.Sources[0] != SourceArxiv {
				arxivOnlyWeb = false
			}
		case TaskKBRAG:
			kbTasks++
		}
	}
	arxivOnlyWeb = arxivOnlyWeb && webTasks > 0
	hasWebContext := webTasks > 0
	hasKBContext := kbTasks > 0

	var arxivItems []arxivItem
	if hasArxivContext {
		arxivItems = arxivItemsFromOutputs(st)
	}
	var kbCitations []Citation
	if hasKBContext {
		kbCitations = kbUniqueCitations(st)
	}
	kbNoExactEntity := false
	kbMissingName := ""
	if hasKBContext {
		kbNoExactEntity, kbMissingName = kbEntityMiss(st)
	}

	// arXiv listings render deterministically so titles and links come
	// straight from the feed.
	if arxivOnlyWeb && len(arxivItems) > 0 && !hasMediaBlocks {
		text := renderArxivMarkdown(arxivItems)
		em.StreamFixed(ctx, text, e.cfg.ArxivStreamDelay)
		return text, nil
	}

	if kbNoExactEntity {
		miss := kbMissingName
		if miss == "" {
			miss = "the requested employee"
		}
		text := "## Knowledge Base Result\n\n" +
			fmt.Sprintf("No exact record was found for %q in the Insurellm knowledge base.\n\n", miss) +
			"Try the full official name or verify spelling."
		em.StreamFixed(ctx, text, e.cfg.ArxivStreamDelay)
		return text, nil
	}

	toolContext := toolContextText(st)
	evRows := rankedEvidence(st, queryText)
	evText := evidenceText(evRows)
	conflicts := conflictSignals(queryText, evRows)

	var b strings.Builder
	b.WriteString("You are OmniAgent. Answer directly in markdown.\n")
	b.WriteString(lengthRules)
	b.WriteString("Use short headings and compact bullets where useful.\n" +
		"Avoid long paragraphs (>3 lines each).\n" +
		"If tool outputs are present, treat them as completed results and do not say you cannot perform generation.\n" +
		"Never output internal labels/headers like CHAT_HISTORY or TOOL_CONTEXT.\n" +
		"When a turn has both text and tool outputs, answer ONLY the user's text/explanation requests.\n" +
		"Address all distinct textual asks in the same user message; do not skip any requested text output.\n" +
		"If the user asks for both factual retrieval and creative writing, include both in one response with clear sections.\n" +
		"Do NOT include sections like 'Audio Generation', 'Image Generation', 'Document Generation', or status lines about generated tools.\n" +
		"Do NOT mention that files/audio/images were generated; the UI shows tool blocks separately.\n")
	if hasMediaBlocks {
		b.WriteString("If media/doc tool blocks are present, do not output markdown image/audio/doc links or placeholder URLs.\n" +
			"Do not invent URLs (especially example.com). The UI already renders generated media blocks.\n")
	}
	if hasArxivContext {
		b.WriteString("Start your response with this exact heading on the first line: ## Results from Arxiv\n" +
			"Then provide concise answer content.\n" +
			"If WEB context includes paper entries, list those papers with their real URLs.\n" +
			"Do not claim 'no papers found' when paper entries are present in context.\n" +
			"For each paper, copy the exact title text from tool context. Do not paraphrase or invent titles.\n" +
			"Each title must be paired with its own URL from the same paper entry.\n")
	} else if hasWebContext {
		b.WriteString("Start your response with this exact heading on the first line: ## Results from Web\n" +
			"Return ONLY a short numbered list (max 5 items), with this exact per-item layout:\n" +
			"1. **Headline:** <title>\n" +
			"   **Description:** <2-3 lines; factual and concise>\n" +
			"   **Source:** <publisher name> - [Read](url)\n" +
			"No intro sentence. No outro sentence. No placeholder '(link)'.\n" +
			"Use only URLs present in tool context and skip vague/generic results.\n")
	}
	if hasWebContext || hasArxivContext {
		b.WriteString("For links, only use URLs explicitly present in tool context/citations. Never invent or guess URLs.\n")
	}
	if hasKBContext {
		b.WriteString("The question targets the Insurellm knowledge base.\n" +
			"Use KB_RAG context as the source of truth.\n" +
			"If the question names a specific person/entity, answer only for that exact entity.\n" +
			"Ignore context snippets about similarly named but different entities.\n" +
			"Do not copy large raw chunks verbatim; synthesize a concise answer.\n" +
			"Do NOT include a Sources/Citations section in the answer.\n")
	}
	if len(conflicts) > 0 {
		b.WriteString("Conflict alerts:\n")
		for _, c := range conflicts {
			b.WriteString("- " + c + "\n")
		}
	}
	b.WriteString(st.TextInstructions + "\n\n")
	b.WriteString("Agent collaboration contract:\n" +
		"Researcher brief:\n" + st.Contract.ResearcherBrief + "\n\n" +
		"Writer plan:\n" + st.Contract.WriterPlan + "\n\n" +
		"Critic checks:\n" + st.Contract.CriticChecks + "\n\n")
	b.WriteString("Conversation so far:\n" + historyText(st.History) + "\n\n")
	if toolContext != "" {
		b.WriteString("Useful context from tools:\n" + toolContext + "\n\n")
	}
	if evText != "" {
		b.WriteString("Ranked evidence (top 5):\n" + evText + "\n\n")
	}
	b.WriteString("User message:\n" + queryText + "\n")
	prompt := b.String()

	provider, model := e.cfg.Models.Text.resolve(st.Provider, st.Model)

	var llmText string
	if len(conflicts) > 0 && e.cfg.MaxRewrites > 0 {
		// Conflicting evidence: draft synchronously, review once against the
		// ranked evidence, then stream the reviewed answer deterministically.
		draftResp, err := e.chatWithFallback(ctx, provider, model, ChatRequest{
			Messages:         []ChatMessage{UserMessage(prompt)},
			GenerationParams: &GenerationParams{Temperature: floatPtr(0.2)},
		})
		if err != nil {
			return "", err
		}
		draft := strings.TrimSpace(draftResp.Content)
		reviewPrompt := "Review the draft against ranked evidence.\n" +
			"If unsupported or mixed-entity claims exist, rewrite once to be evidence-grounded.\n" +
			"Return only corrected markdown answer.\n\n" +
			"Draft:\n" + draft + "\n\n" +
			"Ranked evidence:\n" + evText + "\n"
		reviewed := draft
		if resp, err := e.chatWithFallback(ctx, provider, model, ChatRequest{
			Messages:         []ChatMessage{UserMessage(reviewPrompt)},
			GenerationParams: &GenerationParams{Temperature: floatPtr(0.2)},
		}); err == nil {
			if v := strings.TrimSpace(resp.Content); v != "" {
				reviewed = v
			}
		}
		em.StreamFixed(ctx, reviewed, e.cfg.ArxivStreamDelay)
		llmText = reviewed
	} else {
		text, err := e.streamWithFallback(ctx, provider, model, ChatRequest{
			Messages:         []ChatMessage{UserMessage(prompt)},
			GenerationParams: &GenerationParams{Temperature: floatPtr(0.2)},
		}, em)
		if err != nil {
			return "", err
		}
		llmText = text
	}

	// A bare greeting that still produced a long answer gets one compact
	// rewrite.
	if greetingOnlyRe.MatchString(queryText) {
		if len(strings.Fields(strings.TrimSpace(llmText))) > 20 {
			resp, err := e.chatWithFallback(ctx, provider, model, ChatRequest{
				Messages: []ChatMessage{UserMessage(
					"Rewrite the following as exactly one short friendly sentence " +
						"(max 18 words), no headings, no bullets, no markdown:\n\n" + llmText)},
				GenerationParams: &GenerationParams{Temperature: floatPtr(0.1)},
			})
			if err == nil {
				if short := strings.TrimSpace(resp.Content); short != "" {
					llmText = short
				}
			}
		}
	}

	if hasKBContext && len(kbCitations) > 0 {
		lines := []string{"", "", "## Sources", ""}
		for i, c := range kbCitations {
			lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, c.Title, c.URL))
		}
		suffix := strings.Join(lines, "\n")
		em.StreamFixed(ctx, suffix, e.cfg.ArxivStreamDelay)
		llmText += suffix
	}

	return llmText, nil
}
