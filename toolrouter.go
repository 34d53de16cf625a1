package omniagent

import (
	"context"
	"regexp"
	"strings"
)

// nextActionRe marks where one tool clause ends and the next request
// begins ("..., and explain", "... then generate ..."). Clause extraction
// stops at the earliest such boundary.
var nextActionRe = regexp.MustCompile(`(?i)(?:\s*,|\s+and\s+|\s+also\s+|\s+then\s+)\s*(?:generate|create|make|explain|tell|write|summarize|what is)\b`)

// Clause-start patterns. Each matches up to where the payload clause
// begins; the clause itself runs until the next action boundary.
var (
	imageClauseStarts = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:generate|create|make)\s+(?:an?\s+)?(?:image|picture|photo)(?:\s+for|\s+of)?\s+`),
		regexp.MustCompile(`(?i)(?:image|picture|photo)\s+of\s+`),
	}
	audioClauseStarts = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:generate|create|make)\s+audio(?:\s+for|\s+saying|\s+of)?\s+`),
		regexp.MustCompile(`(?i)(?:say|speak)\s+`),
	}
	docClauseStarts = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:generate|create|make)\s+(?:an?\s+)?(?:pdf|document|docx?|txt|text file)(?:\s+on|\s+about|\s+for)?\s+`),
		regexp.MustCompile(`(?i)(?:doc|document)\s+about\s+`),
	}
	docSafetyNetStarts = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:pdf|document|docx?|txt|text file)(?:\s+on|\s+about|\s+for)?\s+`),
	}
	connectiveRe = regexp.MustCompile(`(?i)\b(and|also|then)\b`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

func cleanClause(s string) string {
	out := strings.Trim(strings.TrimSpace(s), ",.;:-")
	out = strings.Trim(strings.TrimSpace(out), `"'`)
	return strings.TrimSpace(out)
}

// clauseAfter returns the clause following a start-pattern match, cut at
// the next action boundary, or "" when the pattern does not match.
func clauseAfter(text string, start *regexp.Regexp) string {
	loc := start.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	if b := nextActionRe.FindStringIndex(rest); b != nil {
		rest = rest[:b[0]]
	}
	return cleanClause(rest)
}

func findClause(text string, starts []*regexp.Regexp) string {
	for _, re := range starts {
		if v := clauseAfter(text, re); v != "" {
			return v
		}
	}
	return ""
}

// extractQuoted returns the span between the outermost quote pair, else
// the trimmed input.
func extractQuoted(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return s
	}
	for _, q := range []string{`"`, `'`} {
		i := strings.Index(s, q)
		j := strings.LastIndex(s, q)
		if i != -1 && j > i {
			if inner := strings.TrimSpace(s[i+1 : j]); inner != "" {
				return inner
			}
		}
	}
	return s
}

func stripPrefixes(text string, prefixes []string) string {
	s := strings.TrimSpace(text)
	low := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(low, p) {
			return strings.Trim(strings.TrimSpace(s[len(p):]), " :.-")
		}
	}
	return s
}

// removeToolClauses strips generation clauses out of the user text so the
// text lane answers only the conversational remainder.
func removeToolClauses(text string) string {
	s := text
	for _, starts := range [][]*regexp.Regexp{imageClauseStarts[:1], audioClauseStarts[:1], docClauseStarts[:1]} {
		re := starts[0]
		for {
			loc := re.FindStringIndex(s)
			if loc == nil {
				break
			}
			end := len(s)
			if b := nextActionRe.FindStringIndex(s[loc[1]:]); b != nil {
				end = loc[1] + b[0]
			}
			s = s[:loc[0]] + " " + s[end:]
		}
	}
	s = connectiveRe.ReplaceAllString(s, " ")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.Trim(strings.TrimSpace(s), " ,.;:-")
}

// docFormatFromText infers the requested document format, defaulting txt.
func docFormatFromText(text string) string {
	s := strings.ToLower(text)
	switch {
	case strings.Contains(s, "pdf"):
		return "pdf"
	case strings.Contains(s, "docx"), strings.Contains(s, "word"),
		strings.Contains(s, " ms doc"), strings.Contains(s, " ms-doc"), strings.Contains(s, " .doc"):
		return "doc"
	case strings.Contains(s, "txt"), strings.Contains(s, "text file"), strings.Contains(s, "plain text"):
		return "txt"
	case strings.Contains(s, "markdown"), strings.Contains(" "+s+" ", " md "):
		return "md"
	}
	return "txt"
}

func isNewsQuery(text string) bool {
	return hasAny(strings.ToLower(text), "news", "headline", "headlines", "latest", "recent", "today", "update")
}

// toolRouterNode expands plan flags into concrete lane tasks using
// deterministic clause extraction, and computes the text-lane query with
// tool clauses removed.
func (e *Engine) toolRouterNode(_ context.Context, st *RunState, _ *Emitter) error {
	userText := st.UserText
	userLower := strings.ToLower(userText)
	var tasks []Task

	if st.Plan.Flag(FlagNeedsWeb) {
		src := st.Plan.WebSource
		if src == "" {
			src = SourceTavily
		}
		sources := []string{src}
		if src == SourceTavily && !isNewsQuery(userText) {
			sources = append(sources, SourceWikipedia)
		}
		tasks = append(tasks, Task{ID: ShortID(), Kind: TaskWeb, Query: userText, TopK: 5, Sources: sources})
	}

	if st.Plan.Flag(FlagNeedsRAG) {
		tasks = append(tasks, Task{ID: ShortID(), Kind: TaskRAG, Query: userText, TopK: 5})
	}
	if st.Plan.Flag(FlagNeedsKBRAG) {
		tasks = append(tasks, Task{ID: ShortID(), Kind: TaskKBRAG, Query: userText, TopK: 6})
	}

	linkedPrompt := ""
	if st.Linked != nil && st.Linked.Kind == "image" {
		linkedPrompt = strings.TrimSpace(st.Linked.Prompt)
	}
	lastImagePrompt := strings.TrimSpace(st.LastImagePrompt)
	wantsImageEdit := (st.Intent.Type == "edit" && st.Intent.TargetModality == "image") ||
		(linkedPrompt != "" && containsAnyCue(userLower, imageEditCues)) ||
		(lastImagePrompt != "" && containsAnyCue(userLower, imageEditCues))

	if st.Plan.Flag(FlagNeedsImageGen) || wantsImageEdit {
		prompt := findClause(userText, imageClauseStarts)
		if prompt == "" {
			prompt = extractQuoted(stripPrefixes(userText, []string{
				"generate image for",
				"create image for",
				"make image for",
				"image for",
				"generate an image for",
			}))
		}
		if wantsImageEdit {
			base := linkedPrompt
			if base == "" {
				base = lastImagePrompt
			}
			prompt = base + "\n\n" +
				"Apply this edit request: " + userText + "\n" +
				"Keep the same main subject unless the user explicitly changes it."
		}
		tasks = append(tasks, Task{
			ID:          ShortID(),
			Kind:        TaskImageGen,
			Prompt:      prompt,
			Size:        "1024x1024",
			SubjectLock: st.Runtime.SubjectLock,
		})
	}

	if st.Plan.Flag(FlagNeedsTTS) {
		explicit := hasAny(userLower, "audio", "voice", "tts", "speak", "read aloud", "narrate")
		text := findClause(userText, audioClauseStarts)
		if text == "" {
			text = extractQuoted(stripPrefixes(userText, []string{
				"generate audio for",
				"create audio for",
				"make audio for",
				"audio for",
				"say",
				"speak",
			}))
		}
		if explicit && text != "" {
			tasks = append(tasks, Task{ID: ShortID(), Kind: TaskTTS, Text: text, Voice: "alloy"})
		}
	}

	if st.Plan.Flag(FlagNeedsDoc) {
		var docAtt *Attachment
		for i := range st.Attachments {
			if st.Attachments[i].Kind == "doc" {
				docAtt = &st.Attachments[i]
				break
			}
		}
		if docAtt != nil {
			tasks = append(tasks, Task{
				ID:           ShortID(),
				Kind:         TaskDoc,
				Instruction:  DocExtract,
				AttachmentID: docAtt.ID,
				Format:       docFormatFromText(userText),
			})
		} else {
			prompt := findClause(userText, docClauseStarts)
			if prompt == "" {
				prompt = extractQuoted(stripPrefixes(userText, []string{
					"generate a doc about", "create a doc about", "make a doc about", "doc about",
				}))
			}
			tasks = append(tasks, Task{
				ID:          ShortID(),
				Kind:        TaskDoc,
				Instruction: DocGenerate,
				Prompt:      prompt,
				Format:      docFormatFromText(userText),
			})
		}
	}

	// Safety net: explicit generation/export requests get a doc task even
	// when the classifier missed the flag.
	explicitDocRequest := hasAny(userLower, "pdf", "document", "docx", "text file", "txt", "markdown", " md ") &&
		hasAny(userLower, "generate", "create", "make", "write", "export")
	hasDocTask := false
	for _, t := range tasks {
		if t.Kind == TaskDoc {
			hasDocTask = true
			break
		}
	}
	if explicitDocRequest && !hasDocTask {
		prompt := findClause(userText, docSafetyNetStarts)
		if prompt == "" {
			prompt = extractQuoted(userText)
		}
		if prompt == "" {
			prompt = userText
		}
		tasks = append(tasks, Task{
			ID:          ShortID(),
			Kind:        TaskDoc,
			Instruction: DocGenerate,
			Prompt:      prompt,
			Format:      docFormatFromText(userText),
		})
	}

	if st.Plan.Flag(FlagNeedsVision) && len(st.Attachments) > 0 {
		for i := range st.Attachments {
			if st.Attachments[i].Kind == "image" {
				tasks = append(tasks, Task{
					ID:                ShortID(),
					Kind:              TaskVision,
					Prompt:            userText,
					ImageAttachmentID: st.Attachments[i].ID,
				})
				break
			}
		}
	}

	st.Tasks = tasks
	st.TextQuery = removeToolClauses(userText)

	kinds := make([]string, len(tasks))
	for i, t := range tasks {
		kinds[i] = t.Kind
	}
	st.PushNote("tool_router", "Tool lanes selected", map[string]any{
		"task_kinds": kinds,
		"count":      len(tasks),
	})
	return nil
}

// taskValidateNode drops malformed/duplicate tasks and clamps retrieval
// fan-out.
func (e *Engine) taskValidateNode(_ context.Context, st *RunState, _ *Emitter) error {
	seen := map[string]bool{}
	var cleaned []Task
	dropped := 0
	for _, t := range st.Tasks {
		if t.Kind == "" {
			dropped++
			continue
		}
		key := t.Kind + "|" + strings.ToLower(strings.TrimSpace(t.Anchor()))
		if seen[key] {
			dropped++
			continue
		}
		seen[key] = true
		switch t.Kind {
		case TaskWeb, TaskRAG, TaskKBRAG:
			if t.TopK < 1 {
				t.TopK = 5
			}
			if t.TopK > 8 {
				t.TopK = 8
			}
		}
		cleaned = append(cleaned, t)
	}
	input := len(st.Tasks)
	st.Tasks = cleaned
	st.PushNote("task_validate", "Tasks validated", map[string]any{
		"input":   input,
		"output":  len(cleaned),
		"dropped": dropped,
	})
	return nil
}
