package omniagent

import (
	"context"
	"fmt"
	"strings"
)

func hasAny(s string, parts ...string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// fastIntent applies deterministic rules that skip the classifier LLM for
// unambiguous turns. Returns false when no rule fires.
func fastIntent(st *RunState) bool {
	user := strings.TrimSpace(st.UserText)
	userLower := strings.ToLower(user)

	wantsDoc := hasAny(userLower, "doc", "document", "pdf", "notes")
	wantsExplainText := hasAny(userLower,
		"tell me", "explain", "what is", "why", "how", "summarize", "write", "story", "poem")
	wantsText := wantsExplainText
	if wantsDoc {
		// Document requests default to doc-only unless the user asks for
		// an explanation alongside.
		wantsText = wantsExplainText && hasAny(userLower,
			"also", "and explain", "plus explain", "with explanation",
			"and summarize", "plus summarize", "along with explanation")
	}

	mode := func() string {
		if wantsText {
			return ModeTextPlusTools
		}
		return ModeToolsOnly
	}
	intentType := func() string {
		if wantsText {
			return "mixed"
		}
		return "create"
	}
	modality := func(base string) string {
		if wantsText {
			return "text+" + base
		}
		return base
	}

	if st.Context.IsImageEdit && st.Linked != nil && st.Linked.Kind == "image" {
		st.Plan = RunPlan{
			Mode:  ModeToolsOnly,
			Text:  TextPlan{Enabled: false},
			Flags: map[string]bool{FlagNeedsImageGen: true},
			Note:  "fast_intent:image_edit",
		}
		st.Intent = Intent{Type: "edit", TargetModality: "image", Confidence: 0.95}
		return true
	}

	generative := hasAny(userLower, "generate", "create", "make")

	if generative && hasAny(userLower, "image", "photo", "picture") {
		note := "fast_intent:image_create"
		conf := 0.9
		if wantsText {
			note = "fast_intent:image_create_with_text"
			conf = 0.93
		}
		st.Plan = RunPlan{
			Mode:  mode(),
			Text:  TextPlan{Enabled: wantsText},
			Flags: map[string]bool{FlagNeedsImageGen: true},
			Note:  note,
		}
		st.Intent = Intent{Type: intentType(), TargetModality: modality("image"), Confidence: conf}
		return true
	}

	// Visual fallback: "generate/create/make X" without any explicit
	// modality word routes to image generation for UX consistency.
	if generative && !hasAny(userLower,
		"audio", "voice", "speech", "tts", "doc", "document", "pdf",
		"web", "search", "latest", "current", "summarize", "explain", "code", "text") {
		note := "fast_intent:image_fallback"
		conf := 0.72
		if st.Context.HasLastImage {
			conf = 0.78
		}
		if wantsText {
			note = "fast_intent:image_fallback_with_text"
			conf = 0.9
		}
		st.Plan = RunPlan{
			Mode:  mode(),
			Text:  TextPlan{Enabled: wantsText},
			Flags: map[string]bool{FlagNeedsImageGen: true},
			Note:  note,
		}
		st.Intent = Intent{Type: intentType(), TargetModality: modality("image"), Confidence: conf}
		return true
	}

	if generative && hasAny(userLower, "audio", "voice", "speech", "tts") {
		note := "fast_intent:audio_create"
		conf := 0.9
		if wantsText {
			note = "fast_intent:audio_create_with_text"
			conf = 0.93
		}
		st.Plan = RunPlan{
			Mode:  mode(),
			Text:  TextPlan{Enabled: wantsText},
			Flags: map[string]bool{FlagNeedsTTS: true},
			Note:  note,
		}
		st.Intent = Intent{Type: intentType(), TargetModality: modality("audio"), Confidence: conf}
		return true
	}

	if generative && wantsDoc {
		note := "fast_intent:doc_create"
		conf := 0.9
		if wantsText {
			note = "fast_intent:doc_create_with_text"
			conf = 0.93
		}
		st.Plan = RunPlan{
			Mode:  mode(),
			Text:  TextPlan{Enabled: wantsText},
			Flags: map[string]bool{FlagNeedsDoc: true},
			Note:  note,
		}
		st.Intent = Intent{Type: intentType(), TargetModality: modality("doc"), Confidence: conf}
		return true
	}

	return false
}

func intentPrompt(user string, hasFiles bool) string {
	return "Classify user request for an assistant.\n" +
		"Return ONLY JSON with keys:\n" +
		"mode: text_only|text_plus_tools|tools_only\n" +
		"flags: {needs_web, needs_rag, needs_doc, needs_vision, needs_tts, needs_image_gen}\n" +
		"web_source: tavily|wikipedia|arxiv|null\n" +
		"Rules: Mentioning the word 'web' is NOT a web-search request.\n" +
		"Use web only if user asks search/latest/current/cite/sources/papers.\n" +
		fmt.Sprintf("has_files=%v\nUSER:\n%s\n", hasFiles, user)
}

// intentNode classifies the turn into a RunPlan, preferring the fast-path
// rules and falling back to a zero-temperature micro LLM call. Malformed
// classifier output fails open to text_only.
func (e *Engine) intentNode(ctx context.Context, st *RunState, _ *Emitter) error {
	if fastIntent(st) {
		st.PushNote("intent", "Fast intent matched", map[string]any{"note": st.Plan.Note})
		return nil
	}

	provider, model := e.cfg.Models.Intent.resolve(st.Provider, st.Model)
	req := ChatRequest{
		Messages:         []ChatMessage{UserMessage(intentPrompt(st.UserText, len(st.Attachments) > 0))},
		GenerationParams: &GenerationParams{Temperature: floatPtr(0)},
	}
	resp, err := e.chatWithFallback(ctx, provider, model, req)
	if err != nil {
		return err
	}

	mode := ModeTextOnly
	flags := map[string]bool{}
	webSource := ""
	if data, jerr := ExtractJSON(resp.Content); jerr == nil {
		if m := jsonString(data, "mode"); m != "" {
			mode = m
		}
		flags = jsonBoolMap(data, "flags")
		ws := strings.ToLower(strings.TrimSpace(jsonString(data, "web_source")))
		if ws != "" && ws != "null" && ws != "none" {
			webSource = ws
		}
	}

	st.Plan = RunPlan{
		Mode:      mode,
		Text:      TextPlan{Enabled: mode != ModeToolsOnly},
		Flags:     flags,
		WebSource: webSource,
		Note:      "micro_intent_llm",
	}
	st.Intent = Intent{Type: "chat", TargetModality: "text", Confidence: 0.6}
	st.PushNote("intent", "Intent classified", map[string]any{"mode": mode})
	return nil
}
