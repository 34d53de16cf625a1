package omniagent

import (
	"context"
	"regexp"
	"strings"
)

var (
	subjectOfMediaRe = regexp.MustCompile(`(?i)(?:image|photo|picture)\s+of\s+(.+)$`)
	subjectOfRe      = regexp.MustCompile(`(?i)\bof\s+(.+)$`)
)

// extractSubject pulls the main subject out of an image prompt so an edit
// turn can lock it: "image of X" wins, then a trailing "of X", then the
// last three words.
func extractSubject(prompt string) string {
	s := strings.TrimSpace(prompt)
	if s == "" {
		return ""
	}
	if m := subjectOfMediaRe.FindStringSubmatch(s); m != nil {
		return strings.Trim(m[1], " .!?")
	}
	if m := subjectOfRe.FindStringSubmatch(s); m != nil {
		return strings.Trim(m[1], " .!?")
	}
	words := strings.Fields(s)
	if len(words) > 3 {
		words = words[len(words)-3:]
	}
	return strings.Join(words, " ")
}

// plannerNode derives the runtime plan: replan budget, iteration budget and
// subject lock. Only image edits get a replan budget; turns with tool lanes
// get a second iteration so reflect can retry after a total lane failure.
func (e *Engine) plannerNode(_ context.Context, st *RunState, _ *Emitter) error {
	isImageEdit := st.Intent.Type == "edit" && st.Intent.TargetModality == "image"

	subjectLock := ""
	if isImageEdit && st.Linked != nil && st.Linked.Kind == "image" {
		subjectLock = extractSubject(st.Linked.Prompt)
	}
	maxReplans := 0
	if isImageEdit {
		maxReplans = 1
	}
	maxIterations := 1
	if st.Plan.WantsTools() {
		maxIterations = 2
	}
	if st.Runtime.MaxIterations > maxIterations {
		// Configured budget wins when it is the larger one.
		maxIterations = st.Runtime.MaxIterations
	}

	st.Runtime.IntentType = st.Intent.Type
	st.Runtime.TargetModality = st.Intent.TargetModality
	st.Runtime.Confidence = st.Intent.Confidence
	st.Runtime.MaxReplans = maxReplans
	st.Runtime.MaxIterations = maxIterations
	st.Runtime.SubjectLock = subjectLock
	st.PushNote("planner", "Runtime plan derived", map[string]any{
		"max_replans":    maxReplans,
		"max_iterations": maxIterations,
		"subject_lock":   subjectLock != "",
	})
	return nil
}

// lengthPolicy is attached verbatim to the text lane instruction.
const lengthPolicy = "Length policy:\n" +
	"- For explanation/overview/definition requests, provide about 1 page (roughly 350-500 words).\n" +
	"- For greetings, acknowledgements, or very simple asks, keep it concise (1-4 lines).\n" +
	"- For mixed asks, allocate length proportionally and avoid unnecessary verbosity.\n" +
	"Format with clear headings and concise bullets when useful."

// textRouterNode configures the text lane instruction when enabled.
func (e *Engine) textRouterNode(_ context.Context, st *RunState, _ *Emitter) error {
	if !st.Plan.Text.Enabled {
		st.TextInstructions = ""
		st.PushNote("text_router", "Text lane disabled", nil)
		return nil
	}
	st.Plan.Text.Instruction = lengthPolicy
	st.TextInstructions = lengthPolicy
	st.PushNote("text_router", "Text lane configured", map[string]any{"style": st.Plan.Text.Style})
	return nil
}
