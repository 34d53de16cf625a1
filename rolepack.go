package omniagent

import (
	"context"
	"fmt"
	"strings"
)

const rolePackSystemPrompt = "You are a fast planning assistant for response composition.\n" +
	"Return compact, actionable planning signals only.\n" +
	"Be concise, grounded, and avoid unnecessary verbosity.\n"

var defaultContract = ResponseContract{
	ResearcherBrief: "- Prioritize directly relevant evidence.\n- Resolve entity ambiguity.\n- Keep concise and grounded.",
	WriterPlan:      "Answer directly with strongest evidence first; keep concise; avoid unsupported claims.",
	CriticChecks:    "- Risk: unsupported claims\n- Risk: entity mix-up\nRule: only state what retrieved evidence supports.",
}

// rolePackNode produces the response contract steering the synthesizer.
// Media-only turns skip the LLM entirely; otherwise one low-temperature
// call, falling back to fixed defaults on any failure.
func (e *Engine) rolePackNode(ctx context.Context, st *RunState, _ *Emitter) error {
	user := strings.TrimSpace(st.UserText)
	if user == "" {
		return nil
	}

	kinds := make([]string, len(st.Tasks))
	mediaOnly := len(st.Tasks) > 0
	for i, t := range st.Tasks {
		kinds[i] = t.Kind
		if !t.IsMedia() {
			mediaOnly = false
		}
	}
	if mediaOnly {
		st.Contract = ResponseContract{
			ResearcherBrief: "Prioritize the user's direct explanation request.",
			WriterPlan:      "Answer succinctly in markdown. Do not mention tool execution status.",
			CriticChecks:    "Avoid unsupported claims; keep response concise.",
		}
		st.PushNote("role_pack", "Role pack fast-path for media-only tasks", map[string]any{"tasks": kinds})
		return nil
	}

	provider, model := e.cfg.Models.Role.resolve(st.Provider, st.Model)
	prompt := "You are producing a compact collaboration contract for a response engine.\n" +
		"Return ONLY JSON with keys: researcher_brief, writer_plan, critic_checks.\n" +
		"- researcher_brief: max 3 bullets\n" +
		"- writer_plan: max 6 lines\n" +
		"- critic_checks: max 3 risks + 1 corrective rule\n\n" +
		fmt.Sprintf("User request: %s\n", user) +
		fmt.Sprintf("Intent: %s/%s\n", st.Intent.Type, st.Intent.TargetModality) +
		fmt.Sprintf("Planned task kinds: %v\n", kinds)

	contract := defaultContract
	resp, err := e.chatWithFallback(ctx, provider, model, ChatRequest{
		Messages:         []ChatMessage{UserMessage(rolePackSystemPrompt + "\n\n" + prompt)},
		GenerationParams: &GenerationParams{Temperature: floatPtr(0.1)},
	})
	if err == nil {
		if data, jerr := ExtractJSON(resp.Content); jerr == nil {
			if v := strings.TrimSpace(jsonString(data, "researcher_brief")); v != "" {
				contract.ResearcherBrief = v
			}
			if v := strings.TrimSpace(jsonString(data, "writer_plan")); v != "" {
				contract.WriterPlan = v
			}
			if v := strings.TrimSpace(jsonString(data, "critic_checks")); v != "" {
				contract.CriticChecks = v
			}
		}
	}

	st.Contract = contract
	st.PushNote("role_pack", "Parallel role pack prepared", map[string]any{
		"tasks":    kinds,
		"provider": provider,
		"model":    model,
	})
	return nil
}

// reflectNode counts lane outcomes and decides whether a bounded replan is
// warranted: one retry when tools were requested and all of them failed.
func (e *Engine) reflectNode(st *RunState) {
	st.Runtime.Iteration++
	success, failed := 0, 0
	for _, t := range st.Tasks {
		out, ok := st.Outputs[t.ID]
		if !ok {
			continue
		}
		if out.OK {
			success++
		} else {
			failed++
		}
	}

	replan := false
	reason := ""
	if len(st.Tasks) > 0 && success == 0 && failed > 0 && st.Runtime.Iteration < st.Runtime.MaxIterations {
		replan = true
		reason = "all_tools_failed_retry_once"
		st.Plan.Text.Enabled = true
		st.Plan.Mode = ModeTextPlusTools
		// KB retrieval failures fall back to a web search once.
		for _, t := range st.Tasks {
			if t.Kind == TaskKBRAG {
				st.Plan.SetFlag(FlagNeedsWeb, true)
				break
			}
		}
	}

	st.Runtime.ReplanRequested = replan
	st.Runtime.ReplanReason = reason
	st.PushNote("reflect", "Reflection complete", map[string]any{
		"iteration":        st.Runtime.Iteration,
		"max_iterations":   st.Runtime.MaxIterations,
		"success":          success,
		"failed":           failed,
		"replan_requested": replan,
		"reason":           reason,
	})
}
