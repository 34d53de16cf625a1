package omniagent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// maxLaneWorkers bounds fan-out within one cohort.
const maxLaneWorkers = 10

// subjectLockOK checks that the first two meaningful lock tokens survive
// in the prompt.
func subjectLockOK(prompt, lock string) bool {
	if lock == "" {
		return true
	}
	t := strings.ToLower(prompt)
	var required []string
	for _, w := range strings.Fields(strings.ToLower(lock)) {
		if len(w) >= 3 {
			required = append(required, w)
		}
	}
	if len(required) == 0 {
		return false
	}
	if len(required) > 2 {
		required = required[:2]
	}
	for _, w := range required {
		if !strings.Contains(t, w) {
			return false
		}
	}
	return true
}

// taskPhrase renders the requested lanes as a human phrase for meta
// messages ("document and image", "web results, audio, and ...").
func taskPhrase(tasks []Task) string {
	if len(tasks) == 0 {
		return "response"
	}
	kinds := map[string]bool{}
	for _, t := range tasks {
		kinds[t.Kind] = true
	}
	var labels []string
	for _, pair := range []struct{ kind, label string }{
		{TaskDoc, "document"},
		{TaskImageGen, "image"},
		{TaskTTS, "audio"},
		{TaskWeb, "web results"},
		{TaskRAG, "document analysis"},
		{TaskKBRAG, "knowledge-base answer"},
		{TaskVision, "vision analysis"},
	} {
		if kinds[pair.kind] {
			labels = append(labels, pair.label)
		}
	}
	switch len(labels) {
	case 0:
		return "response"
	case 1:
		return labels[0]
	case 2:
		return labels[0] + " and " + labels[1]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + ", and " + labels[len(labels)-1]
}

// metaMessage produces the one-sentence meta text. The conclusion stays
// deterministic to avoid hallucinated claims; the initial sentence comes
// from the intent model with a fixed fallback.
func (e *Engine) metaMessage(ctx context.Context, st *RunState, stage string) string {
	phrase := taskPhrase(st.Tasks)
	if stage == "conclusion" {
		return "Completed. Results are shown above."
	}
	fallback := fmt.Sprintf("Sure, I will handle your %s request.", phrase)

	provider, model := e.cfg.Models.Intent.resolve(st.Provider, st.Model)
	prompt := "Write exactly one short sentence for assistant UX.\n" +
		fmt.Sprintf("Stage: %s\n", stage) +
		fmt.Sprintf("User query: %s\n", st.UserText) +
		fmt.Sprintf("Requested tools: %s\n", phrase) +
		"Rules: no markdown links, no bullets, no headings, no quotes.\n" +
		"If stage=initial, acknowledge what will be generated.\n" +
		"If stage=conclusion, confirm outputs are ready.\n"
	resp, err := e.chatWithFallback(ctx, provider, model, ChatRequest{
		Messages:         []ChatMessage{UserMessage(prompt)},
		GenerationParams: &GenerationParams{Temperature: floatPtr(0.2)},
	})
	if err != nil {
		return fallback
	}
	out := strings.ReplaceAll(strings.TrimSpace(resp.Content), "\n", " ")
	if out == "" {
		return fallback
	}
	return out
}

// streamMetaBlock streams a meta block word-by-word, then closes it with
// the accumulated markdown payload.
func (e *Engine) streamMetaBlock(ctx context.Context, em *Emitter, blockID, title, kind, text string) {
	em.Emit(EventBlockStart, map[string]any{"block_id": blockID, "title": title, "kind": kind})
	words := strings.Split(text, " ")
	var acc strings.Builder
	for i, w := range words {
		tok := w
		if i < len(words)-1 {
			tok += " "
		}
		acc.WriteString(tok)
		em.Emit(EventBlockToken, map[string]any{"block_id": blockID, "text": tok})
		if e.cfg.MetaStreamDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.MetaStreamDelay):
			}
		}
	}
	em.Emit(EventBlockEnd, map[string]any{
		"block_id": blockID,
		"payload": map[string]any{
			"ok":   true,
			"kind": kind,
			"data": map[string]any{"text": strings.TrimSpace(acc.String()), "mime": "text/markdown"},
		},
	})
}

// laneExec serializes cross-goroutine writes during lane fan-out.
type laneExec struct {
	mu sync.Mutex
	st *RunState
}

func (x *laneExec) record(id string, r ToolResult) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.st.Outputs[id] = r
}

// lanesNode fans lane tasks out into knowledge and media cohorts, starts
// the synthesizer as soon as the knowledge cohort completes, and closes
// the turn with a conclusion meta block.
func (e *Engine) lanesNode(ctx context.Context, st *RunState, em *Emitter) error {
	tasks := st.Tasks

	if len(tasks) > 0 && !st.InitialMetaEmitted {
		initial := e.metaMessage(ctx, st, "initial")
		e.streamMetaBlock(ctx, em, "__meta_initial__", "Initial", "meta_initial", initial)
		st.InitialMetaEmitted = true
	}

	for _, t := range tasks {
		em.Emit(EventBlockStart, map[string]any{"block_id": t.ID, "title": BlockTitle(t), "kind": t.Kind})
	}

	var knowledge, media []Task
	for _, t := range tasks {
		if t.IsKnowledge() {
			knowledge = append(knowledge, t)
		} else {
			media = append(media, t)
		}
	}

	exec := &laneExec{st: st}
	knowledgeDone := e.runCohort(ctx, knowledge, st, em, exec)
	mediaDone := e.runCohort(ctx, media, st, em, exec)

	mediaOnly := len(tasks) > 0 && len(knowledge) == 0
	shouldEmitText := st.Plan.Text.Enabled || len(knowledge) > 0

	llmText := ""
	if shouldEmitText {
		if mediaOnly && st.Plan.Mode == ModeToolsOnly {
			<-mediaDone
			<-knowledgeDone
		} else {
			// Text starts as soon as retrieval context is ready; media
			// lanes keep running in the background.
			<-knowledgeDone
			text, err := e.synthesize(ctx, st, em)
			if err != nil {
				return err
			}
			llmText = text
		}
	}

	<-knowledgeDone
	<-mediaDone

	if len(tasks) > 0 {
		conclusion := e.metaMessage(ctx, st, "conclusion")
		// Replan iterations get their own block id so start/end pairs stay
		// unique across the stream.
		blockID := "__meta_conclusion__"
		if st.Runtime.Iteration > 0 {
			blockID = fmt.Sprintf("__meta_conclusion_%d__", st.Runtime.Iteration+1)
		}
		e.streamMetaBlock(ctx, em, blockID, "Conclusion", "meta_conclusion", conclusion)
	}

	// A text lane claiming it cannot generate while media lanes did the
	// work is worse than silence.
	if len(media) > 0 && llmText != "" {
		low := strings.ToLower(llmText)
		if hasAny(low, "can't create", "cannot create", "unable to create") {
			llmText = ""
		}
	}

	st.FinalText = llmText
	e.checkerNote(st)
	kinds := make([]string, len(tasks))
	for i, t := range tasks {
		kinds[i] = t.Kind
	}
	st.PushNote("lanes", "Execution complete", map[string]any{
		"tasks":          kinds,
		"tool_outputs":   len(st.Outputs),
		"has_final_text": llmText != "",
	})
	return nil
}

// runCohort executes tasks through a bounded worker pool and returns a
// channel closed when every task has recorded a result.
func (e *Engine) runCohort(ctx context.Context, tasks []Task, st *RunState, em *Emitter, exec *laneExec) <-chan struct{} {
	done := make(chan struct{})
	if len(tasks) == 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		workers := min(maxLaneWorkers, len(tasks))
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for _, t := range tasks {
			wg.Add(1)
			sem <- struct{}{}
			go func(t Task) {
				defer wg.Done()
				defer func() { <-sem }()
				start := map[string]any{"task_id": t.ID, "kind": t.Kind}
				if a := t.Anchor(); a != "" {
					start["query"] = a
				}
				em.Emit(EventTaskStart, start)
				r := e.runLaneTask(ctx, t, st, em, exec)
				exec.record(t.ID, r)
				e.recordArtifacts(t, r, st, exec)
				result := map[string]any{"task_id": t.ID, "kind": t.Kind, "ok": r.OK}
				if r.Err != "" {
					result["errors"] = []string{r.Err}
				}
				em.Emit(EventTaskResult, result)
				em.Emit(EventBlockEnd, map[string]any{"block_id": t.ID, "payload": r})
			}(t)
		}
		wg.Wait()
	}()
	return done
}

// runLaneTask executes one task, applying the image timeout and the
// subject-lock retry loop.
func (e *Engine) runLaneTask(ctx context.Context, t Task, st *RunState, em *Emitter, exec *laneExec) ToolResult {
	lane := e.lanes.Get(t.Kind)
	if lane == nil {
		em.Emit(EventError, map[string]any{"task_id": t.ID, "error": fmt.Sprintf("no lane for kind=%s", t.Kind)})
		return ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: "no lane registered"}
	}

	if t.Kind != TaskImageGen {
		r := e.runLaneGuarded(ctx, lane, t, st, em)
		e.maybeSupportSummary(ctx, t, &r, st)
		return r
	}

	timeout := e.cfg.ImageTimeout
	if timeout < time.Second {
		timeout = time.Second
	}
	attempts := 0
	task := t
	for {
		attempts++
		r, timedOut := e.runLaneWithTimeout(ctx, lane, task, st, em, timeout)
		if timedOut {
			return ToolResult{
				TaskID: t.ID,
				Kind:   t.Kind,
				OK:     false,
				Err:    fmt.Sprintf("Image generation timed out after %ds", int(timeout.Seconds())),
			}
		}
		if subjectLockOK(task.Prompt, task.SubjectLock) {
			return r
		}
		if attempts > st.Runtime.MaxReplans {
			return r
		}
		task.Prompt = task.Prompt + "\n\n" +
			fmt.Sprintf("CRITICAL CONSTRAINT: Keep the main subject as '%s'. ", task.SubjectLock) +
			"Do not replace it with any other animal or object."
	}
}

// runLaneGuarded runs a lane and converts panics into failed results so
// one broken lane cannot take down the run.
func (e *Engine) runLaneGuarded(ctx context.Context, lane Lane, t Task, st *RunState, em *Emitter) (r ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("lane panic", "task_id", t.ID, "kind", t.Kind, "panic", rec)
			r = ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: fmt.Sprintf("lane panic: %v", rec)}
		}
	}()
	return lane.Run(ctx, t, st, em)
}

// runLaneWithTimeout enforces a hard wall clock on a lane even when the
// lane ignores context cancellation.
func (e *Engine) runLaneWithTimeout(ctx context.Context, lane Lane, t Task, st *RunState, em *Emitter, timeout time.Duration) (ToolResult, bool) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ch := make(chan ToolResult, 1)
	go func() {
		ch <- e.runLaneGuarded(tctx, lane, t, st, em)
	}()
	select {
	case r := <-ch:
		return r, false
	case <-tctx.Done():
		if ctx.Err() != nil {
			return ToolResult{TaskID: t.ID, Kind: t.Kind, OK: false, Err: ctx.Err().Error()}, false
		}
		return ToolResult{}, true
	}
}

// recordArtifacts persists successful media outputs into artifact memory
// under the executor lock.
func (e *Engine) recordArtifacts(t Task, r ToolResult, st *RunState, exec *laneExec) {
	if !r.OK {
		return
	}
	exec.mu.Lock()
	defer exec.mu.Unlock()
	data := r.Data
	str := func(key string) string {
		if data == nil {
			return ""
		}
		if v, ok := data[key].(string); ok {
			return v
		}
		return ""
	}
	switch t.Kind {
	case TaskImageGen:
		prompt := strings.TrimSpace(str("prompt"))
		if prompt == "" {
			prompt = strings.TrimSpace(t.Prompt)
		}
		if prompt != "" {
			st.LastImagePrompt = prompt
		}
		parentID := ""
		if st.Linked != nil && st.Linked.Kind == "image" {
			parentID = st.Linked.ID
		}
		st.Artifacts.RecordImage(ImageArtifact{
			ID:     str("filename"),
			URL:    str("url"),
			Prompt: prompt,
		}, parentID)
	case TaskTTS:
		st.Artifacts.RecordAudio(AudioArtifact{
			ID:   str("filename"),
			URL:  str("url"),
			Text: strings.TrimSpace(t.Text),
		})
	case TaskDoc:
		st.Artifacts.RecordDoc(DocArtifact{
			ID:   str("filename"),
			URL:  str("url"),
			Text: str("text"),
		})
	}
}

// maybeSupportSummary attaches a short supportive summary to successful
// knowledge lane outputs so the UI can show lane-level context.
func (e *Engine) maybeSupportSummary(ctx context.Context, t Task, r *ToolResult, st *RunState) {
	if !r.OK || !t.IsKnowledge() || t.Kind == TaskKBRAG {
		return
	}
	provider, model := e.cfg.Models.Support.resolve(st.Provider, st.Model)
	switch t.Kind {
	case TaskWeb:
		if e.cfg.Models.WebSupportModel != "" {
			model = e.cfg.Models.WebSupportModel
		}
	case TaskRAG:
		if e.cfg.Models.RAGSupportModel != "" {
			model = e.cfg.Models.RAGSupportModel
		}
	case TaskVision:
		if e.cfg.Models.VisionSupportModel != "" {
			model = e.cfg.Models.VisionSupportModel
		}
	}
	digest := toolResultDigest(*r)
	if digest == "" {
		return
	}
	prompt := "Summarize the retrieved context for the user in at most 6 short lines.\n" +
		"Plain markdown, no headings, no links you were not given.\n\n" +
		"Context:\n" + digest
	resp, err := e.chatWithFallback(ctx, provider, model, ChatRequest{
		Messages:         []ChatMessage{UserMessage(prompt)},
		GenerationParams: &GenerationParams{Temperature: floatPtr(0.1)},
	})
	if err != nil {
		return
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return
	}
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	r.Data["support_summary"] = text
	r.Data["mime"] = "text/markdown"
}

// checkerNote records the turn's advisory completion summary.
func (e *Engine) checkerNote(st *RunState) {
	requested := make([]string, len(st.Tasks))
	completed := 0
	failed := 0
	for i, t := range st.Tasks {
		requested[i] = t.Kind
		if out, ok := st.Outputs[t.ID]; ok {
			if out.OK {
				completed++
			} else {
				failed++
			}
		}
	}
	st.PushNote("checker", "Turn checked", map[string]any{
		"requested_tasks": requested,
		"completed_tasks": completed,
		"failed_tasks":    failed,
		"has_main_text":   st.FinalText != "",
	})
}
