// Package omniagent is a multimodal assistant engine for Go.
//
// It runs each user turn through a planning graph: a fast intent pass (with
// an LLM fallback) produces a RunPlan, the tool router expands plan flags
// into concrete lane tasks, lanes execute in knowledge and media cohorts,
// and a synthesizer streams the final markdown answer over an event channel.
//
// # Quick Start
//
// Build an engine from a provider resolver and a lane registry:
//
//	resolver := resolve.Resolver(cfg.APIKey)
//	lanes := omniagent.NewLaneRegistry()
//	lanes.Register(web.New(tavilyKey))
//	lanes.Register(knowledge.NewKBLane(kbEngine))
//
//	engine := omniagent.NewEngine(resolver, lanes,
//		omniagent.WithCandidates(resolve.Candidates),
//	)
//
//	em := omniagent.NewEmitter(runID, traceID)
//	go func() {
//		out := engine.Run(ctx, omniagent.RunRequest{SessionID: sid, Text: text}, em)
//		em.Close()
//		_ = out
//	}()
//	for ev := range em.Events() {
//		omniagent.WriteSSEEvent(w, ev)
//	}
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Provider] — LLM backend (chat and token streaming)
//   - [EmbeddingProvider] — text-to-vector embedding
//   - [Lane] — tool lane executing one Task kind (web, rag, kb_rag, vision,
//     image_gen, tts, doc)
//   - [VectorStore] — chunk persistence with vector search
//   - [SessionIndex] — per-session index over uploaded attachments
//
// Subpackages supply the implementations: provider/resolve and
// provider/openaicompat for LLM access, store/sqlite and store/postgres for
// persistence, kb for the shared knowledge base, tools/* for the lanes,
// internal/app for the HTTP surface, and observer for OTel instrumentation.
package omniagent
