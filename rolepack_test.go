package omniagent

import (
	"context"
	"testing"
)

func TestRolePackMediaOnlyFastPath(t *testing.T) {
	// Resolver is nil: the media-only path must not reach the LLM.
	e := testEngine()
	st := &RunState{
		UserText: "generate an image of a cat",
		Tasks:    []Task{{ID: "1", Kind: TaskImageGen, Prompt: "a cat"}},
	}
	if err := e.rolePackNode(context.Background(), st, nil); err != nil {
		t.Fatal(err)
	}
	if st.Contract.WriterPlan == "" || st.Contract.CriticChecks == "" {
		t.Errorf("contract not populated: %+v", st.Contract)
	}
}

func TestRolePackEmptyUserText(t *testing.T) {
	e := testEngine()
	st := &RunState{UserText: "   "}
	if err := e.rolePackNode(context.Background(), st, nil); err != nil {
		t.Fatal(err)
	}
	if st.Contract.WriterPlan != "" {
		t.Errorf("contract set for empty turn: %+v", st.Contract)
	}
}

func TestReflectAllToolsFailedRequestsReplan(t *testing.T) {
	e := testEngine()
	st := &RunState{
		Tasks: []Task{{ID: "1", Kind: TaskKBRAG, Query: "q"}},
		Outputs: map[string]ToolResult{
			"1": {TaskID: "1", Kind: TaskKBRAG, OK: false, Err: "timeout"},
		},
	}
	st.Runtime.MaxIterations = 2

	e.reflectNode(st)
	if !st.Runtime.ReplanRequested {
		t.Fatal("replan not requested")
	}
	if st.Runtime.ReplanReason == "" {
		t.Error("missing replan reason")
	}
	if !st.Plan.Text.Enabled || st.Plan.Mode != ModeTextPlusTools {
		t.Errorf("plan not widened: %+v", st.Plan)
	}
	// KB failure falls back to web on the retry.
	if !st.Plan.Flag(FlagNeedsWeb) {
		t.Error("web fallback flag not set")
	}
}

func TestReflectPartialSuccessNoReplan(t *testing.T) {
	e := testEngine()
	st := &RunState{
		Tasks: []Task{
			{ID: "1", Kind: TaskWeb, Query: "q"},
			{ID: "2", Kind: TaskRAG, Query: "q2"},
		},
		Outputs: map[string]ToolResult{
			"1": {TaskID: "1", Kind: TaskWeb, OK: true},
			"2": {TaskID: "2", Kind: TaskRAG, OK: false, Err: "no docs"},
		},
	}
	st.Runtime.MaxIterations = 2

	e.reflectNode(st)
	if st.Runtime.ReplanRequested {
		t.Error("replan requested despite a successful lane")
	}
}

func TestReflectIterationBudgetExhausted(t *testing.T) {
	e := testEngine()
	st := &RunState{
		Tasks: []Task{{ID: "1", Kind: TaskWeb, Query: "q"}},
		Outputs: map[string]ToolResult{
			"1": {TaskID: "1", Kind: TaskWeb, OK: false, Err: "unreachable"},
		},
	}
	st.Runtime.MaxIterations = 1

	e.reflectNode(st)
	if st.Runtime.ReplanRequested {
		t.Error("replan requested past the iteration budget")
	}
	if st.Runtime.Iteration != 1 {
		t.Errorf("iteration = %d", st.Runtime.Iteration)
	}
}
