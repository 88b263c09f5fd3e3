package agent

import (
	"context"
	"strings"
	"testing"

	"pico/internal/llm/mockclient"
	"pico/internal/prompts"
	"pico/internal/state"
	"pico/internal/tooling"
)

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeCode, false},
		{"code", ModeCode, false},
		{"plan", ModePlan, false},
		{"  Plan ", ModePlan, false},
		{"chaos", ModeCode, true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseMode(%q) err = %v", tc.in, err)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDecoratePrefixesOnlyInPlanMode(t *testing.T) {
	ctrl := NewModeController(ModeCode)
	if got := ctrl.Decorate("fix the bug"); got != "fix the bug" {
		t.Errorf("code mode decorated input: %q", got)
	}

	ctrl.Set(ModePlan)
	got := ctrl.Decorate("fix the bug")
	if !strings.HasPrefix(got, prompts.PlanPrefix) {
		t.Errorf("plan mode missing prefix: %q", got)
	}
	if !strings.HasSuffix(got, "fix the bug") {
		t.Errorf("plan mode lost input: %q", got)
	}

	ctrl.Set(ModeCode)
	if got := ctrl.Decorate("go ahead"); got != "go ahead" {
		t.Errorf("switching back left decoration on: %q", got)
	}
}

func TestModeSwitchPreservesHistory(t *testing.T) {
	mgr := newTestManager(t)
	script := mockclient.NewScripted().
		Enqueue(state.Message{Role: "assistant", Content: "code answer"}).
		Enqueue(state.Message{Role: "assistant", Content: "here is a plan"}).
		Enqueue(state.Message{Role: "assistant", Content: "implemented"})

	loop := NewTurnLoop(script, mgr, tooling.NewRegistry(), yoloGate(t), "test-model", 0, 10, Hooks{})
	ctrl := NewModeController(ModeCode)
	ctx := context.Background()

	run := func(input string) {
		t.Helper()
		if _, _, err := loop.Run(ctx, ctrl.Decorate(input)); err != nil {
			t.Fatalf("Run(%q): %v", input, err)
		}
	}

	run("fix the bug")
	before := mgr.Current().Messages()
	if len(before) != 2 {
		t.Fatalf("messages after first turn = %d, want 2", len(before))
	}

	ctrl.Set(ModePlan)
	run("how would you refactor this")

	ctrl.Set(ModeCode)
	run("do it")

	after := mgr.Current().Messages()
	if len(after) != 6 {
		t.Fatalf("messages = %d, want prior 2 plus exactly 4 new", len(after))
	}
	for i, msg := range before {
		if after[i].Role != msg.Role || after[i].Content != msg.Content {
			t.Errorf("message %d changed across mode switches: %+v vs %+v", i, after[i], msg)
		}
	}
	if !strings.HasPrefix(after[2].Content, prompts.PlanPrefix) {
		t.Errorf("plan turn not decorated: %q", after[2].Content)
	}
	if after[3].Content != "here is a plan" {
		t.Errorf("plan answer out of order: %q", after[3].Content)
	}
	if after[4].Content != "do it" || strings.Contains(after[4].Content, prompts.PlanPrefix) {
		t.Errorf("code turn after plan = %q, want undecorated input", after[4].Content)
	}
	if after[5].Content != "implemented" {
		t.Errorf("final answer out of order: %q", after[5].Content)
	}
}

func TestModeStringRoundTrip(t *testing.T) {
	for _, m := range []Mode{ModeCode, ModePlan} {
		parsed, err := ParseMode(m.String())
		if err != nil || parsed != m {
			t.Errorf("round trip %v -> %q -> %v, %v", m, m.String(), parsed, err)
		}
	}
}
