package agent

import (
	"testing"
)

type recordingConfirmer struct {
	answer  bool
	prompts []string
}

func (c *recordingConfirmer) Confirm(prompt string) (bool, error) {
	c.prompts = append(c.prompts, prompt)
	return c.answer, nil
}

func TestGateNonDestructiveToolsSkipConfirmation(t *testing.T) {
	confirmer := &recordingConfirmer{answer: false}
	gate, err := NewConfirmationGate(false, nil, confirmer)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"read_file", "list_dir", "grep_text", "glob_files", "web_fetch"} {
		approved, err := gate.Approve(name, map[string]any{"path": "x"})
		if err != nil || !approved {
			t.Errorf("Approve(%s) = %v, %v; want auto-approval", name, approved, err)
		}
	}
	if len(confirmer.prompts) != 0 {
		t.Errorf("confirmer consulted for non-destructive tools: %v", confirmer.prompts)
	}
}

func TestGateYoloApprovesDestructiveTools(t *testing.T) {
	gate, err := NewConfirmationGate(true, nil, &recordingConfirmer{answer: false})
	if err != nil {
		t.Fatal(err)
	}
	for name := range map[string]bool{"bash": true, "remove": true, "write_file": true, "edit_file": true} {
		approved, err := gate.Approve(name, map[string]any{"command": "rm -rf build"})
		if err != nil || !approved {
			t.Errorf("Approve(%s) in yolo = %v, %v", name, approved, err)
		}
	}
}

func TestGateBashAutoAllowFirstMatch(t *testing.T) {
	confirmer := &recordingConfirmer{answer: false}
	gate, err := NewConfirmationGate(false, []string{"^git status", "^ls "}, confirmer)
	if err != nil {
		t.Fatal(err)
	}

	approved, err := gate.Approve("bash", map[string]any{"command": "git status --short"})
	if err != nil || !approved {
		t.Errorf("auto_allow match: approved=%v err=%v", approved, err)
	}
	if len(confirmer.prompts) != 0 {
		t.Errorf("confirmer consulted despite auto_allow match")
	}

	approved, err = gate.Approve("bash", map[string]any{"command": "rm -rf /"})
	if err != nil || approved {
		t.Errorf("non-matching command approved without confirmation")
	}
	if len(confirmer.prompts) != 1 {
		t.Fatalf("confirmer prompts = %v", confirmer.prompts)
	}
	if confirmer.prompts[0] != "Run `rm -rf /`?" {
		t.Errorf("prompt = %q", confirmer.prompts[0])
	}
}

func TestGateAutoAllowOnlyAppliesToBash(t *testing.T) {
	confirmer := &recordingConfirmer{answer: false}
	gate, err := NewConfirmationGate(false, []string{".*"}, confirmer)
	if err != nil {
		t.Fatal(err)
	}
	approved, err := gate.Approve("remove", map[string]any{"path": "src"})
	if err != nil || approved {
		t.Errorf("auto_allow leaked to remove: approved=%v err=%v", approved, err)
	}
}

func TestGateNilConfirmerDeniesDestructive(t *testing.T) {
	gate, err := NewConfirmationGate(false, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	approved, err := gate.Approve("write_file", map[string]any{"path": "a.txt"})
	if err != nil || approved {
		t.Errorf("Approve with nil confirmer = %v, %v; want denial", approved, err)
	}
}

func TestGateRejectsInvalidAutoAllowPattern(t *testing.T) {
	if _, err := NewConfirmationGate(false, []string{"("}, nil); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
