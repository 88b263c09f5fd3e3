package state

import (
	"errors"
	"path/filepath"
	"testing"
)

func openManager(t *testing.T, path string) *Manager {
	t.Helper()
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestManagerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	mgr := openManager(t, path)
	mgr.SetSystemPrompt("system prompt text")
	conv, err := mgr.EnsureSession("work")
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	conv.Append(Message{Role: "user", Content: "hello"})
	conv.Append(Message{Role: "assistant", Content: "hi there"})
	if err := mgr.Save(conv); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openManager(t, path)
	loaded, err := reopened.Use("work")
	if err != nil {
		t.Fatalf("Use after reopen: %v", err)
	}
	msgs := loaded.Messages()
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "system prompt text" {
		t.Errorf("system message = %+v", msgs[0])
	}
	if msgs[2].Content != "hi there" {
		t.Errorf("assistant message = %+v", msgs[2])
	}
}

func TestManagerSessionLifecycle(t *testing.T) {
	mgr := openManager(t, filepath.Join(t.TempDir(), "sessions.db"))

	if _, err := mgr.NewSession("alpha"); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := mgr.NewSession("alpha"); !errors.Is(err, ErrSessionExists) {
		t.Errorf("duplicate NewSession err = %v", err)
	}
	if _, err := mgr.Use("missing"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Use missing err = %v", err)
	}

	if _, err := mgr.EnsureSession("beta"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	keys := mgr.ListKeys()
	if len(keys) != 2 || keys[0] != "alpha" || keys[1] != "beta" {
		t.Errorf("ListKeys = %v", keys)
	}

	if got := mgr.Current().Key(); got != "beta" {
		t.Errorf("Current = %q, want beta", got)
	}

	if err := mgr.Delete("beta"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mgr.Delete("beta"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("double Delete err = %v", err)
	}
	if got := mgr.Current().Key(); got != "default" {
		t.Errorf("Current after deleting active = %q, want default", got)
	}
}

func TestManagerClearCurrentKeepsSystemPrompt(t *testing.T) {
	mgr := openManager(t, filepath.Join(t.TempDir(), "sessions.db"))
	mgr.SetSystemPrompt("be brief")

	conv, err := mgr.EnsureSession("scratch")
	if err != nil {
		t.Fatal(err)
	}
	conv.Append(Message{Role: "user", Content: "long conversation"})
	if err := mgr.Save(conv); err != nil {
		t.Fatal(err)
	}

	if err := mgr.ClearCurrent(); err != nil {
		t.Fatalf("ClearCurrent: %v", err)
	}
	msgs := mgr.Current().Messages()
	if len(msgs) != 1 || msgs[0].Role != "system" || msgs[0].Content != "be brief" {
		t.Errorf("messages after clear = %+v", msgs)
	}
}

func TestSanitizeKey(t *testing.T) {
	cases := map[string]string{
		"work":            "work",
		"  my session  ":  "my-session",
		"feat/login#2":    "feat-login-2",
		"UPPER_lower-123": "UPPER_lower-123",
	}
	for in, want := range cases {
		if got := SanitizeKey(in); got != want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}
