package main

import "testing"

func TestFlagsValidate_AgentMutualExclusion(t *testing.T) {
	cmd := buildRootCmd()
	cmd.SetArgs([]string{"--agent", "you are helpful", "--agent-file", "/tmp/prompt.txt", "--work-dir", "/tmp"})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected an error for --agent + --agent-file")
	}
	if got := err.Error(); got != "soul: --agent and --agent-file are mutually exclusive" {
		t.Fatalf("unexpected error: %s", got)
	}
}

func TestFlagsValidate_ContinueSessionMutualExclusion(t *testing.T) {
	cmd := buildRootCmd()
	cmd.SetArgs([]string{"--continue", "--session", "abc123"})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected an error for --continue + --session")
	}
	if got := err.Error(); got != "soul: --continue and --session are mutually exclusive" {
		t.Fatalf("unexpected error: %s", got)
	}
}

func TestFlagsValidate_ThinkingMutualExclusion(t *testing.T) {
	f := &flags{thinking: true, noThinking: true}
	cmd := buildRootCmd()
	if err := f.validate(cmd); err == nil {
		t.Fatal("expected an error for --thinking + --no-thinking")
	}
}

func TestFlagsValidate_NoConflict(t *testing.T) {
	f := &flags{}
	cmd := buildRootCmd()
	if err := f.validate(cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChanged_UnknownFlagIsFalse(t *testing.T) {
	cmd := buildRootCmd()
	if changed(cmd, "does-not-exist") {
		t.Fatal("expected changed() to report false for an unregistered flag")
	}
}
