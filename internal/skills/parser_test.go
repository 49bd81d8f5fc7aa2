package skills

import (
	"os"
	"path/filepath"
	"testing"
)

const validSkill = `---
name: review-diff
description: Reviews a diff for correctness and style
homepage: https://example.com/skills/review-diff
metadata:
  emoji: "🔍"
---

Review this diff for correctness and style:
`

func TestParseSkillValidFrontmatter(t *testing.T) {
	entry, err := ParseSkill([]byte(validSkill), "/skills/review-diff")
	if err != nil {
		t.Fatalf("ParseSkill() error = %v", err)
	}
	if entry.Name != "review-diff" {
		t.Errorf("Name = %q, want review-diff", entry.Name)
	}
	if entry.Metadata == nil || entry.Metadata.Emoji != "🔍" {
		t.Errorf("Metadata.Emoji not parsed: %+v", entry.Metadata)
	}
	if entry.Content != "Review this diff for correctness and style:" {
		t.Errorf("Content = %q", entry.Content)
	}
}

func TestParseSkillMissingName(t *testing.T) {
	data := []byte("---\ndescription: no name here\n---\nbody\n")
	if _, err := ParseSkill(data, "/tmp"); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestParseSkillMissingDescription(t *testing.T) {
	data := []byte("---\nname: foo\n---\nbody\n")
	if _, err := ParseSkill(data, "/tmp"); err == nil {
		t.Fatal("expected error for missing description")
	}
}

func TestParseSkillMissingOpeningDelimiter(t *testing.T) {
	data := []byte("name: foo\ndescription: bar\n---\nbody\n")
	if _, err := ParseSkill(data, "/tmp"); err == nil {
		t.Fatal("expected error for missing opening delimiter")
	}
}

func TestParseSkillMissingClosingDelimiter(t *testing.T) {
	data := []byte("---\nname: foo\ndescription: bar\nbody without closing\n")
	if _, err := ParseSkill(data, "/tmp"); err == nil {
		t.Fatal("expected error for missing closing delimiter")
	}
}

func TestParseSkillFileReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SkillFilename)
	if err := os.WriteFile(path, []byte(validSkill), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	entry, err := ParseSkillFile(path)
	if err != nil {
		t.Fatalf("ParseSkillFile() error = %v", err)
	}
	if entry.Path != dir {
		t.Errorf("Path = %q, want %q", entry.Path, dir)
	}
}

func TestValidateSkillRejectsUppercaseName(t *testing.T) {
	entry := &SkillEntry{Name: "Review-Diff", Description: "x"}
	if err := ValidateSkill(entry); err == nil {
		t.Fatal("expected error for uppercase name")
	}
}

func TestValidateSkillRejectsSpaces(t *testing.T) {
	entry := &SkillEntry{Name: "review diff", Description: "x"}
	if err := ValidateSkill(entry); err == nil {
		t.Fatal("expected error for name with spaces")
	}
}

func TestValidateSkillAcceptsLowercaseHyphenated(t *testing.T) {
	entry := &SkillEntry{Name: "review-diff-2", Description: "x"}
	if err := ValidateSkill(entry); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExpandBaseDirSubstitutesPlaceholder(t *testing.T) {
	got := ExpandBaseDir("see {baseDir}/reference.md", "/skills/review-diff")
	want := "see /skills/review-diff/reference.md"
	if got != want {
		t.Errorf("ExpandBaseDir() = %q, want %q", got, want)
	}
}
