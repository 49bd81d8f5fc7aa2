package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, SkillFilename), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestDiscoverFindsValidSkills(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "review-diff", validSkill)

	found, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 1 || found[0].Name != "review-diff" {
		t.Fatalf("Discover() = %+v", found)
	}
}

func TestDiscoverSkipsDirectoriesWithoutSkillFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "not-a-skill"), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	found, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("Discover() = %+v, want empty", found)
	}
}

func TestDiscoverSkipsUnparsableSkill(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "broken", "not frontmatter at all")

	found, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("Discover() = %+v, want empty", found)
	}
}

func TestDiscoverMissingDirectoryReturnsNoError(t *testing.T) {
	found, err := Discover(context.Background(), filepath.Join(t.TempDir(), "nonexistent"), nil)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if found != nil {
		t.Fatalf("Discover() = %+v, want nil", found)
	}
}

func TestDiscoverEmptyDirArgReturnsNoSkills(t *testing.T) {
	found, err := Discover(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if found != nil {
		t.Fatalf("Discover() = %+v, want nil", found)
	}
}
