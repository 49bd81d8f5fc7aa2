package skills

import (
	"context"
	"testing"
)

func TestManagerDiscoverPopulatesEligible(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "review-diff", validSkill)

	m := NewManager(dir, nil)
	if err := m.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if _, ok := m.GetSkill("review-diff"); !ok {
		t.Fatal("expected review-diff to be discovered")
	}
	if len(m.ListEligible()) != 1 {
		t.Fatalf("ListEligible() = %+v, want one skill", m.ListEligible())
	}
}

func TestManagerDiscoverExcludesIneligibleFromEligibleList(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "linux-only", "---\nname: linux-only\ndescription: x\nmetadata:\n  os: [\"plan9\"]\n---\nbody\n")

	m := NewManager(dir, nil)
	if err := m.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if _, ok := m.GetSkill("linux-only"); !ok {
		t.Fatal("expected skill to still be discovered even if ineligible")
	}
	if len(m.ListEligible()) != 0 {
		t.Fatalf("ListEligible() = %+v, want none", m.ListEligible())
	}
	if reason := m.IneligibleReasons()["linux-only"]; reason == "" {
		t.Error("expected a non-empty ineligibility reason")
	}
}

func TestManagerRegisterIntoInvokesCallbackPerEligibleSkill(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "review-diff", validSkill)

	m := NewManager(dir, nil)
	if err := m.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	registered := map[string]string{}
	m.RegisterInto(func(name, template string) {
		registered[name] = template
	})

	if registered["review-diff"] == "" {
		t.Fatal("expected review-diff to be registered with a non-empty template")
	}
}

func TestManagerCloseWithoutWatchIsNoop(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
