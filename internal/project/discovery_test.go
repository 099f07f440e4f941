package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const uuidA = "00000000-0000-4000-8000-000000000001"
const uuidB = "00000000-0000-4000-8000-000000000002"

func writeMarker(t *testing.T, dir, id string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, MarkerFileName), []byte(id), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverSiblingProjects(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, filepath.Join(root, "p1"), uuidA)
	writeMarker(t, filepath.Join(root, "p2"), uuidB)

	projects, skipped, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("expected no skipped candidates, got %v", skipped)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d: %+v", len(projects), projects)
	}
}

func TestDiscoverIgnoresDepth2(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b")
	writeMarker(t, deep, uuidA)

	projects, _, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(projects) != 0 {
		t.Fatalf("expected 0 projects, got %d", len(projects))
	}
}

func TestDiscoverParentWinsOverNestedChild(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, uuidA)
	writeMarker(t, filepath.Join(root, "x"), uuidB)

	projects, skipped, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(projects) != 1 || projects[0].RootPath != root {
		t.Fatalf("expected only the parent to survive, got %+v", projects)
	}
	if len(skipped) != 1 || !errors.Is(skipped[0], ErrNested) {
		t.Fatalf("expected one nested error for the child, got %v", skipped)
	}
}

func TestDiscoverRejectsRootWithDeepMarker(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, uuidA)
	writeMarker(t, filepath.Join(root, "a", "b"), uuidB)

	projects, skipped, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(projects) != 0 {
		t.Fatalf("expected deep stray marker to reject the root, got %+v", projects)
	}
	if len(skipped) != 1 || !errors.Is(skipped[0], ErrNested) {
		t.Fatalf("expected one nested error, got %v", skipped)
	}
}

func TestDiscoverDuplicateID(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, filepath.Join(root, "p1"), uuidA)
	writeMarker(t, filepath.Join(root, "p2"), uuidA)

	_, _, err := Discover(root)
	var dupErr *DuplicateError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
}

func TestFindOwner(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, uuidA)
	file := filepath.Join(root, "sub", "deep", "a.py")
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	owner, ok, err := FindOwner(file, []string{root})
	if err != nil {
		t.Fatalf("FindOwner: %v", err)
	}
	if !ok || owner.ID != uuidA {
		t.Fatalf("expected owner %s, got ok=%v owner=%+v", uuidA, ok, owner)
	}
}

func TestFindOwnerNoProject(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.py")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, ok, err := FindOwner(file, []string{root})
	if err != nil {
		t.Fatalf("FindOwner: %v", err)
	}
	if ok {
		t.Fatal("expected no owner")
	}
}

func TestFindOwnerNestedChildIsError(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, uuidA)
	child := filepath.Join(root, "x")
	writeMarker(t, child, uuidB)
	file := filepath.Join(child, "a.py")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, ok, err := FindOwner(file, []string{root})
	if !errors.Is(err, ErrNested) {
		t.Fatalf("expected nested error, got ok=%v err=%v", ok, err)
	}
}
