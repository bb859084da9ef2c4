package kaybee

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()

	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Write(ctx, "My Note", "---\ntype: concept\ntags: [a, b]\n---\nbody text\n")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	text, err := s.Read(ctx, "my-note", 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if want := "type: concept"; !strings.Contains(text, want) {
		t.Fatalf("Read text missing %q: %q", want, text)
	}

	if !strings.Contains(text, "body text") {
		t.Fatalf("Read text missing body: %q", text)
	}
}

func TestWriteNormalizesName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "  Hello World  ", "content"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	exists, err := s.Exists(ctx, "hello-world")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if !exists {
		t.Fatalf("expected hello-world to exist")
	}
}

func TestExistsFalseForMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	exists, err := s.Exists(ctx, "nope")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if exists {
		t.Fatalf("expected nope to not exist")
	}
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Read(ctx, "missing", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTouchNoOpWhenExistsAndEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "n", "original body"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := s.Touch(ctx, "n", ""); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	text, err := s.Read(ctx, "n", 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if text != "original body" {
		t.Fatalf("Touch with empty content on existing node mutated it: %q", text)
	}
}

func TestTouchCreatesWhenMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Touch(ctx, "new-node", "hello"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	text, err := s.Read(ctx, "new-node", 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if text != "hello" {
		t.Fatalf("text = %q", text)
	}
}

func TestRmDeletesNodeAndNullsBacklinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "target", "target body"); err != nil {
		t.Fatalf("Write target: %v", err)
	}

	if err := s.Write(ctx, "source", "links to [[target]]"); err != nil {
		t.Fatalf("Write source: %v", err)
	}

	if err := s.Rm(ctx, "target"); err != nil {
		t.Fatalf("Rm: %v", err)
	}

	exists, err := s.Exists(ctx, "target")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if exists {
		t.Fatalf("target should be removed")
	}

	backlinks, err := s.Backlinks(ctx, "target")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}

	if len(backlinks) != 0 {
		t.Fatalf("backlinks to removed node should be gone, got %v", backlinks)
	}
}

func TestRmMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Rm(ctx, "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMvRewiresLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "old-name", "content"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := s.Write(ctx, "linker", "see [[old-name]]"); err != nil {
		t.Fatalf("Write linker: %v", err)
	}

	if err := s.Mv(ctx, "old-name", "new-name"); err != nil {
		t.Fatalf("Mv: %v", err)
	}

	exists, _ := s.Exists(ctx, "old-name")
	if exists {
		t.Fatalf("old-name should no longer exist")
	}

	exists, err := s.Exists(ctx, "new-name")
	if err != nil || !exists {
		t.Fatalf("new-name should exist, err=%v", err)
	}

	backlinks, err := s.Backlinks(ctx, "new-name")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}

	if len(backlinks) != 1 || backlinks[0] != "linker" {
		t.Fatalf("backlinks = %v, want [linker]", backlinks)
	}
}

func TestMvToExistingNameFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "a", "a"); err != nil {
		t.Fatalf("Write a: %v", err)
	}

	if err := s.Write(ctx, "b", "b"); err != nil {
		t.Fatalf("Write b: %v", err)
	}

	err := s.Mv(ctx, "a", "b")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCpIsIndependentCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "src", "---\ntags: [x]\n---\nbody\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := s.Cp(ctx, "src", "dst"); err != nil {
		t.Fatalf("Cp: %v", err)
	}

	if err := s.Write(ctx, "src", "---\ntags: [y]\n---\nchanged\n"); err != nil {
		t.Fatalf("Write src again: %v", err)
	}

	dstText, err := s.Read(ctx, "dst", 0)
	if err != nil {
		t.Fatalf("Read dst: %v", err)
	}

	if !strings.Contains(dstText, "body") || strings.Contains(dstText, "changed") {
		t.Fatalf("dst should be unaffected by later src writes: %q", dstText)
	}
}

func TestCpToSelfFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "a", "a"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	err := s.Cp(ctx, "a", "a")
	if !errors.Is(err, ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument, got %v", err)
	}
}

func TestLnCreatesSymlinkNode(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "real", "content"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := s.Ln(ctx, "real", "alias"); err != nil {
		t.Fatalf("Ln: %v", err)
	}

	backlinks, err := s.Backlinks(ctx, "real")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}

	if len(backlinks) != 1 || backlinks[0] != "alias" {
		t.Fatalf("backlinks = %v, want [alias]", backlinks)
	}
}

func TestLnAllowsDanglingSource(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Ln(ctx, "does-not-exist", "alias"); err != nil {
		t.Fatalf("Ln with dangling source should succeed: %v", err)
	}
}

func TestLnToExistingDestFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "dst", "x"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	err := s.Ln(ctx, "src", "dst")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestTypeChangeMigratesAcrossBackendTables(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "n", "---\ntype: draft\n---\nbody\n"); err != nil {
		t.Fatalf("Write as draft: %v", err)
	}

	if err := s.Write(ctx, "n", "---\ntype: published\n---\nbody\n"); err != nil {
		t.Fatalf("Write as published: %v", err)
	}

	text, err := s.Read(ctx, "n", 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if !strings.Contains(text, "type: published") {
		t.Fatalf("expected published type, got %q", text)
	}
}

func TestModeMismatchOnReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.StorageMode = ModeMulti

	s1, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open multi: %v", err)
	}
	s1.Close()

	cfg.StorageMode = ModeSingle

	_, err = Open(ctx, cfg)
	if !errors.Is(err, ErrModeMismatch) {
		t.Fatalf("expected ErrModeMismatch, got %v", err)
	}
}

func TestProgressiveReadFollowsLinksBounded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "c", "leaf"); err != nil {
		t.Fatalf("Write c: %v", err)
	}

	if err := s.Write(ctx, "b", "links to [[c]]"); err != nil {
		t.Fatalf("Write b: %v", err)
	}

	if err := s.Write(ctx, "a", "links to [[b]]"); err != nil {
		t.Fatalf("Write a: %v", err)
	}

	shallow, err := s.Read(ctx, "a", 1)
	if err != nil {
		t.Fatalf("Read depth 1: %v", err)
	}

	if !strings.Contains(shallow, "links to [[b]]") || !strings.Contains(shallow, "links to [[c]]") {
		t.Fatalf("depth 1 should include b but not recurse into c's own links body: %q", shallow)
	}

	if strings.Contains(shallow, "leaf") {
		t.Fatalf("depth 1 should not reach c's content: %q", shallow)
	}

	deep, err := s.Read(ctx, "a", 2)
	if err != nil {
		t.Fatalf("Read depth 2: %v", err)
	}

	if !strings.Contains(deep, "leaf") {
		t.Fatalf("depth 2 should reach c: %q", deep)
	}
}

func TestProgressiveReadHandlesCycles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "a", "links to [[b]]"); err != nil {
		t.Fatalf("Write a: %v", err)
	}

	if err := s.Write(ctx, "b", "links to [[a]]"); err != nil {
		t.Fatalf("Write b: %v", err)
	}

	text, err := s.Read(ctx, "a", 5)
	if err != nil {
		t.Fatalf("Read with cycle: %v", err)
	}

	if !strings.Contains(text, "links to [[b]]") {
		t.Fatalf("expected to include b: %q", text)
	}
}

func TestGraphOnlyIncludesResolvedEdges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "a", "see [[b]] and [[nonexistent]]"); err != nil {
		t.Fatalf("Write a: %v", err)
	}

	if err := s.Write(ctx, "b", "leaf"); err != nil {
		t.Fatalf("Write b: %v", err)
	}

	graph, err := s.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}

	targets := graph["a"]

	if len(targets) != 1 || targets[0] != "b" {
		t.Fatalf("graph[a] = %v, want [b]", targets)
	}
}

func TestDBFilePlacedUnderDataDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.DataDir = dir

	s, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	// sanity: dbFileName constant matches what Open actually created
	wantPath := filepath.Join(dir, dbFileName)
	if _, err := os.Stat(wantPath); err != nil {
		t.Fatalf("expected db file at %s: %v", wantPath, err)
	}
}
