package server

import (
	"errors"
	"testing"
)

func ready(t *testing.T, height uint64) *LifecycleGuard {
	t.Helper()
	g := NewLifecycleGuard()
	if err := g.AcquireHandshake(); err != nil {
		t.Fatal(err)
	}
	g.CompleteHandshake(height)
	return g
}

func cycle(t *testing.T, g *LifecycleGuard, height uint64) {
	t.Helper()
	if err := g.AcquireExecute(height); err != nil {
		t.Fatalf("execute %d: %v", height, err)
	}
	g.CompleteExecute()
	if err := g.AcquireCommit(); err != nil {
		t.Fatalf("commit %d: %v", height, err)
	}
	g.CompleteCommit()
}

func TestLifecycleGuard_HappyPath(t *testing.T) {
	g := ready(t, 0)
	if !g.IsReady() {
		t.Fatal("expected Ready after handshake")
	}
	cycle(t, g, 1)
	cycle(t, g, 2)
	if !g.IsReady() {
		t.Fatal("expected Ready after second cycle")
	}
	if got := g.Committed(); got != 2 {
		t.Fatalf("committed = %d, want 2", got)
	}
}

func TestLifecycleGuard_ConcurrentBeforeHandshake(t *testing.T) {
	g := NewLifecycleGuard()
	if err := g.CheckConcurrent("Query"); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	g = ready(t, 0)
	if err := g.CheckConcurrent("Query"); err != nil {
		t.Fatal(err)
	}
}

func TestLifecycleGuard_DoubleHandshake(t *testing.T) {
	g := ready(t, 0)
	if err := g.AcquireHandshake(); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
}

func TestLifecycleGuard_CommitWithoutExecute(t *testing.T) {
	g := ready(t, 0)
	if err := g.AcquireCommit(); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	// The guard is still usable.
	cycle(t, g, 1)
}

func TestLifecycleGuard_ExecuteTwice(t *testing.T) {
	g := ready(t, 0)
	if err := g.AcquireExecute(1); err != nil {
		t.Fatal(err)
	}
	g.CompleteExecute()

	if err := g.AcquireExecute(2); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
}

func TestLifecycleGuard_HeightMustAdvance(t *testing.T) {
	g := ready(t, 10)
	for _, h := range []uint64{0, 9, 10} {
		if err := g.AcquireExecute(h); !errors.Is(err, ErrHeightRegression) {
			t.Fatalf("height %d: expected ErrHeightRegression, got %v", h, err)
		}
	}
	// Gaps are allowed.
	cycle(t, g, 15)
	if err := g.AcquireExecute(15); !errors.Is(err, ErrHeightRegression) {
		t.Fatalf("expected ErrHeightRegression, got %v", err)
	}
}

func TestLifecycleGuard_FailExecute(t *testing.T) {
	g := ready(t, 0)
	if err := g.AcquireExecute(1); err != nil {
		t.Fatal(err)
	}
	g.FailExecute()
	if !g.IsReady() {
		t.Fatal("expected Ready after failed execute")
	}
	if g.Committed() != 0 {
		t.Fatal("failed execute advanced the committed height")
	}
	cycle(t, g, 1)
}

func TestLifecycleGuard_FailHandshake(t *testing.T) {
	g := NewLifecycleGuard()
	if err := g.AcquireHandshake(); err != nil {
		t.Fatal(err)
	}
	g.FailHandshake()

	if err := g.AcquireHandshake(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	g.CompleteHandshake(0)
	if !g.IsReady() {
		t.Fatal("expected Ready after successful retry")
	}
}

func TestLifecycleGuard_Restore(t *testing.T) {
	g := ready(t, 0)
	if err := g.Restore(40); err != nil {
		t.Fatal(err)
	}
	if err := g.AcquireExecute(40); !errors.Is(err, ErrHeightRegression) {
		t.Fatalf("expected ErrHeightRegression, got %v", err)
	}
	cycle(t, g, 41)
}

func TestLifecycleGuard_State(t *testing.T) {
	g := NewLifecycleGuard()
	if g.State() != "Init" {
		t.Errorf("expected Init, got %s", g.State())
	}
	if err := g.AcquireHandshake(); err != nil {
		t.Fatal(err)
	}
	g.CompleteHandshake(0)
	if g.State() != "Ready" {
		t.Errorf("expected Ready, got %s", g.State())
	}
}
