package storage

import (
	"context"
	"testing"
)

func TestInterrupt_FlagsCurrentScope(t *testing.T) {
	s := openTestStore(t)
	h := s.NewInterruptHandle()

	scope, ctx := s.BeginInterruptScope(context.Background())
	defer scope.End()
	if err := scope.Err(); err != nil {
		t.Fatalf("fresh scope reports interrupt: %v", err)
	}

	h.Interrupt()
	if err := scope.Err(); !IsInterrupted(err) {
		t.Fatalf("scope.Err() = %v, want INTERRUPTED", err)
	}
	if ctx.Err() == nil {
		t.Fatal("interrupt did not cancel the scope's statement context")
	}
}

func TestInterrupt_AbortsStatementsOnScopeContext(t *testing.T) {
	s := openTestStore(t)
	h := s.NewInterruptHandle()

	scope, ctx := s.BeginInterruptScope(context.Background())
	defer scope.End()
	h.Interrupt()

	// A statement issued on the scope's context must fail, and the failure
	// must surface as the interruption error, not a bare cancellation.
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	if err == nil {
		t.Fatal("statement on interrupted scope context succeeded")
	}
	if err = scope.resolve(err); !IsInterrupted(err) {
		t.Fatalf("resolve() = %v, want INTERRUPTED", err)
	}
}

func TestInterrupt_CallerCancellationIsNotInterruption(t *testing.T) {
	s := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, map[string]any{"title": "x"})
	if err == nil {
		t.Fatal("Create() with cancelled caller context succeeded")
	}
	if IsInterrupted(err) {
		t.Errorf("caller cancellation misreported as interruption: %v", err)
	}
}

func TestInterrupt_DoesNotLeakIntoLaterScopes(t *testing.T) {
	s := openTestStore(t)
	h := s.NewInterruptHandle()

	scope, _ := s.BeginInterruptScope(context.Background())
	h.Interrupt()
	scope.End()

	// A later, unrelated operation must not observe the stale interrupt.
	next, ctx := s.BeginInterruptScope(context.Background())
	defer next.End()
	if err := next.Err(); err != nil {
		t.Fatalf("stale interrupt leaked into new scope: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("stale interrupt cancelled a later scope's context")
	}

	if _, err := s.Create(context.Background(), map[string]any{"title": "after"}); err != nil {
		t.Errorf("operation after stale interrupt failed: %v", err)
	}
}

func TestInterrupt_AfterEndDoesNotAbortLaterOperations(t *testing.T) {
	s := openTestStore(t)
	h := s.NewInterruptHandle()

	scope, _ := s.BeginInterruptScope(context.Background())
	scope.End()
	h.Interrupt()

	// The interrupt was aimed at no live operation; the next one proceeds.
	if _, err := s.Create(context.Background(), map[string]any{"title": "x"}); err != nil {
		t.Errorf("Create() after post-End interrupt failed: %v", err)
	}
}

func TestInterrupt_BeforeAnyScopeIsHarmless(t *testing.T) {
	s := openTestStore(t)
	s.NewInterruptHandle().Interrupt()

	if _, err := s.Create(context.Background(), map[string]any{"title": "x"}); err != nil {
		t.Errorf("Create() after idle interrupt failed: %v", err)
	}
}
