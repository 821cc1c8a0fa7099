package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("service unavailable")

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)

	for range 3 {
		_ = b.Execute(func() error { return errTest })
	}

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Execute(func() error { return errTest })
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(2 * time.Second)

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("expected probe to run, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called in half-open")
	}

	// Circuit closed again; further calls flow.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected closed circuit, got %v", err)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Execute(func() error { return errTest })
	}
	now = now.Add(2 * time.Second)

	_ = b.Execute(func() error { return errTest })

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after reopen, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return errTest })

	// Only two consecutive failures since the success; still closed.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected closed circuit, got %v", err)
	}
}
