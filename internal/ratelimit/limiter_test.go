package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/slab-engine/internal/domain"
)

func TestLocalLimiterAllowPerKind(t *testing.T) {
	t.Parallel()

	limiter, err := NewLocalLimiter(2)
	if err != nil {
		t.Fatalf("NewLocalLimiter() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "export")
		if err != nil || !allowed {
			t.Fatalf("Allow() #%d = %v, %v; want true", i+1, allowed, err)
		}
	}
	if allowed, _ := limiter.Allow(ctx, "EXPORT"); allowed {
		t.Fatal("third Allow() within the burst window should be rejected")
	}
	if allowed, _ := limiter.Allow(ctx, "allocation"); !allowed {
		t.Fatal("a different kind must have its own bucket")
	}
}

func TestLocalLimiterKindOverride(t *testing.T) {
	t.Parallel()

	limiter, err := NewLocalLimiter(0)
	if err != nil {
		t.Fatalf("NewLocalLimiter() error = %v", err)
	}
	if err := limiter.SetKindLimit(domain.OperationExport, 1); err != nil {
		t.Fatalf("SetKindLimit() error = %v", err)
	}

	ctx := context.Background()
	if allowed, _ := limiter.Allow(ctx, "export"); !allowed {
		t.Fatal("first export should be allowed")
	}
	if allowed, _ := limiter.Allow(ctx, "export"); allowed {
		t.Fatal("second export should be rejected by the kind limit")
	}
	for i := 0; i < 10; i++ {
		if allowed, _ := limiter.Allow(ctx, "bulk_edit"); !allowed {
			t.Fatalf("bulk_edit #%d rejected, want unlimited without an override", i+1)
		}
	}

	if err := limiter.SetKindLimit(domain.OperationKind("MERGE"), 1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("SetKindLimit(MERGE) error = %v, want ErrValidation", err)
	}
	if err := limiter.SetKindLimit(domain.OperationImport, -1); err == nil {
		t.Fatal("SetKindLimit(-1) error = nil, want error")
	}
}

func TestLocalLimiterWaitHonoursContext(t *testing.T) {
	t.Parallel()

	limiter, err := NewLocalLimiter(1)
	if err != nil {
		t.Fatalf("NewLocalLimiter() error = %v", err)
	}
	if err := limiter.Wait(context.Background(), "status_update"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "status_update"); err == nil {
		t.Fatal("Wait() should fail when the next token is beyond the deadline")
	} else if errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want deadline related error", err)
	}
}

func TestLocalLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewLocalLimiter(-1); err == nil {
		t.Fatal("NewLocalLimiter(-1) error = nil, want error")
	}

	limiter, _ := NewLocalLimiter(5)
	for _, key := range []string{"  ", "reindex"} {
		if _, err := limiter.Allow(context.Background(), key); err == nil {
			t.Fatalf("Allow(%q) error = nil, want error", key)
		}
	}
}

func TestKeyForKindRoundTrips(t *testing.T) {
	t.Parallel()

	if got := KeyForKind(domain.OperationStatusUpdate); got != "status_update" {
		t.Fatalf("KeyForKind() = %q, want status_update", got)
	}
	kind, err := KindFromKey(" bulk-edit ")
	if err != nil || kind != domain.OperationBulkEdit {
		t.Fatalf("KindFromKey() = %q, %v; want BULK_EDIT", kind, err)
	}
}
