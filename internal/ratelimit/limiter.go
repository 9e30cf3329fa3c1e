package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"github.com/kursadbilgin/slab-engine/internal/domain"
	"golang.org/x/time/rate"
)

var _ RateLimiter = (*LocalLimiter)(nil)

// LocalLimiter is an in-process token bucket per operation kind. It is used when no Redis is
// configured, so the limit applies per instance rather than across the fleet.
type LocalLimiter struct {
	mu           sync.Mutex
	defaultLimit int
	kindLimits   map[domain.OperationKind]int
	limiters     map[domain.OperationKind]*rate.Limiter
}

// NewLocalLimiter builds a limiter allowing perSec items of every kind. Zero leaves kinds
// without an override unlimited.
func NewLocalLimiter(perSec int) (*LocalLimiter, error) {
	if perSec < 0 {
		return nil, fmt.Errorf("limit per second must not be negative")
	}

	return &LocalLimiter{
		defaultLimit: perSec,
		kindLimits:   make(map[domain.OperationKind]int),
		limiters:     make(map[domain.OperationKind]*rate.Limiter),
	}, nil
}

// SetKindLimit overrides the limit for one kind. Zero makes the kind unlimited.
func (l *LocalLimiter) SetKindLimit(kind domain.OperationKind, perSec int) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: invalid operation kind %q", domain.ErrValidation, kind)
	}
	if perSec < 0 {
		return fmt.Errorf("limit per second for %s must not be negative", kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.kindLimits[kind] = perSec
	delete(l.limiters, kind)
	return nil
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) (bool, error) {
	limiter, err := l.limiter(key)
	if err != nil {
		return false, err
	}
	return limiter.Allow(), nil
}

func (l *LocalLimiter) Wait(ctx context.Context, key string) error {
	limiter, err := l.limiter(key)
	if err != nil {
		return err
	}
	return limiter.Wait(ctx)
}

func (l *LocalLimiter) limiter(key string) (*rate.Limiter, error) {
	kind, err := KindFromKey(key)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit key: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[kind]
	if !ok {
		limiter = newBucket(l.limitFor(kind))
		l.limiters[kind] = limiter
	}
	return limiter, nil
}

func (l *LocalLimiter) limitFor(kind domain.OperationKind) int {
	if perSec, ok := l.kindLimits[kind]; ok {
		return perSec
	}
	return l.defaultLimit
}

func newBucket(perSec int) *rate.Limiter {
	if perSec == 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSec), perSec)
}
