package ratelimit

import (
	"context"
	"strings"

	"github.com/kursadbilgin/slab-engine/internal/domain"
)

// RateLimiter throttles batch items per key. Keys come from KeyForKind.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}

// KeyForKind is the limiter key for items of one operation kind.
func KeyForKind(kind domain.OperationKind) string {
	return strings.ToLower(kind.String())
}

// KindFromKey resolves a limiter key back to its operation kind.
func KindFromKey(key string) (domain.OperationKind, error) {
	return domain.ParseOperationKindFromString(key)
}
