// Package limiter defines interfaces and implementations for magic-link issuance rate limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter throttles magic-link requests per (subject, client) and applies temporary lockouts.
type Limiter interface {
	// Allow reports whether a request is currently allowed and optional retry-after.
	Allow(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error)
	// Hit records an issued link; may place a temporary block.
	Hit(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error)
	// Reset clears counters after the link was redeemed.
	Reset(ctx context.Context, subject string, ipHash []byte) error
}
