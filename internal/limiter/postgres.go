package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed limiter implementation with sliding window and lockout.
type PG struct {
	pool     pgxQuerier
	window   time.Duration
	maxHits  int
	blockFor time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter over a pool or any compatible querier.
func NewPG(q pgxQuerier, window time.Duration, maxHits int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxHits: maxHits, blockFor: blockFor}
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether a request is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM magic_link_limiter WHERE subject=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, subject, ipHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		if blockedUntil.After(time.Now()) {
			return false, time.Until(blockedUntil), nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Reset clears counters for (subject, ip).
func (l *PG) Reset(ctx context.Context, subject string, ipHash []byte) error {
	const q = `
INSERT INTO magic_link_limiter (subject, ip_hash, hits, blocked_until, updated_at)
VALUES ($1,$2,0,'epoch',now())
ON CONFLICT (subject, ip_hash)
DO UPDATE SET hits=0, blocked_until='epoch', updated_at=now()`
	_, err := l.pool.Exec(ctx, q, subject, ipHash)
	return err
}

// Hit records an issued link; blocks further requests once maxHits is reached inside the window.
func (l *PG) Hit(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error) {
	now := time.Now()

	const q = `
INSERT INTO magic_link_limiter (subject, ip_hash, hits, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',now())
ON CONFLICT (subject, ip_hash) DO UPDATE
SET
  hits = CASE WHEN EXCLUDED.updated_at - magic_link_limiter.updated_at > $3::interval THEN 1 ELSE magic_link_limiter.hits + 1 END,
  updated_at = now()
RETURNING hits`
	var hits int
	if err := l.pool.QueryRow(ctx, q, subject, ipHash, l.window).Scan(&hits); err != nil {
		return false, 0, err
	}
	if hits >= l.maxHits {
		blockUntil := now.Add(l.blockFor)
		const upd = `UPDATE magic_link_limiter SET blocked_until=$3 WHERE subject=$1 AND ip_hash=$2`
		if _, err := l.pool.Exec(ctx, upd, subject, ipHash, blockUntil); err != nil {
			return false, 0, err
		}
		return true, l.blockFor, nil
	}
	return false, 0, nil
}

// Nop never limits. Used when the limiter is disabled.
type Nop struct{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) { return true, 0, nil }
func (Nop) Hit(context.Context, string, []byte) (bool, time.Duration, error)   { return false, 0, nil }
func (Nop) Reset(context.Context, string, []byte) error                        { return nil }
