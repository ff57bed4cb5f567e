// Package lastcontact keeps Connection.LastContact equal to the newest log of the connection.
//
// Creation only moves the value forward: an older or equal backdated log never
// regresses it. Deletion always recomputes from the logs that remain, so a
// drifted value heals on the next delete. Both run inside the caller's
// transaction, after the log row itself was written or removed.
package lastcontact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
	"github.com/and161185/connectpro/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// Advance returns the value lastContact should hold after a log dated at is added.
// The second result reports whether it changed.
func Advance(current *time.Time, at time.Time) (*time.Time, bool) {
	at = at.UTC()
	if current == nil || at.After(*current) {
		return &at, true
	}
	return current, false
}

// Synchronizer applies the rule through the repositories of one unit of work.
type Synchronizer struct {
	log *zap.Logger
}

// New constructs a Synchronizer; a nil logger disables debug output.
func New(log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{log: log}
}

// OnLogCreated advances conn.LastContact to l.CreatedAt when it is null or strictly earlier.
// conn must be row-locked by the caller; a nil conn is a no-op.
func (s *Synchronizer) OnLogCreated(ctx context.Context, tx repository.Repos, conn *model.Connection, l *model.Log) error {
	if conn == nil {
		return nil
	}
	next, changed := Advance(conn.LastContact, l.CreatedAt)
	if !changed {
		return nil
	}
	if _, err := tx.Connections().AdvanceLastContact(ctx, conn.ID, *next); err != nil {
		return fmt.Errorf("advance last contact: %w", err)
	}
	conn.LastContact = next
	s.log.Debug("last contact advanced",
		zap.String("connection", conn.ID.String()),
		zap.Time("at", *next),
	)
	return nil
}

// OnLogDeleted recomputes last contact of connID from the remaining logs.
// A nil connID (general note) is a no-op.
func (s *Synchronizer) OnLogDeleted(ctx context.Context, tx repository.Repos, userID uuid.UUID, connID *uuid.UUID) (*time.Time, error) {
	if connID == nil {
		return nil, nil
	}
	// Row lock: concurrent log writes on the same connection queue up here
	// and each sees the committed log set when it aggregates.
	if _, err := tx.Connections().GetForUpdate(ctx, userID, *connID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock connection: %w", err)
	}
	at, err := tx.Logs().MaxCreatedAt(ctx, *connID)
	if err != nil {
		return nil, fmt.Errorf("max created_at: %w", err)
	}
	if at != nil {
		u := at.UTC()
		at = &u
	}
	if err := tx.Connections().SetLastContact(ctx, *connID, at); err != nil {
		return nil, fmt.Errorf("set last contact: %w", err)
	}
	s.log.Debug("last contact recomputed",
		zap.String("connection", connID.String()),
		zap.Timep("at", at),
	)
	return at, nil
}
