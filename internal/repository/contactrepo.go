package repository

import (
	"context"
	"time"

	"github.com/and161185/connectpro/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ConnectionRepository provides owner-scoped access to connections.
// Every lookup filters by (id, userID); a mismatch is errs.ErrNotFound.
type ConnectionRepository interface {
	Create(ctx context.Context, c *model.Connection) error
	Get(ctx context.Context, userID, id uuid.UUID) (*model.Connection, error)
	// GetForUpdate loads and row-locks the connection for the rest of the transaction.
	GetForUpdate(ctx context.Context, userID, id uuid.UUID) (*model.Connection, error)
	List(ctx context.Context, userID uuid.UUID, f model.ConnectionFilter, p model.Page) ([]model.Connection, int, error)
	Update(ctx context.Context, userID, id uuid.UUID, p model.ConnectionPatch) (*model.Connection, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error

	// AdvanceLastContact sets last_contact to at when it is null or strictly earlier.
	// It reports whether the row changed.
	AdvanceLastContact(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// SetLastContact overwrites last_contact; nil stores null.
	SetLastContact(ctx context.Context, id uuid.UUID, at *time.Time) error
}

// LogRepository provides owner-scoped access to interaction logs.
type LogRepository interface {
	Create(ctx context.Context, l *model.Log) error
	Get(ctx context.Context, userID, id uuid.UUID) (*model.Log, error)
	// List returns logs newest first.
	List(ctx context.Context, userID uuid.UUID, f model.LogFilter, p model.Page) ([]model.Log, int, error)
	// Delete removes the log and returns the connection it pointed at, if any.
	Delete(ctx context.Context, userID, id uuid.UUID) (*uuid.UUID, error)
	// MaxCreatedAt returns the latest created_at among logs of a connection, nil when none remain.
	MaxCreatedAt(ctx context.Context, connectionID uuid.UUID) (*time.Time, error)
}

// TagRepository provides access to the shared tag vocabulary.
type TagRepository interface {
	// InsertIfAbsent inserts each definition unless (type, name) already exists
	// and returns how many rows were actually added. Existing rows are never touched.
	InsertIfAbsent(ctx context.Context, defs []model.TagDefinition) (int, error)
	// ListByType returns all definitions of a type in insertion order.
	ListByType(ctx context.Context, typ model.TagType) ([]model.TagDefinition, error)
}

// Repos is the set of repositories bound to one unit of work.
type Repos interface {
	Connections() ConnectionRepository
	Logs() LogRepository
	Tags() TagRepository
}

// Store exposes repositories outside a transaction and runs atomic units of work.
type Store interface {
	Repos
	Users() UserRepository
	// Atomic runs fn in a single transaction: commit when fn returns nil, rollback otherwise.
	Atomic(ctx context.Context, fn func(tx Repos) error) error
}
