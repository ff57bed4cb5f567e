package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/connectpro/internal/model"
	"github.com/and161185/connectpro/internal/reminders"
	"github.com/and161185/connectpro/internal/repository"
)

// ConnectionService defines owner-scoped operations on connections.
type ConnectionService interface {
	Create(ctx context.Context, userID uuid.UUID, c model.Connection) (*model.Connection, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*model.Connection, error)
	List(ctx context.Context, userID uuid.UUID, f model.ConnectionFilter, p model.Page) (model.PageResult[model.Connection], error)
	Update(ctx context.Context, userID, id uuid.UUID, p model.ConnectionPatch) (*model.Connection, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	// FollowUps groups all connections of the user by follow-up urgency.
	FollowUps(ctx context.Context, userID uuid.UUID) (reminders.Buckets, error)
}

type ConnectionServiceImpl struct {
	store repository.Store
	tags  TagService
	now   func() time.Time
}

// NewConnectionService constructs ConnectionService.
func NewConnectionService(store repository.Store, tags TagService) *ConnectionServiceImpl {
	return &ConnectionServiceImpl{store: store, tags: tags, now: time.Now}
}

// Create validates c, registers its tags and stores it in one unit of work.
// A supplied LastContact is kept as a manual value.
func (s *ConnectionServiceImpl) Create(ctx context.Context, userID uuid.UUID, c model.Connection) (*model.Connection, error) {
	if err := prepareConnection(&c); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	c.ID, c.UserID = id, userID
	c.CreatedAt = time.Time{}

	err = s.store.Atomic(ctx, func(tx repository.Repos) error {
		if err := s.tags.Ingest(ctx, tx.Tags(), model.TagTypeConnection, c.Tags); err != nil {
			return err
		}
		return tx.Connections().Create(ctx, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Get returns the connection when userID owns it, errs.ErrNotFound otherwise.
func (s *ConnectionServiceImpl) Get(ctx context.Context, userID, id uuid.UUID) (*model.Connection, error) {
	return s.store.Connections().Get(ctx, userID, id)
}

// List returns one page of the user's connections, newest first.
func (s *ConnectionServiceImpl) List(ctx context.Context, userID uuid.UUID, f model.ConnectionFilter, p model.Page) (model.PageResult[model.Connection], error) {
	p, err := NormalizePage(p)
	if err != nil {
		return model.PageResult[model.Connection]{}, err
	}
	items, total, err := s.store.Connections().List(ctx, userID, f, p)
	if err != nil {
		return model.PageResult[model.Connection]{}, err
	}
	return model.PageResult[model.Connection]{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}, nil
}

// Update applies a partial change. Tags are registered only when the patch carries them.
func (s *ConnectionServiceImpl) Update(ctx context.Context, userID, id uuid.UUID, p model.ConnectionPatch) (*model.Connection, error) {
	if err := preparePatch(&p); err != nil {
		return nil, err
	}
	if p.Empty() {
		return s.Get(ctx, userID, id)
	}
	var out *model.Connection
	err := s.store.Atomic(ctx, func(tx repository.Repos) error {
		if p.Tags != nil {
			if err := s.tags.Ingest(ctx, tx.Tags(), model.TagTypeConnection, *p.Tags); err != nil {
				return err
			}
		}
		c, err := tx.Connections().Update(ctx, userID, id, p)
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the connection; its logs stay as general notes.
func (s *ConnectionServiceImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.Connections().Delete(ctx, userID, id)
}

// FollowUps evaluates every connection of the user at the current time.
func (s *ConnectionServiceImpl) FollowUps(ctx context.Context, userID uuid.UUID) (reminders.Buckets, error) {
	all, _, err := s.store.Connections().List(ctx, userID, model.ConnectionFilter{}, model.Page{})
	if err != nil {
		return reminders.Buckets{}, err
	}
	return reminders.Bucket(all, s.now()), nil
}
