package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/lastcontact"
	"github.com/and161185/connectpro/internal/model"
	"github.com/and161185/connectpro/internal/repository"
)

// LogService defines operations on interaction logs.
type LogService interface {
	// Create stores a log. A connection the user does not own yields errs.ErrForbidden.
	Create(ctx context.Context, userID uuid.UUID, l model.Log) (*model.Log, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*model.Log, error)
	List(ctx context.Context, userID uuid.UUID, f model.LogFilter, p model.Page) (model.PageResult[model.Log], error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type LogServiceImpl struct {
	store repository.Store
	tags  TagService
	sync  *lastcontact.Synchronizer
	now   func() time.Time
}

// NewLogService constructs LogService.
func NewLogService(store repository.Store, tags TagService, sync *lastcontact.Synchronizer) *LogServiceImpl {
	if sync == nil {
		sync = lastcontact.New(nil)
	}
	return &LogServiceImpl{store: store, tags: tags, sync: sync, now: time.Now}
}

// Create runs access check, tag registration, insert and last-contact advance
// in one unit of work. Nothing is persisted when any step fails.
func (s *LogServiceImpl) Create(ctx context.Context, userID uuid.UUID, l model.Log) (*model.Log, error) {
	if err := prepareLog(&l); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	l.ID, l.UserID = id, userID
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	l.CreatedAt = l.CreatedAt.UTC()

	err = s.store.Atomic(ctx, func(tx repository.Repos) error {
		var conn *model.Connection
		if l.ConnectionID != nil {
			c, err := tx.Connections().GetForUpdate(ctx, userID, *l.ConnectionID)
			if errors.Is(err, errs.ErrNotFound) {
				return fmt.Errorf("%w: connection %s", errs.ErrForbidden, *l.ConnectionID)
			}
			if err != nil {
				return err
			}
			conn = c
		}
		if err := s.tags.Ingest(ctx, tx.Tags(), model.TagTypeInteraction, l.Tags); err != nil {
			return err
		}
		if err := tx.Logs().Create(ctx, &l); err != nil {
			return err
		}
		return s.sync.OnLogCreated(ctx, tx, conn, &l)
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Get returns the log when userID owns it.
func (s *LogServiceImpl) Get(ctx context.Context, userID, id uuid.UUID) (*model.Log, error) {
	return s.store.Logs().Get(ctx, userID, id)
}

// List returns one page of logs newest first. Filtering by a connection the
// user does not own yields errs.ErrNotFound.
func (s *LogServiceImpl) List(ctx context.Context, userID uuid.UUID, f model.LogFilter, p model.Page) (model.PageResult[model.Log], error) {
	p, err := NormalizePage(p)
	if err != nil {
		return model.PageResult[model.Log]{}, err
	}
	if f.ConnectionID != nil {
		if _, err := s.store.Connections().Get(ctx, userID, *f.ConnectionID); err != nil {
			return model.PageResult[model.Log]{}, err
		}
	}
	items, total, err := s.store.Logs().List(ctx, userID, f, p)
	if err != nil {
		return model.PageResult[model.Log]{}, err
	}
	return model.PageResult[model.Log]{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}, nil
}

// Delete removes the log and recomputes last contact of its connection.
func (s *LogServiceImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.Atomic(ctx, func(tx repository.Repos) error {
		connID, err := tx.Logs().Delete(ctx, userID, id)
		if err != nil {
			return err
		}
		_, err = s.sync.OnLogDeleted(ctx, tx, userID, connID)
		return err
	})
}
