package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
	"github.com/and161185/connectpro/internal/repository"
	"github.com/and161185/connectpro/internal/taxonomy"
)

// TagService manages the shared tag vocabulary.
type TagService interface {
	// Seed registers the standard vocabulary; rows that already exist are left alone.
	Seed(ctx context.Context) (int, error)
	// ListByType returns the vocabulary of one type grouped by category.
	ListByType(ctx context.Context, typ string) (model.Taxonomy, error)
	// Ingest registers unknown names of typ as custom tags through repo.
	Ingest(ctx context.Context, repo repository.TagRepository, typ model.TagType, names []string) error
}

type TagServiceImpl struct {
	repo  repository.TagRepository
	table *taxonomy.Table
	log   *zap.Logger
}

// NewTagService constructs TagService over the non-transactional tag repository.
func NewTagService(repo repository.TagRepository, table *taxonomy.Table, log *zap.Logger) *TagServiceImpl {
	if table == nil {
		table = taxonomy.Standard()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TagServiceImpl{repo: repo, table: table, log: log}
}

// Seed inserts the standard definitions that are not registered yet.
func (s *TagServiceImpl) Seed(ctx context.Context) (int, error) {
	n, err := s.repo.InsertIfAbsent(ctx, s.table.Definitions())
	if err != nil {
		return 0, fmt.Errorf("seed taxonomy: %w", err)
	}
	return n, nil
}

// ListByType groups all definitions of typ, custom ones included.
func (s *TagServiceImpl) ListByType(ctx context.Context, typ string) (model.Taxonomy, error) {
	t := model.TagType(typ)
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown tag type %q", errs.ErrInvalidArgument, typ)
	}
	defs, err := s.repo.ListByType(ctx, t)
	if err != nil {
		return nil, err
	}
	return s.table.Group(defs), nil
}

// Ingest is a no-op for an empty list. Names already registered under typ,
// in any category, are untouched; the rest land in the custom category.
// Concurrent callers registering the same name leave exactly one row.
func (s *TagServiceImpl) Ingest(ctx context.Context, repo repository.TagRepository, typ model.TagType, names []string) error {
	if len(names) == 0 {
		return nil
	}
	if repo == nil {
		repo = s.repo
	}
	defs := make([]model.TagDefinition, 0, len(names))
	for _, n := range names {
		defs = append(defs, model.TagDefinition{Type: typ, Category: model.CustomCategory, Name: n, IsCustom: true})
	}
	added, err := repo.InsertIfAbsent(ctx, defs)
	if err != nil {
		return fmt.Errorf("register %s tags: %w", typ, err)
	}
	if added > 0 {
		s.log.Info("custom tags registered", zap.String("type", string(typ)), zap.Int("count", added))
	}
	return nil
}
