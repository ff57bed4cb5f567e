package postgres

import (
	"context"

	"github.com/and161185/connectpro/internal/model"
)

// TagRepo implements TagRepository using PostgreSQL.
type TagRepo struct{ q Querier }

// NewTagRepo constructs a tag repository over a pool or a transaction.
func NewTagRepo(q Querier) *TagRepo { return &TagRepo{q: q} }

// InsertIfAbsent relies on UNIQUE (type, name): the losing writer of a race
// inserts nothing instead of failing. The conflict clause is what keeps an
// enclosing transaction usable, so every other error is returned as is.
func (r *TagRepo) InsertIfAbsent(ctx context.Context, defs []model.TagDefinition) (int, error) {
	const q = `
INSERT INTO tag_definitions (type, category, name, is_custom)
VALUES ($1, $2, $3, $4)
ON CONFLICT (type, name) DO NOTHING`
	inserted := 0
	for _, d := range defs {
		tag, err := r.q.Exec(ctx, q, string(d.Type), d.Category, d.Name, d.IsCustom)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ListByType returns every definition of a type in insertion order.
func (r *TagRepo) ListByType(ctx context.Context, typ model.TagType) ([]model.TagDefinition, error) {
	const q = `SELECT id, type, category, name, is_custom FROM tag_definitions WHERE type=$1 ORDER BY id`
	rows, err := r.q.Query(ctx, q, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TagDefinition
	for rows.Next() {
		var (
			d   model.TagDefinition
			raw string
		)
		if err := rows.Scan(&d.ID, &raw, &d.Category, &d.Name, &d.IsCustom); err != nil {
			return nil, err
		}
		d.Type = model.TagType(raw)
		out = append(out, d)
	}
	return out, rows.Err()
}
