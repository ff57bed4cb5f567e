// Package memory is an in-process implementation of repository.Store.
//
// All units of work are serialized by a single mutex and a failed unit of
// work restores the snapshot taken when it started. It backs local
// development (--store=memory) and tests; it is not durable.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
	"github.com/and161185/connectpro/internal/repository"
	"github.com/gofrs/uuid/v5"
)

type state struct {
	users     map[uuid.UUID]model.User
	conns     map[uuid.UUID]model.Connection
	logs      map[uuid.UUID]model.Log
	tags      []model.TagDefinition
	nextTagID int64
}

func (s *state) clone() *state {
	c := &state{
		users:     make(map[uuid.UUID]model.User, len(s.users)),
		conns:     make(map[uuid.UUID]model.Connection, len(s.conns)),
		logs:      make(map[uuid.UUID]model.Log, len(s.logs)),
		tags:      slices.Clone(s.tags),
		nextTagID: s.nextTagID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.conns {
		c.conns[k] = v
	}
	for k, v := range s.logs {
		c.logs[k] = v
	}
	return c
}

// Store is a mutex-guarded in-memory store.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		st: &state{
			users: map[uuid.UUID]model.User{},
			conns: map[uuid.UUID]model.Connection{},
			logs:  map[uuid.UUID]model.Log{},
		},
		now: time.Now,
	}
}

func (s *Store) Users() repository.UserRepository             { return users{s} }
func (s *Store) Connections() repository.ConnectionRepository { return conns{s: s} }
func (s *Store) Logs() repository.LogRepository               { return logs{s: s} }
func (s *Store) Tags() repository.TagRepository               { return tags{s: s} }

// Atomic runs fn under the store lock and discards its writes when it fails.
func (s *Store) Atomic(ctx context.Context, fn func(tx repository.Repos) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snap
			panic(p)
		}
		if err != nil {
			s.st = snap
		}
	}()
	return fn(txRepos{s})
}

// do runs f with the lock held unless the caller already holds it inside Atomic.
func (s *Store) do(inTx bool, f func(st *state) error) error {
	if !inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return f(s.st)
}

type txRepos struct{ s *Store }

func (t txRepos) Connections() repository.ConnectionRepository { return conns{s: t.s, inTx: true} }
func (t txRepos) Logs() repository.LogRepository               { return logs{s: t.s, inTx: true} }
func (t txRepos) Tags() repository.TagRepository               { return tags{s: t.s, inTx: true} }

// ---- users ----

type users struct{ s *Store }

func (r users) Create(_ context.Context, u *model.User) error {
	return r.s.do(false, func(st *state) error {
		for _, e := range st.users {
			if e.Email == u.Email {
				return errs.ErrAlreadyExists
			}
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = r.s.now().UTC()
		}
		st.users[u.ID] = *u
		return nil
	})
}

func (r users) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	var out *model.User
	err := r.s.do(false, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return errs.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	var out *model.User
	err := r.s.do(false, func(st *state) error {
		for _, u := range st.users {
			if u.Email == email {
				out = &u
				return nil
			}
		}
		return errs.ErrNotFound
	})
	return out, err
}

func (r users) UpdateProfile(_ context.Context, id uuid.UUID, name *string, onboarded *bool) (*model.User, error) {
	var out *model.User
	err := r.s.do(false, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return errs.ErrNotFound
		}
		if name != nil {
			u.Name = *name
		}
		if onboarded != nil {
			u.IsOnboarded = *onboarded
		}
		st.users[id] = u
		out = &u
		return nil
	})
	return out, err
}

// ---- connections ----

type conns struct {
	s    *Store
	inTx bool
}

func cloneConn(c model.Connection) *model.Connection {
	c.Tags = slices.Clone(c.Tags)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.LastContact != nil {
		t := *c.LastContact
		c.LastContact = &t
	}
	return &c
}

func (r conns) Create(_ context.Context, c *model.Connection) error {
	return r.s.do(r.inTx, func(st *state) error {
		if _, dup := st.conns[c.ID]; dup {
			return errs.ErrAlreadyExists
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = r.s.now().UTC()
		}
		st.conns[c.ID] = *cloneConn(*c)
		return nil
	})
}

func (r conns) get(userID, id uuid.UUID) (*model.Connection, error) {
	var out *model.Connection
	err := r.s.do(r.inTx, func(st *state) error {
		c, ok := st.conns[id]
		if !ok || c.UserID != userID {
			return errs.ErrNotFound
		}
		out = cloneConn(c)
		return nil
	})
	return out, err
}

func (r conns) Get(_ context.Context, userID, id uuid.UUID) (*model.Connection, error) {
	return r.get(userID, id)
}

func (r conns) GetForUpdate(_ context.Context, userID, id uuid.UUID) (*model.Connection, error) {
	return r.get(userID, id)
}

func (r conns) List(_ context.Context, userID uuid.UUID, f model.ConnectionFilter, p model.Page) ([]model.Connection, int, error) {
	var all []model.Connection
	_ = r.s.do(r.inTx, func(st *state) error {
		q := strings.ToLower(f.Search)
		for _, c := range st.conns {
			if c.UserID != userID {
				continue
			}
			if f.Tag != "" && !slices.Contains(c.Tags, f.Tag) {
				continue
			}
			if q != "" && !strings.Contains(strings.ToLower(c.Name), q) &&
				!strings.Contains(strings.ToLower(c.Company), q) &&
				!strings.Contains(strings.ToLower(c.Role), q) {
				continue
			}
			all = append(all, *cloneConn(c))
		}
		return nil
	})
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	return paginate(all, p), len(all), nil
}

func (r conns) Update(_ context.Context, userID, id uuid.UUID, p model.ConnectionPatch) (*model.Connection, error) {
	var out *model.Connection
	err := r.s.do(r.inTx, func(st *state) error {
		c, ok := st.conns[id]
		if !ok || c.UserID != userID {
			return errs.ErrNotFound
		}
		applyPatch(&c, p)
		st.conns[id] = *cloneConn(c)
		out = cloneConn(c)
		return nil
	})
	return out, err
}

func applyPatch(c *model.Connection, p model.ConnectionPatch) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Name, p.Name)
	set(&c.Role, p.Role)
	set(&c.Company, p.Company)
	set(&c.Location, p.Location)
	set(&c.Industry, p.Industry)
	set(&c.HowMet, p.HowMet)
	set(&c.Notes, p.Notes)
	set(&c.Goals, p.Goals)
	set(&c.LinkedIn, p.LinkedIn)
	set(&c.Email, p.Email)
	if p.Frequency != nil {
		c.Frequency = *p.Frequency
	}
	if p.Tags != nil {
		c.Tags = slices.Clone(*p.Tags)
	}
	switch {
	case p.LastContact != nil:
		t := p.LastContact.UTC()
		c.LastContact = &t
	case p.ClearLastContact:
		c.LastContact = nil
	}
}

func (r conns) Delete(_ context.Context, userID, id uuid.UUID) error {
	return r.s.do(r.inTx, func(st *state) error {
		c, ok := st.conns[id]
		if !ok || c.UserID != userID {
			return errs.ErrNotFound
		}
		delete(st.conns, id)
		for lid, l := range st.logs {
			if l.ConnectionID != nil && *l.ConnectionID == id {
				l.ConnectionID = nil
				st.logs[lid] = l
			}
		}
		return nil
	})
}

func (r conns) AdvanceLastContact(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	changed := false
	err := r.s.do(r.inTx, func(st *state) error {
		c, ok := st.conns[id]
		if !ok {
			return nil
		}
		if c.LastContact == nil || c.LastContact.Before(at) {
			t := at.UTC()
			c.LastContact = &t
			st.conns[id] = c
			changed = true
		}
		return nil
	})
	return changed, err
}

func (r conns) SetLastContact(_ context.Context, id uuid.UUID, at *time.Time) error {
	return r.s.do(r.inTx, func(st *state) error {
		c, ok := st.conns[id]
		if !ok {
			return nil
		}
		if at == nil {
			c.LastContact = nil
		} else {
			t := at.UTC()
			c.LastContact = &t
		}
		st.conns[id] = c
		return nil
	})
}

// ---- logs ----

type logs struct {
	s    *Store
	inTx bool
}

func cloneLog(l model.Log) *model.Log {
	l.Tags = slices.Clone(l.Tags)
	if l.Tags == nil {
		l.Tags = []string{}
	}
	if l.ConnectionID != nil {
		id := *l.ConnectionID
		l.ConnectionID = &id
	}
	return &l
}

func (r logs) Create(_ context.Context, l *model.Log) error {
	return r.s.do(r.inTx, func(st *state) error {
		if _, dup := st.logs[l.ID]; dup {
			return errs.ErrAlreadyExists
		}
		if l.ConnectionID != nil {
			if _, ok := st.conns[*l.ConnectionID]; !ok {
				return errs.ErrNotFound
			}
		}
		st.logs[l.ID] = *cloneLog(*l)
		return nil
	})
}

func (r logs) Get(_ context.Context, userID, id uuid.UUID) (*model.Log, error) {
	var out *model.Log
	err := r.s.do(r.inTx, func(st *state) error {
		l, ok := st.logs[id]
		if !ok || l.UserID != userID {
			return errs.ErrNotFound
		}
		out = cloneLog(l)
		return nil
	})
	return out, err
}

func (r logs) List(_ context.Context, userID uuid.UUID, f model.LogFilter, p model.Page) ([]model.Log, int, error) {
	var all []model.Log
	_ = r.s.do(r.inTx, func(st *state) error {
		for _, l := range st.logs {
			if l.UserID != userID {
				continue
			}
			if f.ConnectionID != nil && (l.ConnectionID == nil || *l.ConnectionID != *f.ConnectionID) {
				continue
			}
			all = append(all, *cloneLog(l))
		}
		return nil
	})
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	return paginate(all, p), len(all), nil
}

func (r logs) Delete(_ context.Context, userID, id uuid.UUID) (*uuid.UUID, error) {
	var out *uuid.UUID
	err := r.s.do(r.inTx, func(st *state) error {
		l, ok := st.logs[id]
		if !ok || l.UserID != userID {
			return errs.ErrNotFound
		}
		delete(st.logs, id)
		out = cloneLog(l).ConnectionID
		return nil
	})
	return out, err
}

func (r logs) MaxCreatedAt(_ context.Context, connectionID uuid.UUID) (*time.Time, error) {
	var out *time.Time
	_ = r.s.do(r.inTx, func(st *state) error {
		for _, l := range st.logs {
			if l.ConnectionID == nil || *l.ConnectionID != connectionID {
				continue
			}
			if out == nil || l.CreatedAt.After(*out) {
				t := l.CreatedAt
				out = &t
			}
		}
		return nil
	})
	return out, nil
}

// ---- tags ----

type tags struct {
	s    *Store
	inTx bool
}

func (r tags) InsertIfAbsent(_ context.Context, defs []model.TagDefinition) (int, error) {
	inserted := 0
	err := r.s.do(r.inTx, func(st *state) error {
		for _, d := range defs {
			exists := slices.ContainsFunc(st.tags, func(e model.TagDefinition) bool {
				return e.Type == d.Type && e.Name == d.Name
			})
			if exists {
				continue
			}
			st.nextTagID++
			d.ID = st.nextTagID
			st.tags = append(st.tags, d)
			inserted++
		}
		return nil
	})
	return inserted, err
}

func (r tags) ListByType(_ context.Context, typ model.TagType) ([]model.TagDefinition, error) {
	var out []model.TagDefinition
	_ = r.s.do(r.inTx, func(st *state) error {
		for _, d := range st.tags {
			if d.Type == typ {
				out = append(out, d)
			}
		}
		return nil
	})
	return out, nil
}

func paginate[T any](all []T, p model.Page) []T {
	if p.Offset >= len(all) {
		return []T{}
	}
	all = all[p.Offset:]
	if p.Limit > 0 && p.Limit < len(all) {
		all = all[:p.Limit]
	}
	return all
}
