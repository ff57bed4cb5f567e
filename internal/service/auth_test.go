package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/limiter"
	"github.com/and161185/connectpro/internal/model"
	"github.com/and161185/connectpro/internal/repository"
)

type fakeUsers struct {
	byEmail map[string]*model.User

	createErr error
	getErr    error
	// raceOnCreate stores the row and still reports a conflict, like a lost insert race.
	raceOnCreate bool

	creates int
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*model.User{}
	}
	if _, exists := f.byEmail[u.Email]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byEmail[u.Email] = &cpy
	if f.raceOnCreate {
		return errs.ErrAlreadyExists
	}
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}
func (f *fakeUsers) UpdateProfile(_ context.Context, id uuid.UUID, name *string, onboarded *bool) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			if name != nil {
				u.Name = *name
			}
			if onboarded != nil {
				u.IsOnboarded = *onboarded
			}
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	hitErr error

	allowCalls int
	hitCalls   int
	resetCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Hit(context.Context, string, []byte) (bool, time.Duration, error) {
	l.hitCalls++
	return false, 0, l.hitErr
}
func (l *fakeLimiter) Reset(context.Context, string, []byte) error {
	l.resetCalls++
	return nil
}

func newAuth(users *fakeUsers, lim limiter.Limiter) *AuthServiceImpl {
	return NewAuthService(users, AuthConfig{
		SignKey:     []byte("secret"),
		FrontendURL: "http://app.test/",
	}, lim)
}

func TestAuth_Register_Validation(t *testing.T) {
	t.Parallel()
	s := newAuth(&fakeUsers{}, &fakeLimiter{allowOK: true})

	_, err := s.Register(context.Background(), "  ", "Ada", "1.2.3.4")
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation on empty email, got %v", err)
	}
	_, err = s.Register(context.Background(), "not-an-address", "Ada", "1.2.3.4")
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation on malformed email, got %v", err)
	}
}

func TestAuth_Register_CreatesOnceAndIssuesLink(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := &fakeUsers{}
	lim := &fakeLimiter{allowOK: true}
	s := newAuth(users, lim)

	link, err := s.Register(ctx, " Ada@Example.COM ", "Ada", "1.2.3.4")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !strings.HasPrefix(link.URL, "http://app.test/verify?token=") {
		t.Fatalf("unexpected link %q", link.URL)
	}
	if link.Token == "" || !link.ExpiresAt.After(time.Now()) {
		t.Fatalf("bad token/expiry: %+v", link)
	}
	u, ok := users.byEmail["ada@example.com"]
	if !ok {
		t.Fatalf("user must be stored under the normalized email")
	}
	if !u.IsActive {
		t.Fatalf("new user must be active")
	}

	if _, err := s.Register(ctx, "ada@example.com", "Ada Lovelace", "1.2.3.4"); err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if users.creates != 1 {
		t.Fatalf("user must be created once, got %d creates", users.creates)
	}
	if users.byEmail["ada@example.com"].Name != "Ada Lovelace" {
		t.Fatalf("changed name must be stored")
	}
	if lim.allowCalls != 2 || lim.hitCalls != 2 {
		t.Fatalf("limiter calls: allow=%d hit=%d", lim.allowCalls, lim.hitCalls)
	}
}

func TestAuth_Register_LostRaceRereads(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{raceOnCreate: true}
	s := newAuth(users, &fakeLimiter{allowOK: true})

	if _, err := s.Register(context.Background(), "ada@example.com", "", ""); err != nil {
		t.Fatalf("conflicting insert must re-read the row, got %v", err)
	}
}

func TestAuth_Register_RateLimited(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	lim := &fakeLimiter{allowOK: false}
	s := newAuth(users, lim)

	_, err := s.Register(context.Background(), "ada@example.com", "Ada", "1.2.3.4")
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	if users.creates != 0 || lim.hitCalls != 0 {
		t.Fatalf("blocked request must not touch users or count a hit")
	}

	lim.allowErr = errors.New("db down")
	if _, err := s.Register(context.Background(), "ada@example.com", "Ada", ""); err == nil {
		t.Fatalf("want propagated limiter error")
	}
}

func TestAuth_VerifyAndAuthenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := &fakeUsers{}
	lim := &fakeLimiter{allowOK: true}
	s := newAuth(users, lim)

	link, err := s.Register(ctx, "ada@example.com", "Ada", "1.2.3.4")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	tok, u, err := s.Verify(ctx, link.Token, "1.2.3.4")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if u.Email != "ada@example.com" || tok.AccessToken == "" {
		t.Fatalf("unexpected verify result: %+v %+v", u, tok)
	}
	if lim.resetCalls != 1 {
		t.Fatalf("verify must reset the limiter")
	}

	id, err := s.Authenticate(ctx, tok.AccessToken)
	if err != nil || id != u.ID {
		t.Fatalf("Authenticate: id=%v err=%v", id, err)
	}

	// kinds are not interchangeable
	if _, err := s.Authenticate(ctx, link.Token); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("magic link must not authenticate, got %v", err)
	}
	if _, _, err := s.Verify(ctx, tok.AccessToken, ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("access token must not verify, got %v", err)
	}
	if _, err := s.Authenticate(ctx, "garbage"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("garbage token: %v", err)
	}

	other := newAuth(users, lim)
	other.cfg.SignKey = []byte("other")
	if _, err := other.Authenticate(ctx, tok.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("foreign signature must fail, got %v", err)
	}
}

func TestAuth_ExpiredAndInactive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := &fakeUsers{}
	s := newAuth(users, &fakeLimiter{allowOK: true})

	s.now = func() time.Time { return time.Now().Add(-time.Hour) }
	link, err := s.Register(ctx, "ada@example.com", "Ada", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := s.Verify(ctx, link.Token, ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expired link must fail, got %v", err)
	}

	s.now = time.Now
	link, _ = s.Register(ctx, "ada@example.com", "Ada", "")
	tok, _, err := s.Verify(ctx, link.Token, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	users.byEmail["ada@example.com"].IsActive = false
	if _, err := s.Authenticate(ctx, tok.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("inactive user must be rejected, got %v", err)
	}
	if _, _, err := s.Verify(ctx, link.Token, ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("inactive user must not verify, got %v", err)
	}
}

func TestAuth_EmailExistsAndProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := &fakeUsers{}
	s := newAuth(users, nil)

	if _, err := s.EmailExists(ctx, ""); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
	ok, err := s.EmailExists(ctx, "ada@example.com")
	if err != nil || ok {
		t.Fatalf("unknown email: ok=%v err=%v", ok, err)
	}
	if _, err := s.Register(ctx, "ada@example.com", "Ada", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ok, err = s.EmailExists(ctx, "ADA@example.com")
	if err != nil || !ok {
		t.Fatalf("known email: ok=%v err=%v", ok, err)
	}

	id := users.byEmail["ada@example.com"].ID
	blank := "  "
	if _, err := s.UpdateProfile(ctx, id, &blank, nil); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("blank name must fail validation, got %v", err)
	}
	yes := true
	u, err := s.UpdateProfile(ctx, id, nil, &yes)
	if err != nil || !u.IsOnboarded || u.Name != "Ada" {
		t.Fatalf("UpdateProfile: %+v err=%v", u, err)
	}
	me, err := s.Me(ctx, id)
	if err != nil || !me.IsOnboarded {
		t.Fatalf("Me: %+v err=%v", me, err)
	}

	users.getErr = errors.New("boom")
	if _, err := s.EmailExists(ctx, "ada@example.com"); err == nil || errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want propagated repo error, got %v", err)
	}
}
