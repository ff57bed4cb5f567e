// Package service contains application services for authentication, connections, logs and tags.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/limiter"
	"github.com/and161185/connectpro/internal/model"
	"github.com/and161185/connectpro/internal/repository"
)

// AuthService defines magic-link sign-in and profile operations.
type AuthService interface {
	// Register creates or refreshes the user for email and issues a magic link.
	Register(ctx context.Context, email, name, ip string) (model.MagicLink, error)
	// EmailExists reports whether a user with the address is registered.
	EmailExists(ctx context.Context, email string) (bool, error)
	// Verify redeems a magic link and issues an access token.
	Verify(ctx context.Context, token, ip string) (model.Tokens, model.User, error)
	// Authenticate resolves an access token to an active principal.
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)
	Me(ctx context.Context, userID uuid.UUID) (*model.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, name *string, onboarded *bool) (*model.User, error)
}

// AuthConfig holds token lifetimes and link settings.
type AuthConfig struct {
	SignKey      []byte
	AccessTTL    time.Duration
	MagicLinkTTL time.Duration
	FrontendURL  string
}

type AuthServiceImpl struct {
	users repository.UserRepository
	cfg   AuthConfig
	lim   limiter.Limiter
	now   func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, cfg AuthConfig, lim limiter.Limiter) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 7 * 24 * time.Hour
	}
	if cfg.MagicLinkTTL <= 0 {
		cfg.MagicLinkTTL = 15 * time.Minute
	}
	return &AuthServiceImpl{users: users, cfg: cfg, lim: lim, now: time.Now}
}

// Register is rate limited per (email, ip). The user is created on first use;
// a changed non-empty name is stored.
func (s *AuthServiceImpl) Register(ctx context.Context, email, name, ip string) (model.MagicLink, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	var v errs.ValidationError
	if email == "" {
		v.Add("email", "required")
	}
	checkEmail(&v, "email", email)
	checkLen(&v, "name", name, maxNameLen)
	if err := v.OrNil(); err != nil {
		return model.MagicLink{}, err
	}

	ipHash := limiter.HashIP(ip)
	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.MagicLink{}, err
	}
	if !allowed {
		return model.MagicLink{}, errs.ErrRateLimited
	}

	u, err := s.getOrCreate(ctx, email, name)
	if err != nil {
		return model.MagicLink{}, err
	}
	if name != "" && name != u.Name {
		if _, err := s.users.UpdateProfile(ctx, u.ID, &name, nil); err != nil {
			return model.MagicLink{}, err
		}
	}

	tok, exp, err := signToken(s.cfg.SignKey, tokenMagicLink, email, s.now(), s.cfg.MagicLinkTTL)
	if err != nil {
		return model.MagicLink{}, err
	}
	// Count issued links; the block applies to the next request.
	if _, _, err := s.lim.Hit(ctx, email, ipHash); err != nil {
		return model.MagicLink{}, err
	}
	link := strings.TrimRight(s.cfg.FrontendURL, "/") + "/verify?token=" + url.QueryEscape(tok)
	return model.MagicLink{Token: tok, URL: link, ExpiresAt: exp}, nil
}

func (s *AuthServiceImpl) getOrCreate(ctx context.Context, email, name string) (*model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u = &model.User{ID: id, Email: email, Name: name, IsActive: true}
	err = s.users.Create(ctx, u)
	if errors.Is(err, errs.ErrAlreadyExists) {
		// lost a race with a concurrent registration
		return s.users.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// EmailExists looks the normalized address up.
func (s *AuthServiceImpl) EmailExists(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return false, fmt.Errorf("%w: empty email", errs.ErrInvalidArgument)
	}
	_, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Verify accepts only magic-link tokens. Limiter counters of (email, ip) are reset on success.
func (s *AuthServiceImpl) Verify(ctx context.Context, token, ip string) (model.Tokens, model.User, error) {
	email, err := parseToken(s.cfg.SignKey, token, tokenMagicLink)
	if err != nil {
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, model.User{}, errs.ErrUnauthorized
		}
		return model.Tokens{}, model.User{}, err
	}
	if !u.IsActive {
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	// best-effort
	_ = s.lim.Reset(ctx, email, limiter.HashIP(ip))

	access, exp, err := signToken(s.cfg.SignKey, tokenAccess, u.ID.String(), s.now(), s.cfg.AccessTTL)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *u, nil
}

// Authenticate rejects tokens of other kinds and principals that are gone or inactive.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	sub, err := parseToken(s.cfg.SignKey, token, tokenAccess)
	if err != nil {
		return uuid.Nil, errs.ErrUnauthorized
	}
	id, err := uuid.FromString(sub)
	if err != nil {
		return uuid.Nil, errs.ErrUnauthorized
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return uuid.Nil, errs.ErrUnauthorized
		}
		return uuid.Nil, err
	}
	if !u.IsActive {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return u.ID, nil
}

// Me returns the current principal.
func (s *AuthServiceImpl) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdateProfile changes name and/or onboarding state; nil fields stay as they are.
func (s *AuthServiceImpl) UpdateProfile(ctx context.Context, userID uuid.UUID, name *string, onboarded *bool) (*model.User, error) {
	if name != nil {
		n := strings.TrimSpace(*name)
		var v errs.ValidationError
		if n == "" {
			v.Add("name", "required")
		}
		checkLen(&v, "name", n, maxNameLen)
		if err := v.OrNil(); err != nil {
			return nil, err
		}
		name = &n
	}
	return s.users.UpdateProfile(ctx, userID, name, onboarded)
}
