// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/connectpro/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to principals.
type UserRepository interface {
	// Create inserts a new user; a taken email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateProfile changes the non-nil fields and returns the stored row.
	UpdateProfile(ctx context.Context, id uuid.UUID, name *string, onboarded *bool) (*model.User, error)
}
