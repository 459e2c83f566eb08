package user

import (
	"context"
	"errors"
	"time"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/pagination"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is a uniqueness violation on email or external id. The
	// operation may be retried after re-reading the directory.
	ErrConflict = errors.New("user already exists")
	ErrInvalid  = errors.New("invalid user")
)

// User is the local identity record.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Roles      []string  `json:"roles"`
	ExternalID string    `json:"externalId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (u *User) HasAnyRole(required ...string) bool {
	return auth.HasAnyRole(u.Roles, required...)
}

func (u *User) IsAdmin() bool {
	return u.HasAnyRole(auth.RoleAdmin)
}

type Profile struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Roles:     u.Roles,
	}
}

// Directory is the single source of truth for users. Lookups return
// nil, nil when nothing matches. Create and Update return ErrConflict when
// email or external id is already taken.
type Directory interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByExternalID(ctx context.Context, externalID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, q pagination.Query) ([]User, int, error)
}
