package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/pagination"
)

type CreateInput struct {
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Email     *string   `json:"email"`
	FirstName *string   `json:"firstName"`
	LastName  *string   `json:"lastName"`
	Roles     *[]string `json:"roles"`
}

// Service applies the access rules of the user management routes on top
// of a Directory. Every method takes the verified acting user.
type Service struct {
	dir Directory
}

func NewService(dir Directory) *Service {
	return &Service{dir: dir}
}

func (s *Service) Create(ctx context.Context, actor *User, in CreateInput) (*User, error) {

	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	email, err := validEmail(in.Email)
	if err != nil {
		return nil, err
	}

	roles := cleanRoles(in.Roles)
	if len(roles) == 0 {
		roles = auth.DefaultRoles()
	}

	u := &User{
		Email:     email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Roles:     roles,
	}

	if err := s.dir.Create(ctx, u); err != nil {
		return nil, err
	}

	return u, nil

}

func (s *Service) List(ctx context.Context, actor *User, q pagination.Query) ([]User, int, error) {

	if !actor.IsAdmin() {
		return nil, 0, ErrForbidden
	}

	return s.dir.List(ctx, q)

}

// Get returns the addressed user to admins. Anyone else addressing another
// id gets their own record.
func (s *Service) Get(ctx context.Context, actor *User, id string) (*User, error) {

	u, err := s.dir.FindByID(ctx, s.target(actor, id))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}

	return u, nil

}

// Update follows the same addressing rule as Get. Only admins may change roles.
func (s *Service) Update(ctx context.Context, actor *User, id string, in UpdateInput) (*User, error) {

	if in.Roles != nil && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	u, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if in.Email != nil {
		email, err := validEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		u.Email = email
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Roles != nil {
		roles := cleanRoles(*in.Roles)
		if len(roles) == 0 {
			return nil, fmt.Errorf("%w: roles must not be empty", ErrInvalid)
		}
		u.Roles = roles
	}

	if err := s.dir.Update(ctx, u); err != nil {
		return nil, err
	}

	return u, nil

}

func (s *Service) Delete(ctx context.Context, actor *User, id string) error {

	if !actor.IsAdmin() {
		return ErrForbidden
	}

	return s.dir.Delete(ctx, id)

}

func (s *Service) target(actor *User, id string) string {
	if id != actor.ID && !actor.IsAdmin() {
		return actor.ID
	}
	return id
}

func validEmail(raw string) (string, error) {

	email := auth.NormalizeEmail(raw)

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is not valid", ErrInvalid)
	}

	return email, nil

}

func cleanRoles(roles []string) []string {

	var out []string
	seen := make(map[string]struct{})

	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	return out

}
