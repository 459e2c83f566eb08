// Package usertest provides an in-memory user.Directory that enforces the
// same uniqueness rules as the Postgres schema.
package usertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/pagination"
	"github.com/noces-app/backend/internal/user"

	"github.com/google/uuid"
)

type Directory struct {
	mu    sync.Mutex
	users map[string]user.User

	// Now is the clock used for timestamps.
	Now func() time.Time

	// BeforeCreate runs before each insert with the lock released; tests use
	// it to interleave a competing writer.
	BeforeCreate func(u *user.User)

	Writes int
}

var _ user.Directory = (*Directory)(nil)

func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]user.User),
		Now:   time.Now,
	}
}

func clone(u user.User) *user.User {
	u.Roles = append([]string(nil), u.Roles...)
	return &u
}

func (d *Directory) FindByID(_ context.Context, id string) (*user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.users[id]; ok {
		return clone(u), nil
	}
	return nil, nil
}

func (d *Directory) FindByExternalID(_ context.Context, externalID string) (*user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, u := range d.users {
		if u.ExternalID != "" && u.ExternalID == externalID {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (d *Directory) FindByEmail(_ context.Context, email string) (*user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	email = auth.NormalizeEmail(email)
	for _, u := range d.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (d *Directory) Create(_ context.Context, u *user.User) error {

	if d.BeforeCreate != nil {
		d.BeforeCreate(u)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = auth.NormalizeEmail(u.Email)

	if err := d.checkUnique(u); err != nil {
		return err
	}

	now := d.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	d.users[u.ID] = *clone(*u)
	d.Writes++

	return nil

}

func (d *Directory) Update(_ context.Context, u *user.User) error {

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[u.ID]; !ok {
		return user.ErrNotFound
	}

	u.Email = auth.NormalizeEmail(u.Email)
	if err := d.checkUnique(u); err != nil {
		return err
	}

	u.UpdatedAt = d.Now()
	d.users[u.ID] = *clone(*u)
	d.Writes++

	return nil

}

func (d *Directory) Delete(_ context.Context, id string) error {

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(d.users, id)

	return nil

}

func (d *Directory) List(_ context.Context, q pagination.Query) ([]user.User, int, error) {

	d.mu.Lock()
	all := make([]user.User, 0, len(d.users))
	for _, u := range d.users {
		all = append(all, *clone(u))
	}
	d.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		if q.Order == pagination.Asc {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	start := min(q.Offset(), total)
	end := min(start+q.Limit, total)

	return all[start:end], total, nil

}

// Len is the number of stored users.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

// Put stores u as is, bypassing uniqueness checks.
func (d *Directory) Put(u user.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = d.Now()
		u.UpdatedAt = u.CreatedAt
	}
	d.users[u.ID] = u
}

func (d *Directory) checkUnique(u *user.User) error {
	for id, other := range d.users {
		if id == u.ID {
			continue
		}
		if other.Email == u.Email {
			return fmt.Errorf("email %q: %w", u.Email, user.ErrConflict)
		}
		if u.ExternalID != "" && other.ExternalID == u.ExternalID {
			return fmt.Errorf("external id %q: %w", u.ExternalID, user.ErrConflict)
		}
	}
	return nil
}
