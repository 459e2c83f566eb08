// Package eventtest provides an in-memory event.Repository.
package eventtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noces-app/backend/internal/event"
	"github.com/noces-app/backend/internal/pagination"
	"github.com/noces-app/backend/internal/user"

	"github.com/google/uuid"
)

// Repository keeps events in a map. Owner summaries are resolved from the
// user directory on read, the way the Postgres join does.
type Repository struct {
	mu     sync.Mutex
	events map[string]event.Event
	users  user.Directory

	// Now is the clock used for timestamps.
	Now func() time.Time
}

var _ event.Repository = (*Repository)(nil)

func NewRepository(users user.Directory) *Repository {
	return &Repository{
		events: make(map[string]event.Event),
		users:  users,
		Now:    time.Now,
	}
}

func (r *Repository) Create(_ context.Context, e *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := r.Now()
	e.CreatedAt = now
	e.UpdatedAt = now

	r.events[e.ID] = *e
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*event.Event, error) {
	r.mu.Lock()
	e, ok := r.events[id]
	r.mu.Unlock()

	if !ok {
		return nil, nil
	}
	if err := r.withOwner(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) Update(_ context.Context, e *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[e.ID]; !ok {
		return event.ErrNotFound
	}
	e.UpdatedAt = r.Now()
	r.events[e.ID] = *e
	return nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[id]; !ok {
		return event.ErrNotFound
	}
	delete(r.events, id)
	return nil
}

func (r *Repository) List(ctx context.Context, f event.Filter, q pagination.Query) ([]event.Event, int, error) {

	r.mu.Lock()
	var matched []event.Event
	for _, e := range r.events {
		if f.Match(&e) {
			matched = append(matched, e)
		}
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		c := compare(matched[i], matched[j], q.Sort)
		if c == 0 {
			return matched[i].ID < matched[j].ID
		}
		if q.Order == pagination.Desc {
			return c > 0
		}
		return c < 0
	})

	total := len(matched)
	start := min(q.Offset(), total)
	end := min(start+q.Limit, total)

	page := matched[start:end]
	for i := range page {
		if err := r.withOwner(ctx, &page[i]); err != nil {
			return nil, 0, err
		}
	}

	return page, total, nil

}

func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *Repository) withOwner(ctx context.Context, e *event.Event) error {
	if r.users == nil {
		return nil
	}
	u, err := r.users.FindByID(ctx, e.CreatedBy.ID)
	if err != nil || u == nil {
		return err
	}
	e.CreatedBy = event.Owner{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
	return nil
}

func compare(a, b event.Event, key string) int {
	switch key {
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "location":
		return strings.Compare(a.Location, b.Location)
	case "createdAt":
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return a.Date.Compare(b.Date)
	}
}
