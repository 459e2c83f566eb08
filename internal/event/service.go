package event

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noces-app/backend/internal/pagination"
	"github.com/noces-app/backend/internal/user"
)

type CreateInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Date        *time.Time `json:"date"`
	Location    string     `json:"location"`
	IsPublic    bool       `json:"isPublic"`
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Date        *time.Time `json:"date"`
	Location    *string    `json:"location"`
	IsPublic    *bool      `json:"isPublic"`
}

// Service enforces visibility and ownership over a Repository. A nil
// viewer is anonymous.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock returns a copy of the service reading time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	return &c
}

func (s *Service) Create(ctx context.Context, actor *user.User, in CreateInput) (*Event, error) {

	e := &Event{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		IsPublic:    in.IsPublic,
		CreatedBy:   Owner{ID: actor.ID},
	}
	if in.Date != nil {
		e.Date = *in.Date
	}

	if err := validate(e, in.Date != nil); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	// Re-read to pick up the owner summary.
	created, err := s.repo.FindByID(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("event %s vanished after create", e.ID)
	}

	return created, nil

}

func (s *Service) List(ctx context.Context, viewer *user.User, q pagination.Query) ([]Event, int, error) {
	return s.repo.List(ctx, Filter{ViewerID: viewerID(viewer)}, q)
}

// Upcoming lists visible events dated now or later.
func (s *Service) Upcoming(ctx context.Context, viewer *user.User, q pagination.Query) ([]Event, int, error) {
	from := s.now()
	return s.repo.List(ctx, Filter{ViewerID: viewerID(viewer), From: &from}, q)
}

// Mine lists every event the actor created, public or not.
func (s *Service) Mine(ctx context.Context, actor *user.User, q pagination.Query) ([]Event, int, error) {
	return s.repo.List(ctx, Filter{OwnerID: actor.ID}, q)
}

// Get returns ErrNotFound both for missing events and for events the
// viewer may not see.
func (s *Service) Get(ctx context.Context, viewer *user.User, id string) (*Event, error) {

	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil || !e.VisibleTo(viewerID(viewer)) {
		return nil, ErrNotFound
	}

	return e, nil

}

func (s *Service) Update(ctx context.Context, actor *user.User, id string, in UpdateInput) (*Event, error) {

	e, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		e.Description = strings.TrimSpace(*in.Description)
	}
	if in.Date != nil {
		e.Date = *in.Date
	}
	if in.Location != nil {
		e.Location = strings.TrimSpace(*in.Location)
	}
	if in.IsPublic != nil {
		e.IsPublic = *in.IsPublic
	}

	if err := validate(e, true); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}

	return e, nil

}

func (s *Service) Delete(ctx context.Context, actor *user.User, id string) error {

	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}

	return s.repo.Delete(ctx, id)

}

func (s *Service) owned(ctx context.Context, actor *user.User, id string) (*Event, error) {

	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	if e.CreatedBy.ID != actor.ID {
		return nil, ErrForbidden
	}

	return e, nil

}

func validate(e *Event, hasDate bool) error {

	var missing []string
	if e.Title == "" {
		missing = append(missing, "title")
	}
	if e.Description == "" {
		missing = append(missing, "description")
	}
	if !hasDate || e.Date.IsZero() {
		missing = append(missing, "date")
	}
	if e.Location == "" {
		missing = append(missing, "location")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalid, strings.Join(missing, ", "))
	}

	return nil

}

func viewerID(u *user.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
