package event

import (
	"context"
	"errors"
	"time"

	"github.com/noces-app/backend/internal/pagination"
)

var (
	ErrNotFound  = errors.New("event not found")
	ErrForbidden = errors.New("only the owner may modify this event")
	ErrInvalid   = errors.New("invalid event")
)

// Owner is the public summary of the user who created an event.
type Owner struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	IsPublic    bool      `json:"isPublic"`
	CreatedBy   Owner     `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// VisibleTo reports whether viewerID may read the event. An empty viewer
// is anonymous and sees public events only.
func (e *Event) VisibleTo(viewerID string) bool {
	return e.IsPublic || (viewerID != "" && e.CreatedBy.ID == viewerID)
}

// Filter narrows a listing. With OwnerID set only that user's events are
// returned and visibility does not apply; otherwise the listing holds
// public events plus those owned by ViewerID.
type Filter struct {
	ViewerID string
	OwnerID  string
	From     *time.Time
}

func (f Filter) Match(e *Event) bool {

	if f.From != nil && e.Date.Before(*f.From) {
		return false
	}

	if f.OwnerID != "" {
		return e.CreatedBy.ID == f.OwnerID
	}

	return e.VisibleTo(f.ViewerID)

}

// Sorting for event listings: date ascending unless asked otherwise.
var Sorting = pagination.Sorting{
	Allowed:      []string{"date", "title", "createdAt", "location"},
	DefaultSort:  "date",
	DefaultOrder: pagination.Asc,
}

// Repository persists events. FindByID returns nil, nil when nothing
// matches; Update and Delete return ErrNotFound.
type Repository interface {
	Create(ctx context.Context, e *Event) error
	FindByID(ctx context.Context, id string) (*Event, error)
	Update(ctx context.Context, e *Event) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter, q pagination.Query) ([]Event, int, error)
}
