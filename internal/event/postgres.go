package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noces-app/backend/internal/db"
	"github.com/noces-app/backend/internal/pagination"

	"github.com/google/uuid"
)

type row struct {
	ID             string    `db:"id"`
	Title          string    `db:"title"`
	Description    string    `db:"description"`
	Date           time.Time `db:"date"`
	Location       string    `db:"location"`
	IsPublic       bool      `db:"is_public"`
	CreatedBy      string    `db:"created_by"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
	OwnerEmail     string    `db:"owner_email"`
	OwnerFirstName string    `db:"owner_first_name"`
	OwnerLastName  string    `db:"owner_last_name"`
}

func (r row) toEvent() *Event {
	return &Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Date:        r.Date,
		Location:    r.Location,
		IsPublic:    r.IsPublic,
		CreatedBy: Owner{
			ID:        r.CreatedBy,
			Email:     r.OwnerEmail,
			FirstName: r.OwnerFirstName,
			LastName:  r.OwnerLastName,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const selectEvents = `
	SELECT e.id, e.title, e.description, e.date, e.location, e.is_public,
	       e.created_by, e.created_at, e.updated_at,
	       u.email AS owner_email,
	       u.first_name AS owner_first_name,
	       u.last_name AS owner_last_name
	FROM events e
	JOIN users u ON u.id = e.created_by`

var sortColumns = map[string]string{
	"date":      "e.date",
	"title":     "e.title",
	"createdAt": "e.created_at",
	"location":  "e.location",
}

type PostgresRepository struct {
	db  *db.DB
	now func() time.Time
}

func NewPostgresRepository(database *db.DB) *PostgresRepository {
	return &PostgresRepository{db: database, now: time.Now}
}

func (p *PostgresRepository) Create(ctx context.Context, e *Event) error {

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	now := p.now()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO events (id, title, description, date, location, is_public, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.Title, e.Description, e.Date, e.Location, e.IsPublic, e.CreatedBy.ID, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	return nil

}

func (p *PostgresRepository) FindByID(ctx context.Context, id string) (*Event, error) {

	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	var r row
	err := p.db.GetContext(ctx, &r, selectEvents+` WHERE e.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}

	return r.toEvent(), nil

}

func (p *PostgresRepository) Update(ctx context.Context, e *Event) error {

	e.UpdatedAt = p.now()

	res, err := p.db.ExecContext(ctx, `
		UPDATE events
		SET title = $2,
		    description = $3,
		    date = $4,
		    location = $5,
		    is_public = $6,
		    updated_at = $7
		WHERE id = $1
	`, e.ID, e.Title, e.Description, e.Date, e.Location, e.IsPublic, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}

	return expectOne(res)

}

func (p *PostgresRepository) Delete(ctx context.Context, id string) error {

	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	res, err := p.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	return expectOne(res)

}

func (p *PostgresRepository) List(ctx context.Context, f Filter, q pagination.Query) ([]Event, int, error) {

	where, args := whereClause(f)

	var total int
	countQuery := p.db.Rebind(`SELECT COUNT(*) FROM events e` + where)
	if err := p.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	column, ok := sortColumns[q.Sort]
	if !ok {
		column = "e.date"
	}
	direction := "ASC"
	if q.Order == pagination.Desc {
		direction = "DESC"
	}

	listQuery := p.db.Rebind(selectEvents + where +
		` ORDER BY ` + column + ` ` + direction + `, e.id LIMIT ? OFFSET ?`)

	var rows []row
	if err := p.db.SelectContext(ctx, &rows, listQuery, append(args, q.Limit, q.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, *r.toEvent())
	}

	return events, total, nil

}

// whereClause renders f with ? placeholders for sqlx Rebind.
func whereClause(f Filter) (string, []any) {

	var (
		conds []string
		args  []any
	)

	switch {
	case f.OwnerID != "":
		conds = append(conds, "e.created_by = ?")
		args = append(args, f.OwnerID)
	case f.ViewerID != "":
		conds = append(conds, "(e.is_public OR e.created_by = ?)")
		args = append(args, f.ViewerID)
	default:
		conds = append(conds, "e.is_public")
	}

	if f.From != nil {
		conds = append(conds, "e.date >= ?")
		args = append(args, *f.From)
	}

	return " WHERE " + strings.Join(conds, " AND "), args

}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
