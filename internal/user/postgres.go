package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/db"
	"github.com/noces-app/backend/internal/pagination"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type row struct {
	ID         string         `db:"id"`
	Email      string         `db:"email"`
	FirstName  string         `db:"first_name"`
	LastName   string         `db:"last_name"`
	Roles      pq.StringArray `db:"roles"`
	ExternalID sql.NullString `db:"external_id"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r row) toUser() *User {
	return &User{
		ID:         r.ID,
		Email:      r.Email,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Roles:      []string(r.Roles),
		ExternalID: r.ExternalID.String,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

const columns = `id, email, first_name, last_name, roles, external_id, created_at, updated_at`

// Sorting for GET /users.
var Sorting = pagination.Sorting{
	Allowed:      []string{"createdAt", "email", "lastName"},
	DefaultSort:  "createdAt",
	DefaultOrder: pagination.Desc,
}

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"email":     "email",
	"lastName":  "last_name",
}

type PostgresDirectory struct {
	db  *db.DB
	now func() time.Time
}

func NewPostgresDirectory(database *db.DB) *PostgresDirectory {
	return &PostgresDirectory{db: database, now: time.Now}
}

func (d *PostgresDirectory) get(ctx context.Context, query string, arg any) (*User, error) {

	var r row
	err := d.db.GetContext(ctx, &r, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return r.toUser(), nil

}

func (d *PostgresDirectory) FindByID(ctx context.Context, id string) (*User, error) {

	// A malformed id cannot match and would only raise a driver error.
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	return d.get(ctx, `SELECT `+columns+` FROM users WHERE id = $1`, id)

}

func (d *PostgresDirectory) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	return d.get(ctx, `SELECT `+columns+` FROM users WHERE external_id = $1`, externalID)
}

func (d *PostgresDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	return d.get(ctx, `SELECT `+columns+` FROM users WHERE LOWER(email) = $1`, auth.NormalizeEmail(email))
}

func (d *PostgresDirectory) Create(ctx context.Context, u *User) error {

	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	now := d.now()
	u.Email = auth.NormalizeEmail(u.Email)
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := d.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, roles, external_id, created_at, updated_at)
		VALUES (:id, :email, :first_name, :last_name, :roles, :external_id, :created_at, :updated_at)
	`, toRow(u))

	return mapWriteError(err, "create user")

}

func (d *PostgresDirectory) Update(ctx context.Context, u *User) error {

	u.Email = auth.NormalizeEmail(u.Email)
	u.UpdatedAt = d.now()

	res, err := d.db.NamedExecContext(ctx, `
		UPDATE users
		SET email = :email,
		    first_name = :first_name,
		    last_name = :last_name,
		    roles = :roles,
		    external_id = :external_id,
		    updated_at = :updated_at
		WHERE id = :id
	`, toRow(u))
	if err != nil {
		return mapWriteError(err, "update user")
	}

	return expectOne(res)

}

func (d *PostgresDirectory) Delete(ctx context.Context, id string) error {

	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	res, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	return expectOne(res)

}

func (d *PostgresDirectory) List(ctx context.Context, q pagination.Query) ([]User, int, error) {

	var total int
	if err := d.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	column, ok := sortColumns[q.Sort]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if q.Order == pagination.Desc {
		direction = "DESC"
	}

	var rows []row
	err := d.db.SelectContext(ctx, &rows,
		`SELECT `+columns+` FROM users ORDER BY `+column+` `+direction+`, id LIMIT $1 OFFSET $2`,
		q.Limit, q.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	users := make([]User, 0, len(rows))
	for _, r := range rows {
		users = append(users, *r.toUser())
	}

	return users, total, nil

}

func toRow(u *User) row {
	return row{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Roles:      pq.StringArray(u.Roles),
		ExternalID: sql.NullString{String: u.ExternalID, Valid: u.ExternalID != ""},
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func mapWriteError(err error, op string) error {
	if err == nil {
		return nil
	}
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
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
