package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/noces-app/backend/internal/event"
	"github.com/noces-app/backend/internal/pagination"
	"github.com/noces-app/backend/internal/testutil/pgtest"
	"github.com/noces-app/backend/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepository(t *testing.T) {

	database := pgtest.Open(t)
	ctx := context.Background()

	users := user.NewPostgresDirectory(database)
	owner := &user.User{Email: "alice@x.com", FirstName: "Alice", LastName: "Martin", Roles: []string{"user"}}
	other := &user.User{Email: "bob@x.com", Roles: []string{"user"}}
	require.NoError(t, users.Create(ctx, owner))
	require.NoError(t, users.Create(ctx, other))

	repo := event.NewPostgresRepository(database)
	svc := event.NewService(repo)

	date := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	public, err := svc.Create(ctx, owner, event.CreateInput{
		Title: "Public", Description: "d", Date: &date, Location: "Paris", IsPublic: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", public.CreatedBy.Email)
	assert.True(t, public.Date.Equal(date))

	past := time.Now().Add(-24 * time.Hour)
	_, err = svc.Create(ctx, owner, event.CreateInput{
		Title: "Private", Description: "d", Date: &past, Location: "Lyon",
	})
	require.NoError(t, err)

	q := pagination.Query{Page: 1, Limit: 10, Sort: "date", Order: pagination.Asc}

	anon, total, err := repo.List(ctx, event.Filter{}, q)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Public", anon[0].Title)

	asOther, total, err := repo.List(ctx, event.Filter{ViewerID: other.ID}, q)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, asOther, 1)

	mine, total, err := repo.List(ctx, event.Filter{OwnerID: owner.ID}, q)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "Private", mine[0].Title)

	from := time.Now()
	upcoming, total, err := repo.List(ctx, event.Filter{ViewerID: owner.ID, From: &from}, q)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Public", upcoming[0].Title)

	missing, err := repo.FindByID(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.Update(ctx, other, public.ID, event.UpdateInput{})
	assert.ErrorIs(t, err, event.ErrForbidden)

	require.NoError(t, users.Delete(ctx, owner.ID))
	_, total, err = repo.List(ctx, event.Filter{OwnerID: owner.ID}, q)
	require.NoError(t, err)
	assert.Zero(t, total, "events cascade with their owner")

}
