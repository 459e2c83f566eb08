package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/logger"
	"github.com/noces-app/backend/internal/user"
)

// maxAttempts bounds re-runs after losing an insert race; the second pass
// finds the winner's record.
const maxAttempts = 2

// DirectoryResolver reconciles claims against a user.Directory using the
// directory's own per-record atomicity. No higher level lock is held.
type DirectoryResolver struct {
	users user.Directory
}

func NewDirectoryResolver(users user.Directory) *DirectoryResolver {
	return &DirectoryResolver{users: users}
}

func (r *DirectoryResolver) Resolve(ctx context.Context, claims *auth.Claims) (*user.User, error) {

	if claims == nil || claims.Subject == "" {
		return nil, errors.New("claims missing subject")
	}

	if claims.NormalizedEmail() == "" {
		return nil, errors.New("claims missing email")
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {

		var u *user.User
		u, err = r.reconcile(ctx, claims)
		if err == nil {
			return u, nil
		}

		if !errors.Is(err, user.ErrConflict) {
			return nil, err
		}

		logger.Warn("identity reconciliation lost a uniqueness race", map[string]any{
			"external_id": claims.Subject,
			"attempt":     attempt,
		})
	}

	return nil, err

}

func (r *DirectoryResolver) reconcile(ctx context.Context, claims *auth.Claims) (*user.User, error) {

	// 1. Known identity: refresh profile fields from the provider
	u, err := r.users.FindByExternalID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("lookup by external id: %w", err)
	}

	if u != nil {
		if apply(u, claims, false) {
			if err := r.users.Update(ctx, u); err != nil {
				return nil, fmt.Errorf("refresh user: %w", err)
			}
		}
		return u, nil
	}

	// 2. Pre-provisioned account with the same email and no identity yet
	u, err = r.users.FindByEmail(ctx, claims.NormalizedEmail())
	if err != nil {
		return nil, fmt.Errorf("lookup by email: %w", err)
	}

	if u != nil && u.ExternalID == "" {
		apply(u, claims, true)
		if err := r.users.Update(ctx, u); err != nil {
			return nil, fmt.Errorf("link user: %w", err)
		}
		logger.Info("linked external identity to existing user", map[string]any{
			"user_id": u.ID,
		})
		return u, nil
	}

	// 3. New user. An email owned by another identity fails here with
	// ErrConflict from the directory.
	u = &user.User{}
	apply(u, claims, true)

	if err := r.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	logger.Info("created user from external identity", map[string]any{
		"user_id": u.ID,
	})

	return u, nil

}

// apply copies claims onto u and reports whether anything changed. link
// also sets the external id.
func apply(u *user.User, claims *auth.Claims, link bool) bool {

	given, family := claims.Names()

	// Without provider roles, existing roles stand.
	roles := claims.Roles
	if len(roles) == 0 {
		roles = u.Roles
	}
	if len(roles) == 0 {
		roles = auth.DefaultRoles()
	}

	changed := false
	set := func(dst *string, v string) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}

	set(&u.Email, claims.NormalizedEmail())
	set(&u.FirstName, given)
	set(&u.LastName, family)
	if link {
		set(&u.ExternalID, claims.Subject)
	}

	if !slices.Equal(u.Roles, roles) {
		u.Roles = slices.Clone(roles)
		changed = true
	}

	return changed

}
