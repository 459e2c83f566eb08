package resolver

import (
	"context"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/user"
)

// Resolver determines which local user a set of provider claims belongs
// to, creating or refreshing the record. It is the only place where
// identity-to-user mapping logic lives.
type Resolver interface {
	Resolve(ctx context.Context, claims *auth.Claims) (*user.User, error)
}
