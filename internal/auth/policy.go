package auth

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// DefaultRoles is assigned when the identity provider supplies none.
func DefaultRoles() []string {
	return []string{RoleUser}
}

// HasAnyRole reports whether roles contains at least one of required.
// An empty required list grants nothing.
func HasAnyRole(roles []string, required ...string) bool {
	for _, want := range required {
		for _, have := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
