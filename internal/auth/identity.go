package auth

import "strings"

// Claims is the normalized set of identity facts returned by the identity
// provider. It contains facts only, no decisions.
type Claims struct {
	Subject    string   // provider-scoped unique user identifier (sub)
	Email      string
	GivenName  string
	FamilyName string
	FullName   string // "name" claim, used when given/family are absent
	Roles      []string
}

// Names returns the given and family name. When neither explicit claim is
// present the full name is split on whitespace: the first token is the
// given name and the remainder the family name.
func (c Claims) Names() (given, family string) {

	given = strings.TrimSpace(c.GivenName)
	family = strings.TrimSpace(c.FamilyName)

	if given != "" || family != "" {
		return given, family
	}

	parts := strings.Fields(c.FullName)
	if len(parts) == 0 {
		return "", ""
	}

	return parts[0], strings.Join(parts[1:], " ")

}

// NormalizedEmail is the form used for uniqueness checks.
func (c Claims) NormalizedEmail() string {
	return NormalizeEmail(c.Email)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
