package subkeeper

import "strings"

// AuthorizationPolicy decides whether an already-authenticated caller may use
// the administrative operations. Authentication itself is an upstream
// collaborator; this is only the capability check.
type AuthorizationPolicy interface {
	CanAdminister(email string) bool
}

// AllowList is an AuthorizationPolicy backed by a fixed set of admin email
// addresses, typically loaded from config.
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList returns an AllowList over the given addresses. Comparison is
// case-insensitive.
func NewAllowList(emails []string) *AllowList {
	l := &AllowList{
		emails: make(map[string]struct{}, len(emails)),
	}
	for _, e := range emails {
		l.emails[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return l
}

// CanAdminister reports whether email is on the allow-list.
func (l *AllowList) CanAdminister(email string) bool {
	_, ok := l.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}
