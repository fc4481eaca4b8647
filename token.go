package subkeeper

import (
	uuid "github.com/satori/go.uuid"
)

// NewToken mints an unsubscribe token: a random UUIDv4 drawn from the
// platform CSPRNG. Tokens carry no relation to the record's id or email.
// If the entropy source is unavailable the call panics; there is no
// low-entropy fallback.
func NewToken() string {
	return uuid.NewV4().String()
}
