package domain

import "time"

// TokenStatus tracks whether a persisted token may still authenticate.
type TokenStatus string

const (
	TokenEnabled  TokenStatus = "enabled"
	TokenDisabled TokenStatus = "disabled"
)

// Token is the persisted record behind every issued credential. The signed
// string is stored alongside the claims so a correctly-signed token that has
// been replaced or revoked can be told apart from the live one.
type Token struct {
	UserID      string      `json:"user"`
	TokenString string      `json:"token"`
	Scope       []string    `json:"scope"`
	Validity    string      `json:"validity"`
	Status      TokenStatus `json:"status"`
	Authority   string      `json:"authority"`
	IssuedAt    time.Time   `json:"issuedAt"`
}

// HasScope reports whether the token carries the given permission.
func (t Token) HasScope(scope string) bool {
	for _, s := range t.Scope {
		if s == scope {
			return true
		}
	}
	return false
}
