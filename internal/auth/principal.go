// Package auth is the session and auth adapter: it resolves a Principal
// from the session cookie and issues the short-lived tokens the game
// endpoints rely on, participant reconnect tokens for WebSocket attach
// and single-use game session tokens for score submission.
package auth

import "context"

// Role classifies a request identity.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the identity resolved for one request. Guests carry a
// GuestTag and no UserID.
type Principal struct {
	UserID   string
	Name     string
	Role     Role
	GuestTag string
}

func (p Principal) IsGuest() bool { return p.Role == RoleGuest }

// IsUser reports whether the principal is an authenticated account.
// Admins count.
func (p Principal) IsUser() bool { return p.Role == RoleUser || p.Role == RoleAdmin }

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type principalKey struct{}

// WithPrincipal stores the principal for downstream handlers.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal resolved by the middleware, or a
// plain guest when none was stored.
func PrincipalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Principal{Role: RoleGuest}
}
