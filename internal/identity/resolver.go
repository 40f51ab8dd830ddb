// Package identity abstracts the external service that maps a user id to a
// role and group. The ledger core treats every resolution failure the same
// way — unavailable — and callers must fail closed on it: an unreachable
// identity service denies privileged actions, it never grants them.
package identity

import (
	"context"
	"errors"
)

// Role is the coarse authorisation level reported by the identity service.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ErrUnavailable is returned for every resolution failure: timeouts,
// transport errors, malformed responses, and unknown users alike. It is
// deliberately a single failure mode so callers cannot accidentally treat
// "could not determine" as "denied" or, worse, "allowed".
var ErrUnavailable = errors.New("identity resolution unavailable")

// Identity is the resolved view of a user.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Group  string `json:"group"`
}

// Resolver resolves a user id to its identity.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (*Identity, error)
}
