package identity

import (
	"context"
	"fmt"
	"strings"
)

// StaticResolver serves identities from a fixed in-memory table. It backs
// tests and single-node deployments configured from the identity.users map.
type StaticResolver struct {
	users map[string]Identity
}

// NewStaticResolver creates a resolver over a fixed identity table.
func NewStaticResolver(users map[string]Identity) *StaticResolver {
	table := make(map[string]Identity, len(users))
	for id, u := range users {
		u.UserID = id
		table[id] = u
	}
	return &StaticResolver{users: table}
}

// ParseStaticUsers builds an identity table from config values of the form
// "role:group" keyed by user id, e.g. {"alice": "admin:staff"}.
func ParseStaticUsers(raw map[string]string) (map[string]Identity, error) {
	users := make(map[string]Identity, len(raw))
	for id, spec := range raw {
		role, group, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("identity.users[%s]: want \"role:group\", got %q", id, spec)
		}
		r := Role(role)
		if r != RoleAdmin && r != RoleUser {
			return nil, fmt.Errorf("identity.users[%s]: unknown role %q", id, role)
		}
		users[id] = Identity{Role: r, Group: group}
	}
	return users, nil
}

// Resolve implements Resolver. Unknown users resolve to ErrUnavailable —
// the single failure mode, same as a remote lookup miss.
func (r *StaticResolver) Resolve(_ context.Context, userID string) (*Identity, error) {
	u, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown user %q", ErrUnavailable, userID)
	}
	return &u, nil
}
