package voting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ballotledger/ballotledger/internal/identity"
	"github.com/ballotledger/ballotledger/internal/ledger"
)

// Eligibility layers the domain gating rules on top of ledger state and the
// external identity resolver: who may create a vote, who may cast a ballot,
// and when. All checks are advisory pre-conditions — the uniqueness
// invariants are re-enforced atomically by the store at commit time, since
// a check-then-act gap exists between these reads and the append.
type Eligibility struct {
	store      ledger.EntryStore
	identities identity.Resolver
	now        func() time.Time
}

// NewEligibility creates an eligibility checker.
func NewEligibility(store ledger.EntryStore, identities identity.Resolver) *Eligibility {
	return &Eligibility{store: store, identities: identities, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (e *Eligibility) SetClock(now func() time.Time) {
	e.now = now
}

// resolve looks up the caller, collapsing every resolver failure into
// ErrIdentityUnavailable. A lookup failure never grants a role.
func (e *Eligibility) resolve(ctx context.Context, userID string) (*identity.Identity, error) {
	id, err := e.identities.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	return id, nil
}

// CanCreateVote permits vote creation only to admins.
func (e *Eligibility) CanCreateVote(ctx context.Context, creatorID string) error {
	id, err := e.resolve(ctx, creatorID)
	if err != nil {
		return err
	}
	if id.Role != identity.RoleAdmin {
		return fmt.Errorf("%w: only admins may create votes", ErrForbidden)
	}
	return nil
}

// CanCastBallot checks every gate for casting a ballot and, on success,
// returns the matching vote definition so the caller can validate the
// chosen candidate against its options.
func (e *Eligibility) CanCastBallot(ctx context.Context, voterID, voteID string) (*ledger.VoteDefinition, error) {
	id, err := e.resolve(ctx, voterID)
	if err != nil {
		return nil, err
	}
	if id.Role == identity.RoleAdmin {
		return nil, fmt.Errorf("%w: admins never vote", ErrForbidden)
	}

	if _, err := e.store.FindBallot(ctx, voterID, voteID); err == nil {
		return nil, ErrAlreadyVoted
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	defEntry, err := e.store.FindVoteDefinition(ctx, voteID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrVoteNotFound
		}
		return nil, err
	}

	def := defEntry.Definition
	if !e.now().Before(def.EndDate) {
		return nil, ErrVoteClosed
	}
	return def, nil
}
