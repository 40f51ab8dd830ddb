package voting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ballotledger/ballotledger/internal/identity"
	"github.com/ballotledger/ballotledger/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service implements the voting operations over the ledger core: create a
// vote definition, cast a ballot, tally results, list entries, and validate
// the chain. It owns no state of its own; everything is derived from the
// entry store through the append engine.
type Service struct {
	engine      *ledger.Engine
	store       ledger.EntryStore
	eligibility *Eligibility
	identities  identity.Resolver
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a voting service.
func NewService(engine *ledger.Engine, store ledger.EntryStore, identities identity.Resolver, logger *zap.Logger) *Service {
	return &Service{
		engine:      engine,
		store:       store,
		eligibility: NewEligibility(store, identities),
		identities:  identities,
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock overrides the time source for the service and its eligibility
// checker. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.eligibility.SetClock(now)
}

// CreateVoteRequest carries the caller-supplied fields of a new vote.
type CreateVoteRequest struct {
	VoteID         string    `json:"vote_id,omitempty"` // generated when empty
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Options        []string  `json:"options"`
	EndDate        time.Time `json:"end_date"`
	EligibleGroups []string  `json:"eligible_groups,omitempty"` // defaults to ["all"]
}

// CreateVote validates the request, checks that the creator is an admin, and
// appends a vote_definition entry.
func (s *Service) CreateVote(ctx context.Context, creatorID string, req CreateVoteRequest) (*ledger.Entry, error) {
	if err := s.eligibility.CanCreateVote(ctx, creatorID); err != nil {
		return nil, err
	}

	def, err := s.buildDefinition(creatorID, req)
	if err != nil {
		return nil, err
	}

	// Advisory duplicate check; the store's uniqueness constraint is the
	// authoritative guard at commit time.
	if _, err := s.store.FindVoteDefinition(ctx, def.VoteID); err == nil {
		return nil, ledger.ErrDuplicateVoteID
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	entry, err := s.engine.AppendDefinition(ctx, *def)
	if err != nil {
		return nil, err
	}

	s.logger.Info("vote created",
		zap.String("vote_id", def.VoteID),
		zap.String("creator_id", creatorID),
		zap.Int64("seq", entry.Seq),
	)
	return entry, nil
}

// buildDefinition normalizes and validates a create request.
func (s *Service) buildDefinition(creatorID string, req CreateVoteRequest) (*ledger.VoteDefinition, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidVote)
	}
	if len(req.Options) == 0 {
		return nil, fmt.Errorf("%w: at least one option is required", ErrInvalidVote)
	}
	seen := make(map[string]bool, len(req.Options))
	for _, o := range req.Options {
		if strings.TrimSpace(o) == "" {
			return nil, fmt.Errorf("%w: empty option label", ErrInvalidVote)
		}
		if seen[o] {
			return nil, fmt.Errorf("%w: duplicate option %q", ErrInvalidVote, o)
		}
		seen[o] = true
	}
	if !req.EndDate.After(s.now()) {
		return nil, fmt.Errorf("%w: end date must be in the future", ErrInvalidVote)
	}

	groups := req.EligibleGroups
	if len(groups) == 0 {
		groups = []string{ledger.GroupAll}
	}
	groups = dedupeSorted(groups)

	voteID := strings.TrimSpace(req.VoteID)
	if voteID == "" {
		voteID = uuid.NewString()
	}

	return &ledger.VoteDefinition{
		VoteID:         voteID,
		CreatorID:      creatorID,
		Title:          req.Title,
		Description:    req.Description,
		Options:        append([]string(nil), req.Options...),
		EndDate:        req.EndDate.UTC().Truncate(time.Microsecond),
		EligibleGroups: groups,
	}, nil
}

// CastBallot runs the eligibility gates, validates the candidate against the
// vote's options, and appends a ballot entry. A concurrent duplicate slips
// past the advisory check but is rejected by the store; it surfaces here as
// ErrAlreadyVoted either way.
func (s *Service) CastBallot(ctx context.Context, voterID, voteID, candidate string) (*ledger.Entry, error) {
	def, err := s.eligibility.CanCastBallot(ctx, voterID, voteID)
	if err != nil {
		return nil, err
	}
	if !def.HasOption(candidate) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCandidate, candidate)
	}

	entry, err := s.engine.AppendBallot(ctx, ledger.Ballot{
		VoterID:   voterID,
		VoteID:    voteID,
		Candidate: candidate,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateBallot) {
			return nil, ErrAlreadyVoted
		}
		return nil, err
	}

	s.logger.Info("ballot cast",
		zap.String("vote_id", voteID),
		zap.String("voter_id", voterID),
		zap.Int64("seq", entry.Seq),
	)
	return entry, nil
}

// TallyResult is the computed outcome of a vote.
type TallyResult struct {
	VoteID     string         `json:"vote_id"`
	Title      string         `json:"title"`
	Results    map[string]int `json:"results"`
	TotalVotes int            `json:"total_votes"`
	Closed     bool           `json:"closed"`
}

// Tally counts ballots per option for the given vote. Options with no
// ballots are reported with a zero count. Ballots naming a candidate that is
// no longer an option cannot exist (gated at cast time), but are skipped
// defensively rather than counted under a bogus key.
func (s *Service) Tally(ctx context.Context, voteID string) (*TallyResult, error) {
	defEntry, err := s.store.FindVoteDefinition(ctx, voteID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrVoteNotFound
		}
		return nil, err
	}
	def := defEntry.Definition

	ballots, err := s.store.FindBallotsByVote(ctx, voteID)
	if err != nil {
		return nil, err
	}

	results := make(map[string]int, len(def.Options))
	for _, o := range def.Options {
		results[o] = 0
	}
	total := 0
	for i := range ballots {
		c := ballots[i].Ballot.Candidate
		if _, ok := results[c]; !ok {
			continue
		}
		results[c]++
		total++
	}

	return &TallyResult{
		VoteID:     def.VoteID,
		Title:      def.Title,
		Results:    results,
		TotalVotes: total,
		Closed:     !s.now().Before(def.EndDate),
	}, nil
}

// ListEntries returns the full chain in sequence order. When callerID is
// non-empty and eligibleOnly is set, the result is filtered to vote
// definitions open to the caller's group, plus the ballots belonging to
// those votes.
func (s *Service) ListEntries(ctx context.Context, callerID string, eligibleOnly bool) ([]ledger.Entry, error) {
	entries, err := s.store.ReadAllOrdered(ctx)
	if err != nil {
		return nil, err
	}
	if !eligibleOnly {
		return entries, nil
	}

	id, err := s.identities.Resolve(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	open := make(map[string]bool)
	out := make([]ledger.Entry, 0, len(entries))
	for i := range entries {
		e := entries[i]
		switch e.Type {
		case ledger.EntryTypeVoteDefinition:
			if e.Definition.OpenTo(id.Group) {
				open[e.Definition.VoteID] = true
				out = append(out, e)
			}
		case ledger.EntryTypeBallot:
			if open[e.Ballot.VoteID] {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// VerifyChain validates the full chain over a consistent snapshot.
func (s *Service) VerifyChain(ctx context.Context) (ledger.ValidationResult, int, error) {
	entries, err := s.store.ReadAllOrdered(ctx)
	if err != nil {
		return ledger.ValidationResult{}, 0, err
	}
	return ledger.ValidateChain(entries), len(entries), nil
}

// TailHash returns the hash of the most recent entry, or the genesis
// sentinel for an empty ledger. Always recomputed from a fresh store read,
// never cached.
func (s *Service) TailHash(ctx context.Context) (string, int, error) {
	entries, err := s.store.ReadAllOrdered(ctx)
	if err != nil {
		return "", 0, err
	}
	if len(entries) == 0 {
		return ledger.GenesisHash, 0, nil
	}
	return entries[len(entries)-1].Hash, len(entries), nil
}

// dedupeSorted sorts the group set and drops duplicates.
func dedupeSorted(groups []string) []string {
	out := append([]string(nil), groups...)
	sort.Strings(out)
	j := 0
	for i, g := range out {
		if i > 0 && g == out[j-1] {
			continue
		}
		out[j] = g
		j++
	}
	return out[:j]
}
