package voting_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ballotledger/ballotledger/internal/identity"
	"github.com/ballotledger/ballotledger/internal/ledger"
	"github.com/ballotledger/ballotledger/internal/voting"
	"go.uber.org/zap"
)

var ctx = context.Background()

// failingResolver simulates an unreachable identity provider.
type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (*identity.Identity, error) {
	return nil, identity.ErrUnavailable
}

func testResolver() identity.Resolver {
	return identity.NewStaticResolver(map[string]identity.Identity{
		"root":  {Role: identity.RoleAdmin, Group: "staff"},
		"u1":    {Role: identity.RoleUser, Group: "engineering"},
		"u2":    {Role: identity.RoleUser, Group: "marketing"},
		"guest": {Role: identity.RoleUser, Group: "external"},
	})
}

func newService(t *testing.T) (*voting.Service, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore()
	engine := ledger.NewEngine(store, zap.NewNop())
	return voting.NewService(engine, store, testResolver(), zap.NewNop()), store
}

func createVote(t *testing.T, svc *voting.Service, voteID string, groups ...string) *ledger.Entry {
	t.Helper()
	entry, err := svc.CreateVote(ctx, "root", voting.CreateVoteRequest{
		VoteID:         voteID,
		Title:          "Board election",
		Options:        []string{"A", "B"},
		EndDate:        time.Now().Add(time.Hour),
		EligibleGroups: groups,
	})
	if err != nil {
		t.Fatalf("create vote: %v", err)
	}
	return entry
}

func TestService_createAndCastAndTally(t *testing.T) {
	svc, _ := newService(t)

	defEntry := createVote(t, svc, "v1")
	if defEntry.Seq != 1 || defEntry.PrevHash != ledger.GenesisHash {
		t.Fatalf("definition entry: %+v", defEntry)
	}

	ballotEntry, err := svc.CastBallot(ctx, "u1", "v1", "A")
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	if ballotEntry.Seq != 2 {
		t.Errorf("ballot seq: got %d, want 2", ballotEntry.Seq)
	}
	if ballotEntry.PrevHash != defEntry.Hash {
		t.Errorf("ballot prev hash: got %q, want %q", ballotEntry.PrevHash, defEntry.Hash)
	}

	tally, err := svc.Tally(ctx, "v1")
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Results["A"] != 1 || tally.Results["B"] != 0 {
		t.Errorf("results: %+v", tally.Results)
	}
	if tally.TotalVotes != 1 {
		t.Errorf("total votes: got %d, want 1", tally.TotalVotes)
	}
	if tally.Closed {
		t.Error("vote reported closed before its end date")
	}

	// The same voter may not vote twice in the same vote.
	if _, err := svc.CastBallot(ctx, "u1", "v1", "B"); !errors.Is(err, voting.ErrAlreadyVoted) {
		t.Errorf("second ballot: got %v, want ErrAlreadyVoted", err)
	}
	tally, _ = svc.Tally(ctx, "v1")
	if tally.TotalVotes != 1 {
		t.Errorf("total after rejected duplicate: got %d, want 1", tally.TotalVotes)
	}
}

func TestService_nonAdminCannotCreate(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateVote(ctx, "u1", voting.CreateVoteRequest{
		Title:   "Unauthorized",
		Options: []string{"A"},
		EndDate: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, voting.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestService_adminCannotVote(t *testing.T) {
	svc, _ := newService(t)
	createVote(t, svc, "v1")

	_, err := svc.CastBallot(ctx, "root", "v1", "A")
	if !errors.Is(err, voting.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestService_identityUnavailableFailsClosed(t *testing.T) {
	store := ledger.NewMemoryStore()
	engine := ledger.NewEngine(store, zap.NewNop())
	svc := voting.NewService(engine, store, failingResolver{}, zap.NewNop())

	_, err := svc.CreateVote(ctx, "root", voting.CreateVoteRequest{
		Title:   "Unreachable",
		Options: []string{"A"},
		EndDate: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, voting.ErrIdentityUnavailable) {
		t.Errorf("create: got %v, want ErrIdentityUnavailable", err)
	}
	if errors.Is(err, voting.ErrForbidden) {
		t.Error("resolver failure must not be reported as forbidden")
	}

	_, err = svc.CastBallot(ctx, "u1", "v1", "A")
	if !errors.Is(err, voting.ErrIdentityUnavailable) {
		t.Errorf("cast: got %v, want ErrIdentityUnavailable", err)
	}

	entries, _ := store.ReadAllOrdered(ctx)
	if len(entries) != 0 {
		t.Errorf("fail-closed path persisted %d entries", len(entries))
	}
}

func TestService_unknownUserFailsClosed(t *testing.T) {
	svc, _ := newService(t)
	createVote(t, svc, "v1")

	_, err := svc.CastBallot(ctx, "nobody", "v1", "A")
	if !errors.Is(err, voting.ErrIdentityUnavailable) {
		t.Fatalf("got %v, want ErrIdentityUnavailable", err)
	}
}

func TestService_invalidCandidate(t *testing.T) {
	svc, _ := newService(t)
	createVote(t, svc, "v1")

	_, err := svc.CastBallot(ctx, "u1", "v1", "Z")
	if !errors.Is(err, voting.ErrInvalidCandidate) {
		t.Fatalf("got %v, want ErrInvalidCandidate", err)
	}
}

func TestService_voteNotFound(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.CastBallot(ctx, "u1", "missing", "A"); !errors.Is(err, voting.ErrVoteNotFound) {
		t.Errorf("cast: got %v, want ErrVoteNotFound", err)
	}
	if _, err := svc.Tally(ctx, "missing"); !errors.Is(err, voting.ErrVoteNotFound) {
		t.Errorf("tally: got %v, want ErrVoteNotFound", err)
	}
}

func TestService_voteClosed(t *testing.T) {
	svc, _ := newService(t)
	createVote(t, svc, "v1")

	end := time.Now().Add(time.Hour)
	svc.SetClock(func() time.Time { return end.Add(time.Minute) })

	if _, err := svc.CastBallot(ctx, "u1", "v1", "A"); !errors.Is(err, voting.ErrVoteClosed) {
		t.Fatalf("got %v, want ErrVoteClosed", err)
	}

	tally, err := svc.Tally(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if !tally.Closed {
		t.Error("tally must report the vote closed after its end date")
	}
}

func TestService_ballotAtExactEndDateRejected(t *testing.T) {
	svc, _ := newService(t)
	entry := createVote(t, svc, "v1")

	svc.SetClock(func() time.Time { return entry.Definition.EndDate })

	if _, err := svc.CastBallot(ctx, "u1", "v1", "A"); !errors.Is(err, voting.ErrVoteClosed) {
		t.Fatalf("end date is exclusive: got %v, want ErrVoteClosed", err)
	}
}

func TestService_duplicateVoteID(t *testing.T) {
	svc, _ := newService(t)
	createVote(t, svc, "v1")

	_, err := svc.CreateVote(ctx, "root", voting.CreateVoteRequest{
		VoteID:  "v1",
		Title:   "Second definition",
		Options: []string{"X"},
		EndDate: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, ledger.ErrDuplicateVoteID) {
		t.Fatalf("got %v, want ErrDuplicateVoteID", err)
	}
}

func TestService_createValidation(t *testing.T) {
	svc, _ := newService(t)

	cases := []struct {
		name string
		req  voting.CreateVoteRequest
	}{
		{"missing title", voting.CreateVoteRequest{
			Options: []string{"A"}, EndDate: time.Now().Add(time.Hour),
		}},
		{"no options", voting.CreateVoteRequest{
			Title: "t", EndDate: time.Now().Add(time.Hour),
		}},
		{"duplicate option", voting.CreateVoteRequest{
			Title: "t", Options: []string{"A", "A"}, EndDate: time.Now().Add(time.Hour),
		}},
		{"empty option", voting.CreateVoteRequest{
			Title: "t", Options: []string{" "}, EndDate: time.Now().Add(time.Hour),
		}},
		{"past end date", voting.CreateVoteRequest{
			Title: "t", Options: []string{"A"}, EndDate: time.Now().Add(-time.Hour),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateVote(ctx, "root", tc.req); !errors.Is(err, voting.ErrInvalidVote) {
				t.Errorf("got %v, want ErrInvalidVote", err)
			}
		})
	}
}

func TestService_createDefaultsAndNormalization(t *testing.T) {
	svc, _ := newService(t)

	entry, err := svc.CreateVote(ctx, "root", voting.CreateVoteRequest{
		Title:          "Defaults",
		Options:        []string{"A"},
		EndDate:        time.Now().Add(time.Hour),
		EligibleGroups: []string{"zeta", "alpha", "zeta"},
	})
	if err != nil {
		t.Fatal(err)
	}
	def := entry.Definition
	if len(def.EligibleGroups) != 2 || def.EligibleGroups[0] != "alpha" || def.EligibleGroups[1] != "zeta" {
		t.Errorf("groups not deduped and sorted: %v", def.EligibleGroups)
	}
	if def.CreatorID != "root" {
		t.Errorf("creator: got %q", def.CreatorID)
	}

	open, err := svc.CreateVote(ctx, "root", voting.CreateVoteRequest{
		Title:   "Open vote",
		Options: []string{"A"},
		EndDate: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(open.Definition.EligibleGroups) != 1 || open.Definition.EligibleGroups[0] != ledger.GroupAll {
		t.Errorf("empty groups must default to [all]: %v", open.Definition.EligibleGroups)
	}
	if open.Definition.VoteID == "" {
		t.Error("vote id must be generated when omitted")
	}
}

func TestService_groupEligibility(t *testing.T) {
	svc, _ := newService(t)
	createVote(t, svc, "eng-only", "engineering")

	if _, err := svc.CastBallot(ctx, "u1", "eng-only", "A"); err != nil {
		t.Errorf("eligible voter rejected: %v", err)
	}
	// Group membership gates visibility, not casting.
	if _, err := svc.CastBallot(ctx, "u2", "eng-only", "A"); err != nil {
		t.Errorf("voter outside the group: %v", err)
	}
}

func TestService_listEntriesEligibleOnly(t *testing.T) {
	svc, _ := newService(t)

	createVote(t, svc, "eng", "engineering")
	createVote(t, svc, "mkt", "marketing")
	createVote(t, svc, "open")

	if _, err := svc.CastBallot(ctx, "u1", "eng", "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CastBallot(ctx, "u2", "mkt", "A"); err != nil {
		t.Fatal(err)
	}

	all, err := svc.ListEntries(ctx, "u1", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("unfiltered: got %d entries, want 5", len(all))
	}

	mine, err := svc.ListEntries(ctx, "u1", true)
	if err != nil {
		t.Fatal(err)
	}
	// eng definition + its ballot + open definition.
	if len(mine) != 3 {
		t.Fatalf("filtered: got %d entries, want 3", len(mine))
	}
	for _, e := range mine {
		voteID := ""
		switch e.Type {
		case ledger.EntryTypeVoteDefinition:
			voteID = e.Definition.VoteID
		case ledger.EntryTypeBallot:
			voteID = e.Ballot.VoteID
		}
		if voteID == "mkt" {
			t.Errorf("marketing entry leaked into engineering view: %+v", e)
		}
	}
}

func TestService_listEntriesEligibleIdentityUnavailable(t *testing.T) {
	svc, _ := newService(t)
	createVote(t, svc, "v1")

	if _, err := svc.ListEntries(ctx, "nobody", true); !errors.Is(err, voting.ErrIdentityUnavailable) {
		t.Fatalf("got %v, want ErrIdentityUnavailable", err)
	}
}

func TestService_verifyChainAndTail(t *testing.T) {
	svc, store := newService(t)

	tail, n, err := svc.TailHash(ctx)
	if err != nil || n != 0 || tail != ledger.GenesisHash {
		t.Fatalf("empty ledger tail: %q (%d entries, %v)", tail, n, err)
	}

	entry := createVote(t, svc, "v1")

	tail, n, err = svc.TailHash(ctx)
	if err != nil || n != 1 || tail != entry.Hash {
		t.Fatalf("tail after append: %q (%d entries, %v)", tail, n, err)
	}

	res, n, err := svc.VerifyChain(ctx)
	if err != nil || !res.Valid || n != 1 {
		t.Fatalf("verify: %+v (%d entries, %v)", res, n, err)
	}

	store.Tamper(0, func(e *ledger.Entry) {
		e.Definition.Title = "Rigged"
	})
	res, _, err = svc.VerifyChain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Index != 0 {
		t.Errorf("tampered chain verified: %+v", res)
	}
}

func TestService_concurrentVotersAllLand(t *testing.T) {
	svc, store := newService(t)
	createVote(t, svc, "v1")

	resolver := identity.NewStaticResolver(func() map[string]identity.Identity {
		users := make(map[string]identity.Identity, 10)
		for i := 0; i < 10; i++ {
			users[fmt.Sprintf("w%d", i)] = identity.Identity{Role: identity.RoleUser, Group: "all"}
		}
		return users
	}())
	engine := ledger.NewEngine(store, zap.NewNop())
	engine.SetRetryPolicy(50, time.Millisecond)
	racing := voting.NewService(engine, store, resolver, zap.NewNop())

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			_, err := racing.CastBallot(ctx, fmt.Sprintf("w%d", i), "v1", "B")
			done <- err
		}(i)
	}
	for i := 0; i < 10; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent voter: %v", err)
		}
	}

	tally, err := svc.Tally(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if tally.Results["B"] != 10 {
		t.Errorf("B count: got %d, want 10", tally.Results["B"])
	}

	entries, _ := store.ReadAllOrdered(ctx)
	if res := ledger.ValidateChain(entries); !res.Valid {
		t.Errorf("chain invalid after concurrent casts: %+v", res)
	}
}
