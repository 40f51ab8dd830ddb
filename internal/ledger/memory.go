package ledger

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory, thread-safe EntryStore. It is used in tests
// and for single-process deployments that do not need durability. All
// uniqueness invariants are enforced under the same lock as the tail check,
// so commits are atomic exactly like the Postgres store's transaction.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AppendIfTailMatches implements EntryStore.
func (s *MemoryStore) AppendIfTailMatches(_ context.Context, entry *Entry, expectedTailHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tail := GenesisHash
	if n := len(s.entries); n > 0 {
		tail = s.entries[n-1].Hash
	}
	if tail != expectedTailHash {
		return ErrTailConflict
	}

	switch entry.Type {
	case EntryTypeVoteDefinition:
		for i := range s.entries {
			e := &s.entries[i]
			if e.Type == EntryTypeVoteDefinition && e.Definition.VoteID == entry.Definition.VoteID {
				return ErrDuplicateVoteID
			}
		}
	case EntryTypeBallot:
		for i := range s.entries {
			e := &s.entries[i]
			if e.Type == EntryTypeBallot &&
				e.Ballot.VoterID == entry.Ballot.VoterID &&
				e.Ballot.VoteID == entry.Ballot.VoteID {
				return ErrDuplicateBallot
			}
		}
	}

	s.entries = append(s.entries, copyEntry(entry))
	return nil
}

// ReadAllOrdered implements EntryStore. The returned slice is a deep copy;
// mutating it cannot affect stored history.
func (s *MemoryStore) ReadAllOrdered(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i := range s.entries {
		out[i] = copyEntry(&s.entries[i])
	}
	return out, nil
}

// FindVoteDefinition implements EntryStore.
func (s *MemoryStore) FindVoteDefinition(_ context.Context, voteID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.entries {
		e := &s.entries[i]
		if e.Type == EntryTypeVoteDefinition && e.Definition.VoteID == voteID {
			c := copyEntry(e)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// FindBallot implements EntryStore.
func (s *MemoryStore) FindBallot(_ context.Context, voterID, voteID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.entries {
		e := &s.entries[i]
		if e.Type == EntryTypeBallot && e.Ballot.VoterID == voterID && e.Ballot.VoteID == voteID {
			c := copyEntry(e)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// FindBallotsByVote implements EntryStore.
func (s *MemoryStore) FindBallotsByVote(_ context.Context, voteID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for i := range s.entries {
		e := &s.entries[i]
		if e.Type == EntryTypeBallot && e.Ballot.VoteID == voteID {
			out = append(out, copyEntry(e))
		}
	}
	return out, nil
}

// Tamper overwrites the stored entry at index i without recomputing hashes.
// Test hook for corruption scenarios; never called by production code.
func (s *MemoryStore) Tamper(i int, mutate func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.entries[i])
}

// copyEntry deep-copies an entry, including its payload and option slices.
func copyEntry(e *Entry) Entry {
	c := *e
	if e.Definition != nil {
		d := *e.Definition
		d.Options = append([]string(nil), e.Definition.Options...)
		d.EligibleGroups = append([]string(nil), e.Definition.EligibleGroups...)
		c.Definition = &d
	}
	if e.Ballot != nil {
		b := *e.Ballot
		c.Ballot = &b
	}
	return c
}
