package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by finders when no entry matches.
	ErrNotFound = errors.New("ledger entry not found")

	// ErrTailConflict is returned by AppendIfTailMatches when the store's
	// tail moved since the caller took its snapshot. The append engine
	// retries on it; callers outside the engine should not see it.
	ErrTailConflict = errors.New("ledger tail changed since snapshot")

	// ErrDuplicateVoteID is returned when a vote_definition entry would
	// reuse an existing vote id.
	ErrDuplicateVoteID = errors.New("vote definition already exists for this vote id")

	// ErrDuplicateBallot is returned when a ballot entry would duplicate an
	// existing (voter id, vote id) pair.
	ErrDuplicateBallot = errors.New("ballot already recorded for this voter and vote")

	// ErrAppendConflict is returned by the append engine after exhausting
	// its retry budget under contention. Retryable by the caller.
	ErrAppendConflict = errors.New("append lost the commit race; retry")

	// ErrChainCorrupted marks appends rejected because the stored chain
	// failed validation. Matched via errors.Is against ChainCorruptedError.
	ErrChainCorrupted = errors.New("ledger chain corrupted")

	// ErrStoreUnavailable marks persistence-layer transport failures, as
	// opposed to domain rejections. Matched via errors.Is against StoreError.
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)

// ChainCorruptedError carries the validator's diagnosis for a rejected append.
type ChainCorruptedError struct {
	Result ValidationResult
}

func (e *ChainCorruptedError) Error() string {
	return fmt.Sprintf("ledger chain corrupted at index %d: %s", e.Result.Index, e.Result.Reason)
}

func (e *ChainCorruptedError) Is(target error) bool { return target == ErrChainCorrupted }

// StoreError wraps a persistence failure so callers can distinguish
// transport faults from domain rejections.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// EntryStore is the ordered persistence contract required by the core.
// Entries are append-only: never updated or deleted in place. Reads return
// copies; callers never hold a live reference into the store.
type EntryStore interface {
	// AppendIfTailMatches atomically commits entry on the condition that the
	// store's current tail hash still equals expectedTailHash (GenesisHash
	// for an empty store). Returns ErrTailConflict when the tail moved, and
	// ErrDuplicateVoteID / ErrDuplicateBallot when the entry would violate
	// a uniqueness invariant.
	AppendIfTailMatches(ctx context.Context, entry *Entry, expectedTailHash string) error

	// ReadAllOrdered returns a consistent snapshot of all entries in
	// ascending sequence order.
	ReadAllOrdered(ctx context.Context) ([]Entry, error)

	// FindVoteDefinition returns the vote_definition entry for voteID,
	// or ErrNotFound.
	FindVoteDefinition(ctx context.Context, voteID string) (*Entry, error)

	// FindBallot returns the ballot entry for (voterID, voteID),
	// or ErrNotFound.
	FindBallot(ctx context.Context, voterID, voteID string) (*Entry, error)

	// FindBallotsByVote returns all ballot entries for voteID in ascending
	// sequence order.
	FindBallotsByVote(ctx context.Context, voteID string) ([]Entry, error)
}
