package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 10 * time.Millisecond
)

// Engine is the single authority for adding entries to the ledger. Every
// append revalidates the stored chain, derives linkage from a fresh
// snapshot, and commits through the store's conditional append, retrying a
// bounded number of times when it loses a commit race.
type Engine struct {
	store       EntryStore
	maxAttempts int
	backoffBase time.Duration
	logger      *zap.Logger
}

// NewEngine creates an append engine over the given store.
func NewEngine(store EntryStore, logger *zap.Logger) *Engine {
	return &Engine{
		store:       store,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		logger:      logger,
	}
}

// SetRetryPolicy overrides the bounded-retry parameters. Backoff grows
// exponentially from base; it matters for liveness under contention, not
// for correctness.
func (e *Engine) SetRetryPolicy(maxAttempts int, base time.Duration) {
	if maxAttempts > 0 {
		e.maxAttempts = maxAttempts
	}
	if base > 0 {
		e.backoffBase = base
	}
}

// AppendDefinition appends a vote_definition entry.
func (e *Engine) AppendDefinition(ctx context.Context, def VoteDefinition) (*Entry, error) {
	return e.append(ctx, &Entry{Type: EntryTypeVoteDefinition, Definition: &def})
}

// AppendBallot appends a ballot entry.
func (e *Engine) AppendBallot(ctx context.Context, b Ballot) (*Entry, error) {
	return e.append(ctx, &Entry{Type: EntryTypeBallot, Ballot: &b})
}

// append runs the snapshot → validate → link → conditional-commit loop.
// On success exactly one immutable entry is persisted; on any failure, none.
func (e *Engine) append(ctx context.Context, entry *Entry) (*Entry, error) {
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		snapshot, err := e.store.ReadAllOrdered(ctx)
		if err != nil {
			return nil, err
		}

		// An append must never extend a known-broken chain.
		if res := ValidateChain(snapshot); !res.Valid {
			return nil, &ChainCorruptedError{Result: res}
		}

		prevHash := GenesisHash
		seq := int64(1)
		if n := len(snapshot); n > 0 {
			prevHash = snapshot[n-1].Hash
			seq = snapshot[n-1].Seq + 1
		}

		entry.ID = uuid.New()
		entry.Seq = seq
		entry.PrevHash = prevHash
		// Truncated to microseconds: timestamptz precision. Anything finer
		// would be lost on persistence and break hash re-verification.
		entry.RecordedAt = time.Now().UTC().Truncate(time.Microsecond)
		entry.Hash = HashEntry(entry)

		err = e.store.AppendIfTailMatches(ctx, entry, prevHash)
		if err == nil {
			e.logger.Debug("ledger entry appended",
				zap.Int64("seq", entry.Seq),
				zap.String("entry_type", string(entry.Type)),
				zap.String("hash", entry.Hash),
			)
			return entry, nil
		}
		if !errors.Is(err, ErrTailConflict) {
			return nil, err
		}

		e.logger.Debug("append lost tail race, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int64("seq", seq),
		)
		if err := sleepBackoff(ctx, e.backoffBase<<uint(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, ErrAppendConflict
}

// sleepBackoff waits d or until ctx is done, whichever comes first.
func sleepBackoff(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
