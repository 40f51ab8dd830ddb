package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent appends. The value is arbitrary but must be consistent across
// all ledgerd instances sharing a database.
const advisoryLockKey = int64(7_415_092_618)

// Index names from migrations/001_ledger.up.sql, used to map unique
// violations back to domain errors.
const (
	idxPrevHash       = "ledger_entries_prev_hash_idx"
	idxDefinitionVote = "ledger_definitions_vote_id_idx"
	idxBallotVoter    = "ledger_ballots_voter_vote_idx"
)

const uniqueViolation = "23505"

// PostgresStore persists the ledger to PostgreSQL. Appends run inside a
// transaction holding an advisory lock, so the tail comparison and the
// insert are atomic; the partial unique indexes re-enforce the tail and
// uniqueness invariants even if the lock discipline is ever bypassed.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

const entryColumns = `
	seq, id, entry_type, recorded_at, prev_hash, hash,
	vote_id, creator_id, title, description, options, end_date, eligible_groups,
	voter_id, candidate`

// AppendIfTailMatches implements EntryStore.
func (s *PostgresStore) AppendIfTailMatches(ctx context.Context, entry *Entry, expectedTailHash string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &StoreError{Op: "begin append tx", Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise concurrent appends with a transaction-scoped advisory lock.
	// Released automatically on commit or rollback.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return &StoreError{Op: "acquire advisory lock", Err: err}
	}

	tail := GenesisHash
	err = tx.QueryRow(ctx, "SELECT hash FROM ledger_entries ORDER BY seq DESC LIMIT 1").Scan(&tail)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return &StoreError{Op: "read tail", Err: err}
	}
	if tail != expectedTailHash {
		return ErrTailConflict
	}

	var (
		voteID, creatorID, title, description, voterID, candidate *string
		options, eligibleGroups                                   []string
		endDate                                                   *time.Time
	)
	switch entry.Type {
	case EntryTypeVoteDefinition:
		d := entry.Definition
		voteID, creatorID, title, description = &d.VoteID, &d.CreatorID, &d.Title, &d.Description
		options, eligibleGroups = d.Options, d.EligibleGroups
		endDate = &d.EndDate
	case EntryTypeBallot:
		b := entry.Ballot
		voterID, voteID, candidate = &b.VoterID, &b.VoteID, &b.Candidate
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		entry.Seq, entry.ID, entry.Type, entry.RecordedAt, entry.PrevHash, entry.Hash,
		voteID, creatorID, title, description, options, endDate, eligibleGroups,
		voterID, candidate,
	); err != nil {
		return mapInsertError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return &StoreError{Op: "commit append tx", Err: err}
	}

	s.logger.Debug("ledger entry persisted",
		zap.Int64("seq", entry.Seq),
		zap.String("entry_type", string(entry.Type)),
	)
	return nil
}

// mapInsertError translates unique-index violations into domain errors.
func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case idxDefinitionVote:
			return ErrDuplicateVoteID
		case idxBallotVoter:
			return ErrDuplicateBallot
		case idxPrevHash:
			// Another writer extended the same tail between our lock
			// release and theirs; treated exactly like a tail conflict.
			return ErrTailConflict
		}
	}
	return &StoreError{Op: "insert entry", Err: err}
}

// ReadAllOrdered implements EntryStore.
func (s *PostgresStore) ReadAllOrdered(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, &StoreError{Op: "read all", Err: err}
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &StoreError{Op: "scan entry", Err: err}
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "read all", Err: err}
	}
	return out, nil
}

// FindVoteDefinition implements EntryStore.
func (s *PostgresStore) FindVoteDefinition(ctx context.Context, voteID string) (*Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE entry_type = $1 AND vote_id = $2`,
		EntryTypeVoteDefinition, voteID)
	if err != nil {
		return nil, &StoreError{Op: "find definition", Err: err}
	}
	return one(rows)
}

// FindBallot implements EntryStore.
func (s *PostgresStore) FindBallot(ctx context.Context, voterID, voteID string) (*Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE entry_type = $1 AND voter_id = $2 AND vote_id = $3`,
		EntryTypeBallot, voterID, voteID)
	if err != nil {
		return nil, &StoreError{Op: "find ballot", Err: err}
	}
	return one(rows)
}

// FindBallotsByVote implements EntryStore.
func (s *PostgresStore) FindBallotsByVote(ctx context.Context, voteID string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE entry_type = $1 AND vote_id = $2
		 ORDER BY seq ASC`,
		EntryTypeBallot, voteID)
	if err != nil {
		return nil, &StoreError{Op: "find ballots", Err: err}
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &StoreError{Op: "scan ballot", Err: err}
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "find ballots", Err: err}
	}
	return out, nil
}

// one drains rows expecting at most a single entry.
func one(rows pgx.Rows) (*Entry, error) {
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, &StoreError{Op: "find one", Err: err}
		}
		return nil, ErrNotFound
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, &StoreError{Op: "scan entry", Err: err}
	}
	return e, nil
}

// scanEntry rebuilds an Entry from a ledger_entries row, reattaching the
// variant payload indicated by entry_type.
func scanEntry(rows pgx.Rows) (*Entry, error) {
	var (
		e                                                         Entry
		voteID, creatorID, title, description, voterID, candidate *string
		options, eligibleGroups                                   []string
		endDate                                                   *time.Time
	)
	if err := rows.Scan(
		&e.Seq, &e.ID, &e.Type, &e.RecordedAt, &e.PrevHash, &e.Hash,
		&voteID, &creatorID, &title, &description, &options, &endDate, &eligibleGroups,
		&voterID, &candidate,
	); err != nil {
		return nil, err
	}

	switch e.Type {
	case EntryTypeVoteDefinition:
		e.Definition = &VoteDefinition{
			VoteID:         deref(voteID),
			CreatorID:      deref(creatorID),
			Title:          deref(title),
			Description:    deref(description),
			Options:        options,
			EligibleGroups: eligibleGroups,
		}
		if endDate != nil {
			e.Definition.EndDate = endDate.UTC()
		}
	case EntryTypeBallot:
		e.Ballot = &Ballot{
			VoterID:   deref(voterID),
			VoteID:    deref(voteID),
			Candidate: deref(candidate),
		}
	}
	e.RecordedAt = e.RecordedAt.UTC()
	return &e, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
