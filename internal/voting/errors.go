package voting

import "errors"

// Business-rule rejections. None of these is retried; each surfaces to the
// caller as-is so the HTTP layer can render a precise response.
var (
	// ErrForbidden — the caller's role does not permit the action
	// (non-admin creating a vote, or an admin casting a ballot).
	ErrForbidden = errors.New("caller is not permitted to perform this action")

	// ErrAlreadyVoted — a ballot for this (voter, vote) pair already exists.
	ErrAlreadyVoted = errors.New("voter has already cast a ballot for this vote")

	// ErrVoteNotFound — no vote definition exists for the given vote id.
	ErrVoteNotFound = errors.New("vote not found")

	// ErrVoteClosed — the vote's end date has passed.
	ErrVoteClosed = errors.New("vote is closed")

	// ErrInvalidCandidate — the ballot names a candidate that is not one of
	// the vote definition's options.
	ErrInvalidCandidate = errors.New("candidate is not an option of this vote")

	// ErrInvalidVote — the vote definition itself is malformed (empty title,
	// no options, duplicate options, end date not in the future).
	ErrInvalidVote = errors.New("invalid vote definition")

	// ErrIdentityUnavailable — the identity service could not resolve the
	// caller. Privileged actions are denied (fail closed), but the error is
	// kept distinct from ErrForbidden so callers can tell "denied" from
	// "could not determine".
	ErrIdentityUnavailable = errors.New("identity service unavailable")
)
