package ledger

// ValidationReason classifies why a chain failed validation.
type ValidationReason string

const (
	// ReasonHashMismatch — an entry's stored hash does not match the digest
	// of its canonical content (the content was altered after commit).
	ReasonHashMismatch ValidationReason = "content_hash_mismatch"
	// ReasonBadGenesis — the first entry does not link to the genesis sentinel.
	ReasonBadGenesis ValidationReason = "bad_genesis_link"
	// ReasonBrokenLink — an entry's prev_hash does not equal the preceding
	// entry's hash.
	ReasonBrokenLink ValidationReason = "broken_linkage"
)

// ValidationResult is the outcome of a full-chain validation walk.
// Index is the offending entry's position in the validated slice, or -1
// when the chain is valid.
type ValidationResult struct {
	Valid  bool             `json:"valid"`
	Reason ValidationReason `json:"reason,omitempty"`
	Index  int              `json:"index"`
}

// ValidateChain walks entries (which must be in ascending sequence order, as
// returned by EntryStore.ReadAllOrdered) and checks per-entry hash
// correctness and inter-entry linkage. Read-only; safe to run concurrently
// with appends as long as the slice is a consistent snapshot.
func ValidateChain(entries []Entry) ValidationResult {
	ok := ValidationResult{Valid: true, Index: -1}
	if len(entries) == 0 {
		return ok
	}

	first := &entries[0]
	if HashEntry(first) != first.Hash {
		return ValidationResult{Reason: ReasonHashMismatch, Index: 0}
	}
	if first.PrevHash != GenesisHash {
		return ValidationResult{Reason: ReasonBadGenesis, Index: 0}
	}

	for i := 1; i < len(entries); i++ {
		curr := &entries[i]
		if HashEntry(curr) != curr.Hash {
			return ValidationResult{Reason: ReasonHashMismatch, Index: i}
		}
		if curr.PrevHash != entries[i-1].Hash {
			return ValidationResult{Reason: ReasonBrokenLink, Index: i}
		}
	}
	return ok
}
