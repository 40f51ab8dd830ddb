package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the well-known previous-hash sentinel carried by the first
// entry in the chain. It anchors linkage validation; it is never the hash of
// a stored entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// EntryType discriminates the two payload shapes stored in the ledger.
type EntryType string

const (
	EntryTypeVoteDefinition EntryType = "vote_definition"
	EntryTypeBallot         EntryType = "ballot"
)

// GroupAll is the wildcard group identifier meaning "every group is eligible".
const GroupAll = "all"

// VoteDefinition is the payload of a vote_definition entry.
type VoteDefinition struct {
	VoteID      string    `json:"vote_id"`
	CreatorID   string    `json:"creator_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	// Options is the ordered list of distinct candidate labels. Order is
	// semantically significant and preserved by canonicalization.
	Options []string  `json:"options"`
	EndDate time.Time `json:"end_date"`
	// EligibleGroups is a set; it is kept sorted so that logically equal
	// sets canonicalize identically. Contains GroupAll for open votes.
	EligibleGroups []string `json:"eligible_groups"`
}

// OpenTo reports whether the definition admits voters from the given group.
func (d *VoteDefinition) OpenTo(group string) bool {
	for _, g := range d.EligibleGroups {
		if g == GroupAll || g == group {
			return true
		}
	}
	return false
}

// HasOption reports whether candidate is one of the definition's options.
func (d *VoteDefinition) HasOption(candidate string) bool {
	for _, o := range d.Options {
		if o == candidate {
			return true
		}
	}
	return false
}

// Ballot is the payload of a ballot entry.
type Ballot struct {
	VoterID   string `json:"voter_id"`
	VoteID    string `json:"vote_id"`
	Candidate string `json:"candidate"`
}

// Entry is one immutable record in the ledger. Exactly one of Definition or
// Ballot is set, matching Type. ID and Hash are excluded from the hashed
// content; everything else is covered by it.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	Seq        int64     `json:"seq"`
	Type       EntryType `json:"entry_type"`
	RecordedAt time.Time `json:"recorded_at"` // descriptive only; ordering comes from Seq
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `json:"hash"`

	Definition *VoteDefinition `json:"definition,omitempty"`
	Ballot     *Ballot         `json:"ballot,omitempty"`
}

// CanonicalContent renders the entry's hashed fields as a deterministic byte
// sequence: one "key=value" line per field, keys in lexicographic order,
// string values quoted so embedded separators cannot collide, list values
// quoted and comma-joined. ID and Hash are not part of the content.
func (e *Entry) CanonicalContent() []byte {
	var buf bytes.Buffer

	fields := map[string]string{
		"entry_type":  strconv.Quote(string(e.Type)),
		"prev_hash":   strconv.Quote(e.PrevHash),
		"recorded_at": strconv.Quote(e.RecordedAt.UTC().Format(time.RFC3339Nano)),
		"seq":         strconv.FormatInt(e.Seq, 10),
	}

	switch e.Type {
	case EntryTypeVoteDefinition:
		d := e.Definition
		groups := append([]string(nil), d.EligibleGroups...)
		sort.Strings(groups)
		fields["vote_id"] = strconv.Quote(d.VoteID)
		fields["creator_id"] = strconv.Quote(d.CreatorID)
		fields["title"] = strconv.Quote(d.Title)
		fields["description"] = strconv.Quote(d.Description)
		fields["options"] = quoteList(d.Options)
		fields["end_date"] = strconv.Quote(d.EndDate.UTC().Format(time.RFC3339Nano))
		fields["eligible_groups"] = quoteList(groups)
	case EntryTypeBallot:
		b := e.Ballot
		fields["voter_id"] = strconv.Quote(b.VoterID)
		fields["vote_id"] = strconv.Quote(b.VoteID)
		fields["candidate"] = strconv.Quote(b.Candidate)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&buf, "%s=%s\n", k, fields[k])
	}
	return buf.Bytes()
}

// HashEntry computes the hex-encoded SHA-256 digest of the entry's canonical
// content. Pure function; the stored Hash field is ignored.
func HashEntry(e *Entry) string {
	sum := sha256.Sum256(e.CanonicalContent())
	return hex.EncodeToString(sum[:])
}

// quoteList renders a string slice preserving element order.
func quoteList(items []string) string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(it))
	}
	buf.WriteByte(']')
	return buf.String()
}
