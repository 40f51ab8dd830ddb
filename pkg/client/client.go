// Package client is the Go SDK for the ballot ledger HTTP API. It is used
// by votectl and by services that need to create votes, cast ballots, or
// inspect the chain programmatically.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a ledgerd instance.
type Client struct {
	baseURL string
	token   string // bearer JWT; empty = open mode
	userID  string // X-User-ID value for open mode
	http    *http.Client
}

// New creates a Client for the given ledgerd base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken configures a bearer JWT sent with every request.
func (c *Client) SetToken(token string) { c.token = token }

// SetUserID configures the X-User-ID header used when the server runs in
// open mode (no JWT secret configured).
func (c *Client) SetUserID(id string) { c.userID = id }

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Entry mirrors the server's ledger entry representation.
type Entry struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	Type       string    `json:"entry_type"`
	RecordedAt time.Time `json:"recorded_at"`
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `json:"hash"`

	Definition *VoteDefinition `json:"definition,omitempty"`
	Ballot     *Ballot         `json:"ballot,omitempty"`
}

// VoteDefinition mirrors the server's vote definition payload.
type VoteDefinition struct {
	VoteID         string    `json:"vote_id"`
	CreatorID      string    `json:"creator_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Options        []string  `json:"options"`
	EndDate        time.Time `json:"end_date"`
	EligibleGroups []string  `json:"eligible_groups"`
}

// Ballot mirrors the server's ballot payload.
type Ballot struct {
	VoterID   string `json:"voter_id"`
	VoteID    string `json:"vote_id"`
	Candidate string `json:"candidate"`
}

// CreateVoteRequest is the payload for CreateVote.
type CreateVoteRequest struct {
	VoteID         string    `json:"vote_id,omitempty"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Options        []string  `json:"options"`
	EndDate        time.Time `json:"end_date"`
	EligibleGroups []string  `json:"eligible_groups,omitempty"`
}

// TallyResult mirrors the server's tally response.
type TallyResult struct {
	VoteID     string         `json:"vote_id"`
	Title      string         `json:"title"`
	Results    map[string]int `json:"results"`
	TotalVotes int            `json:"total_votes"`
	Closed     bool           `json:"closed"`
}

// VerifyResult mirrors GET /ledger/verify.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
	Index   int    `json:"index"`
	Entries int    `json:"entries"`
}

// Overview mirrors GET /ledger.
type Overview struct {
	Entries int    `json:"entries"`
	Tail    string `json:"tail"`
}

// CreateVote creates a new vote definition.
func (c *Client) CreateVote(ctx context.Context, req CreateVoteRequest) (*Entry, error) {
	var entry Entry
	if err := c.do(ctx, http.MethodPost, "/api/v1/votes", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CastBallot casts a ballot for the authenticated caller.
func (c *Client) CastBallot(ctx context.Context, voteID, candidate string) (*Entry, error) {
	path := "/api/v1/votes/" + url.PathEscape(voteID) + "/ballots"
	var entry Entry
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"candidate": candidate}, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Results fetches the tally for a vote.
func (c *Client) Results(ctx context.Context, voteID string) (*TallyResult, error) {
	path := "/api/v1/votes/" + url.PathEscape(voteID) + "/results"
	var tally TallyResult
	if err := c.do(ctx, http.MethodGet, path, nil, &tally); err != nil {
		return nil, err
	}
	return &tally, nil
}

// Entries lists ledger entries. eligibleOnly filters by the caller's group.
func (c *Client) Entries(ctx context.Context, eligibleOnly bool) ([]Entry, error) {
	path := "/api/v1/entries"
	if eligibleOnly {
		path += "?eligible=true"
	}
	var resp struct {
		Entries []Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Verify runs a full-chain validation on the server.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var res VerifyResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LedgerOverview fetches the chain length and tail hash.
func (c *Client) LedgerOverview(ctx context.Context) (*Overview, error) {
	var o Overview
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger", nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// do performs one JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
