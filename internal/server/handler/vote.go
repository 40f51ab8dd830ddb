package handler

import (
	"errors"
	"net/http"

	"github.com/ballotledger/ballotledger/internal/ledger"
	"github.com/ballotledger/ballotledger/internal/voting"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VoteHandler exposes the voting operations over HTTP. It contains no
// business logic: every route maps 1:1 onto a voting.Service call.
type VoteHandler struct {
	svc    *voting.Service
	auth   gin.HandlerFunc
	logger *zap.Logger
}

// NewVoteHandler creates a VoteHandler. auth is the caller-identification
// middleware applied to every route (see RequireCaller).
func NewVoteHandler(svc *voting.Service, auth gin.HandlerFunc, logger *zap.Logger) *VoteHandler {
	return &VoteHandler{svc: svc, auth: auth, logger: logger}
}

// Register mounts the voting routes on the given router group.
func (h *VoteHandler) Register(rg *gin.RouterGroup) {
	votes := rg.Group("/votes", h.auth)
	{
		votes.POST("", h.CreateVote)
		votes.POST("/:voteId/ballots", h.CastBallot)
		votes.GET("/:voteId/results", h.Results)
	}
	rg.GET("/entries", h.auth, h.ListEntries)
}

// CreateVote handles POST /votes.
func (h *VoteHandler) CreateVote(c *gin.Context) {
	var req voting.CreateVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.svc.CreateVote(c.Request.Context(), CallerID(c), req)
	if err != nil {
		h.renderError(c, err)
		return
	}
	RecordLedgerAppend(string(entry.Type))
	c.JSON(http.StatusCreated, entry)
}

// castRequest is the body of POST /votes/:voteId/ballots.
type castRequest struct {
	Candidate string `json:"candidate" binding:"required"`
}

// CastBallot handles POST /votes/:voteId/ballots.
func (h *VoteHandler) CastBallot(c *gin.Context) {
	var req castRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.svc.CastBallot(c.Request.Context(), CallerID(c), c.Param("voteId"), req.Candidate)
	if err != nil {
		h.renderError(c, err)
		return
	}
	RecordLedgerAppend(string(entry.Type))
	c.JSON(http.StatusCreated, entry)
}

// Results handles GET /votes/:voteId/results.
func (h *VoteHandler) Results(c *gin.Context) {
	tally, err := h.svc.Tally(c.Request.Context(), c.Param("voteId"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, tally)
}

// ListEntries handles GET /entries. With ?eligible=true the list is filtered
// by the caller's group against each vote definition's eligible groups.
func (h *VoteHandler) ListEntries(c *gin.Context) {
	eligibleOnly := c.Query("eligible") == "true"
	entries, err := h.svc.ListEntries(c.Request.Context(), CallerID(c), eligibleOnly)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// renderError maps domain errors onto HTTP statuses.
func (h *VoteHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, voting.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, voting.ErrVoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, voting.ErrAlreadyVoted),
		errors.Is(err, voting.ErrVoteClosed),
		errors.Is(err, ledger.ErrDuplicateVoteID),
		errors.Is(err, ledger.ErrDuplicateBallot):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, voting.ErrInvalidCandidate),
		errors.Is(err, voting.ErrInvalidVote):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrAppendConflict):
		RecordAppendConflict()
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, voting.ErrIdentityUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrChainCorrupted):
		h.logger.Error("ledger chain corrupted", zap.Error(err))
		var corrupted *ledger.ChainCorruptedError
		body := gin.H{"error": err.Error()}
		if errors.As(err, &corrupted) {
			body["reason"] = corrupted.Result.Reason
			body["index"] = corrupted.Result.Index
		}
		c.JSON(http.StatusInternalServerError, body)
	case errors.Is(err, ledger.ErrStoreUnavailable):
		h.logger.Error("store unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger store unavailable"})
	default:
		h.logger.Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
