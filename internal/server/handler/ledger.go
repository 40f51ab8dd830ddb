package handler

import (
	"net/http"
	"strconv"

	"github.com/ballotledger/ballotledger/internal/ledger"
	"github.com/ballotledger/ballotledger/internal/voting"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LedgerHandler exposes read-only chain inspection endpoints.
type LedgerHandler struct {
	svc    *voting.Service
	store  ledger.EntryStore
	logger *zap.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(svc *voting.Service, store ledger.EntryStore, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, store: store, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries/:seq", h.GetEntry)
	}
}

// Overview handles GET /ledger — chain length and current tail hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	tail, count, err := h.svc.TailHash(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger overview", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to query ledger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": count, "tail": tail})
}

// Verify handles GET /ledger/verify — walks the full chain over a consistent
// snapshot and reports integrity with the offending index on failure.
func (h *LedgerHandler) Verify(c *gin.Context) {
	res, count, err := h.svc.VerifyChain(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger verify", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to read ledger"})
		return
	}
	RecordChainVerification(res.Valid)

	if !res.Valid {
		h.logger.Warn("ledger integrity check failed",
			zap.String("reason", string(res.Reason)),
			zap.Int("index", res.Index),
		)
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":   res.Valid,
		"reason":  res.Reason,
		"index":   res.Index,
		"entries": count,
	})
}

// GetEntry handles GET /ledger/entries/:seq — returns a single entry by its
// sequence position.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seq must be a positive integer"})
		return
	}

	entries, err := h.store.ReadAllOrdered(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger read", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to read ledger"})
		return
	}
	for i := range entries {
		if entries[i].Seq == seq {
			c.JSON(http.StatusOK, entries[i])
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
}
