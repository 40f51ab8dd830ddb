// Package audit runs periodic integrity checks over the full ledger chain.
// Corruption is surfaced loudly through logs, metrics, and an optional alert
// callback, but the process keeps serving: reads stay available and the
// append engine rejects extensions of a broken chain on its own.
package audit

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/ballotledger/ballotledger/internal/ledger"
	"go.uber.org/zap"
)

// Config holds auditor configuration.
type Config struct {
	Interval     time.Duration // time between audits; zero disables the loop
	CheckTimeout time.Duration // bound on one full-chain read and walk
}

// AlertFunc is an optional callback invoked once per healthy→corrupted
// transition, never on every failing tick.
type AlertFunc func(ctx context.Context, res ledger.ValidationResult)

// MetricsRecordFunc is an optional callback for recording audit outcomes.
type MetricsRecordFunc func(valid bool, entries int)

// Auditor re-validates the hash chain on a fixed interval.
type Auditor struct {
	store     ledger.EntryStore
	cfg       Config
	onAlert   AlertFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu        sync.Mutex
	corrupted bool
}

// New creates an Auditor over the given store.
func New(store ledger.EntryStore, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = 30 * time.Second
	}
	return &Auditor{store: store, cfg: cfg, logger: logger}
}

// SetAlert configures the corruption alert callback.
func (a *Auditor) SetAlert(fn AlertFunc) { a.onAlert = fn }

// SetMetricsRecord configures the metrics recording callback.
func (a *Auditor) SetMetricsRecord(fn MetricsRecordFunc) { a.onMetrics = fn }

// Start runs the audit loop until quit is signalled. It returns immediately
// when the configured interval is zero.
func (a *Auditor) Start(quit <-chan os.Signal) {
	if a.cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CheckTimeout)
			a.RunOnce(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// RunOnce reads a consistent snapshot, walks the chain, and reports the
// outcome. Returns the validation result and the chain length.
func (a *Auditor) RunOnce(ctx context.Context) (ledger.ValidationResult, int) {
	entries, err := a.store.ReadAllOrdered(ctx)
	if err != nil {
		a.logger.Warn("integrity audit: read ledger", zap.Error(err))
		return ledger.ValidationResult{Valid: false, Index: -1}, 0
	}

	res := ledger.ValidateChain(entries)
	if a.onMetrics != nil {
		a.onMetrics(res.Valid, len(entries))
	}

	a.mu.Lock()
	wasCorrupted := a.corrupted
	a.corrupted = !res.Valid
	a.mu.Unlock()

	switch {
	case !res.Valid && !wasCorrupted:
		// Transition: intact → corrupted.
		a.logger.Error("integrity audit FAILED",
			zap.String("reason", string(res.Reason)),
			zap.Int("index", res.Index),
		)
		if a.onAlert != nil {
			a.onAlert(ctx, res)
		}
	case !res.Valid:
		a.logger.Error("integrity audit still failing",
			zap.String("reason", string(res.Reason)),
			zap.Int("index", res.Index),
		)
	case wasCorrupted:
		a.logger.Warn("integrity audit recovered", zap.Int("entries", len(entries)))
	default:
		a.logger.Debug("integrity audit passed", zap.Int("entries", len(entries)))
	}
	return res, len(entries)
}
