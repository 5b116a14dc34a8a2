// Package engine implements the versioned-record store, the proposal
// consensus state machine, the sliding-window rate limiters and the trust
// ledger. Every multi-step mutation runs inside a single store transaction.
package engine

import (
	"time"

	"github.com/openwitness/chronicle/internal/repository"
)

// Trust deltas applied by the engine. The rejection penalty lands on the
// rejector.
const (
	trustDeltaContribute = 1
	trustDeltaVerify     = 1
	trustDeltaReject     = -2
)

// Config carries the engine's tunable thresholds.
type Config struct {
	// BootstrapLimit caps writes through the session-bootstrap path.
	BootstrapLimit int
	// MutationLimit caps writes through content-creation mutations. The two
	// limiters share the per-session window counter but gate different call
	// paths and must stay separate.
	MutationLimit int
	// RateWindow is the sliding window both limiters evaluate against.
	RateWindow time.Duration
	// ProposalExpiry sets expiresAt on new proposals. Advisory only.
	ProposalExpiry time.Duration
	// PageSize is the default page size for paginated listings.
	PageSize int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		BootstrapLimit: 10,
		MutationLimit:  50,
		RateWindow:     time.Hour,
		ProposalExpiry: 7 * 24 * time.Hour,
		PageSize:       20,
	}
}

// Engine exposes the write contract over a repository.Store.
type Engine struct {
	store repository.Store
	cfg   Config
	now   func() time.Time
}

// New creates an engine over store.
func New(store repository.Store, cfg Config) *Engine {
	return &Engine{store: store, cfg: cfg, now: time.Now}
}

// Config returns the thresholds the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}
