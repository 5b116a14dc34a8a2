package engine

import (
	"context"

	"github.com/openwitness/chronicle/internal/domain"
	"github.com/openwitness/chronicle/internal/repository"
)

// checkAndRecord enforces the sliding window against limit and records the
// write. The counter resets once a full window has elapsed since the
// session's last write; on success the increment and the lastSeen update
// persist together. A capped session is not incremented.
func (e *Engine) checkAndRecord(ctx context.Context, st repository.Store, sessionID string, limit int) error {
	sess, err := st.Sessions().Get(ctx, sessionID)
	if err != nil {
		return err
	}

	now := e.now()
	count := sess.ContributionCount
	if now.Sub(sess.LastSeen) > e.cfg.RateWindow {
		count = 0
	}
	if count >= limit {
		return &domain.RateLimitError{SessionID: sessionID, Limit: limit, Window: e.cfg.RateWindow}
	}

	sess.ContributionCount = count + 1
	sess.LastSeen = now
	return st.Sessions().Update(ctx, sess)
}

// CanContribute runs the bootstrap-limiter window computation without
// mutating anything. It exists for UI display and must never increment.
func (e *Engine) CanContribute(ctx context.Context, sessionID string) (bool, error) {
	sess, err := e.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return false, err
	}

	count := sess.ContributionCount
	if e.now().Sub(sess.LastSeen) > e.cfg.RateWindow {
		count = 0
	}
	return count < e.cfg.BootstrapLimit, nil
}

// RecordContribution is the bootstrap-path write gate (the stricter limit).
func (e *Engine) RecordContribution(ctx context.Context, sessionID string) error {
	return e.store.WithinTx(ctx, func(st repository.Store) error {
		return e.checkAndRecord(ctx, st, sessionID, e.cfg.BootstrapLimit)
	})
}
