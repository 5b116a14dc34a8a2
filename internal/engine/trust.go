package engine

import (
	"context"
	"errors"

	"github.com/openwitness/chronicle/internal/domain"
	"github.com/openwitness/chronicle/internal/repository"
)

// adjustTrust applies a clamped trust delta. A missing session is a no-op,
// not an error.
func adjustTrust(ctx context.Context, st repository.Store, sessionID string, delta int) error {
	sess, err := st.Sessions().Get(ctx, sessionID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return st.Sessions().Update(ctx, sess.WithTrustDelta(delta))
}

// recordVerification increments the session's lifetime verification counter.
// A missing session is a no-op.
func recordVerification(ctx context.Context, st repository.Store, sessionID string) error {
	sess, err := st.Sessions().Get(ctx, sessionID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	sess.VerificationCount++
	return st.Sessions().Update(ctx, sess)
}

// UpsertSession creates the session if absent, or refreshes its fingerprint
// and ip hash if present. It never touches lastSeen, which anchors the rate
// window.
func (e *Engine) UpsertSession(ctx context.Context, sessionID, fingerprint, ipHash string) (domain.Session, error) {
	if sessionID == "" {
		return domain.Session{}, &domain.ValidationError{Field: "session_id", Message: "must not be empty"}
	}

	var out domain.Session
	err := e.store.WithinTx(ctx, func(st repository.Store) error {
		sess, err := st.Sessions().Get(ctx, sessionID)
		if err != nil {
			var notFound *domain.NotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
			out = domain.NewSession(sessionID, fingerprint, ipHash)
			return st.Sessions().Insert(ctx, out)
		}

		sess.Fingerprint = fingerprint
		sess.IPHash = ipHash
		out = sess
		return st.Sessions().Update(ctx, sess)
	})
	return out, err
}

// GetSession returns the session record.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return e.store.Sessions().Get(ctx, sessionID)
}
