package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/openwitness/chronicle/internal/domain"
)

type sessionRepository struct {
	q querier
}

func (r *sessionRepository) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	var s domain.Session
	err := r.q.QueryRow(ctx, `
SELECT session_id, fingerprint, first_seen, last_seen, contribution_count, verification_count, trust_score, ip_hash
FROM sessions
WHERE session_id = $1
`, sessionID).Scan(&s.SessionID, &s.Fingerprint, &s.FirstSeen, &s.LastSeen,
		&s.ContributionCount, &s.VerificationCount, &s.TrustScore, &s.IPHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, &domain.NotFoundError{Resource: "session", ID: sessionID}
		}
		return domain.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (r *sessionRepository) Insert(ctx context.Context, s domain.Session) error {
	_, err := r.q.Exec(ctx, `
INSERT INTO sessions (session_id, fingerprint, first_seen, last_seen, contribution_count, verification_count, trust_score, ip_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, s.SessionID, s.Fingerprint, s.FirstSeen, s.LastSeen, s.ContributionCount, s.VerificationCount, s.TrustScore, s.IPHash)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Update(ctx context.Context, s domain.Session) error {
	tag, err := r.q.Exec(ctx, `
UPDATE sessions
SET fingerprint = $2, last_seen = $3, contribution_count = $4, verification_count = $5, trust_score = $6, ip_hash = $7
WHERE session_id = $1
`, s.SessionID, s.Fingerprint, s.LastSeen, s.ContributionCount, s.VerificationCount, s.TrustScore, s.IPHash)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Resource: "session", ID: s.SessionID}
	}
	return nil
}
