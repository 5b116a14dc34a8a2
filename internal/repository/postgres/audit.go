package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openwitness/chronicle/internal/domain"
)

type auditRepository struct {
	q querier
}

func (r *auditRepository) Append(ctx context.Context, e domain.AuditEntry) error {
	changesJSON, err := e.GetChangesAsJSONB()
	if err != nil {
		return fmt.Errorf("failed to marshal audit changes: %w", err)
	}

	_, err = r.q.Exec(ctx, `
INSERT INTO audit_log (id, action, collection, document_id, changes, session_id, ip_hash, user_agent, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, e.ID, e.Action, e.Collection, e.DocumentID, changesJSON, e.SessionID, e.IPHash, e.UserAgent, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.q.Query(ctx, `
SELECT id, action, collection, document_id, changes, session_id, ip_hash, user_agent, reason, created_at
FROM audit_log
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var (
			e           domain.AuditEntry
			changesJSON json.RawMessage
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Collection, &e.DocumentID, &changesJSON,
			&e.SessionID, &e.IPHash, &e.UserAgent, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.Changes, err = domain.FromJSONBFields(changesJSON); err != nil {
			return nil, fmt.Errorf("failed to decode audit changes for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return entries, nil
}
