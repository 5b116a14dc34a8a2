package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openwitness/chronicle/internal/domain"
)

type proposalRepository struct {
	q querier
}

const proposalColumns = `id, target_kind, target_id, proposed_changes, reason, proposed_by_session,
required_verifications, current_verifications, verified_by_sessions, status, proposed_at, expires_at, target_snapshot`

func (r *proposalRepository) Insert(ctx context.Context, p domain.Proposal) error {
	changesJSON, err := p.GetChangesAsJSONB()
	if err != nil {
		return fmt.Errorf("failed to marshal proposed changes: %w", err)
	}
	snapshotJSON, err := json.Marshal(p.TargetSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal target snapshot: %w", err)
	}

	_, err = r.q.Exec(ctx, `
INSERT INTO proposals (id, target_kind, target_id, proposed_changes, reason, proposed_by_session,
	required_verifications, current_verifications, verified_by_sessions, status, proposed_at, expires_at, target_snapshot)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`, p.ID, p.TargetKind, p.TargetID, changesJSON, p.Reason, p.ProposedBySession,
		p.RequiredVerifications, p.CurrentVerifications, p.VerifiedBySessions, p.Status, p.ProposedAt, p.ExpiresAt, snapshotJSON)
	if err != nil {
		return fmt.Errorf("failed to insert proposal: %w", err)
	}
	return nil
}

func (r *proposalRepository) Get(ctx context.Context, id uuid.UUID) (domain.Proposal, error) {
	row := r.q.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)

	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Proposal{}, &domain.NotFoundError{Resource: "proposal", ID: id.String()}
		}
		return domain.Proposal{}, fmt.Errorf("failed to get proposal: %w", err)
	}
	return p, nil
}

func (r *proposalRepository) Update(ctx context.Context, p domain.Proposal) error {
	tag, err := r.q.Exec(ctx, `
UPDATE proposals
SET current_verifications = $2, verified_by_sessions = $3, status = $4
WHERE id = $1
`, p.ID, p.CurrentVerifications, p.VerifiedBySessions, p.Status)
	if err != nil {
		return fmt.Errorf("failed to update proposal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Resource: "proposal", ID: p.ID.String()}
	}
	return nil
}

func (r *proposalRepository) ListPendingForTarget(ctx context.Context, kind domain.Kind, targetIDs []uuid.UUID) ([]domain.Proposal, error) {
	if len(targetIDs) == 0 {
		return []domain.Proposal{}, nil
	}

	rows, err := r.q.Query(ctx, `
SELECT `+proposalColumns+`
FROM proposals
WHERE target_kind = $1 AND status = $2 AND target_id = ANY($3)
ORDER BY proposed_at
`, kind, domain.ProposalStatusPending, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending proposals: %w", err)
	}
	defer rows.Close()

	return collectProposals(rows)
}

func (r *proposalRepository) ListByStatus(ctx context.Context, status domain.ProposalStatus, limit, offset int) ([]domain.Proposal, error) {
	rows, err := r.q.Query(ctx, `
SELECT `+proposalColumns+`
FROM proposals
WHERE status = $1
ORDER BY proposed_at DESC
LIMIT $2 OFFSET $3
`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals by status: %w", err)
	}
	defer rows.Close()

	return collectProposals(rows)
}

func collectProposals(rows pgx.Rows) ([]domain.Proposal, error) {
	proposals := []domain.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating proposals: %w", err)
	}
	return proposals, nil
}

func scanProposal(row pgx.Row) (domain.Proposal, error) {
	var (
		p            domain.Proposal
		changesJSON  json.RawMessage
		snapshotJSON json.RawMessage
	)
	if err := row.Scan(&p.ID, &p.TargetKind, &p.TargetID, &changesJSON, &p.Reason, &p.ProposedBySession,
		&p.RequiredVerifications, &p.CurrentVerifications, &p.VerifiedBySessions, &p.Status,
		&p.ProposedAt, &p.ExpiresAt, &snapshotJSON); err != nil {
		return domain.Proposal{}, err
	}

	changes, err := domain.FromJSONBFields(changesJSON)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("failed to decode proposed changes for %s: %w", p.ID, err)
	}
	p.ProposedChanges = changes

	if len(snapshotJSON) > 0 {
		snapshot, err := domain.FromJSONBFields(snapshotJSON)
		if err != nil {
			return domain.Proposal{}, fmt.Errorf("failed to decode target snapshot for %s: %w", p.ID, err)
		}
		p.TargetSnapshot = snapshot
	}
	return p, nil
}
