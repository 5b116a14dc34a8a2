package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/openwitness/chronicle/internal/domain"
	"github.com/openwitness/chronicle/internal/repository"
	"github.com/openwitness/chronicle/internal/schema/validator"
)

// Propose opens a pending update against the record that targetID resolves
// to. The quorum is fixed now from the proposer's trust score; a field that
// overlaps any pending proposal on the same record is rejected outright, so
// at most one in-flight proposal exists per field.
func (e *Engine) Propose(ctx context.Context, kind domain.Kind, targetID uuid.UUID, changes map[string]any, reason string, actor domain.Actor) (domain.Proposal, error) {
	desc, ok := domain.DescriptorFor(kind)
	if !ok {
		return domain.Proposal{}, &domain.NotFoundError{Resource: "collection", ID: string(kind)}
	}

	var out domain.Proposal
	err := e.store.WithinTx(ctx, func(st repository.Store) error {
		// The rate gate runs before validation so a capped session always
		// sees the rate-limit failure. A validation failure aborts the
		// transaction, rolling the increment back with it.
		if err := e.checkAndRecord(ctx, st, actor.SessionID, e.cfg.MutationLimit); err != nil {
			return err
		}
		if strings.TrimSpace(reason) == "" {
			return &domain.ValidationError{Field: "reason", Message: "must not be empty"}
		}
		if err := validator.ValidateChanges(desc, changes); err != nil {
			return err
		}

		cur, err := resolveCurrent(ctx, st, targetID)
		if err != nil {
			return err
		}
		if cur == nil || !cur.CurrentVersion || cur.Kind != kind {
			return &domain.NotFoundError{Resource: "record", ID: targetID.String()}
		}

		required := quorumForProposer(ctx, st, actor.SessionID)

		pending, err := st.Proposals().ListPendingForTarget(ctx, kind, chainIDs(cur))
		if err != nil {
			return err
		}
		if conflicts := domain.ConflictingFields(changes, pending); len(conflicts) > 0 {
			return &domain.ConflictError{Fields: conflicts}
		}

		out = domain.NewProposal(*cur, changes, reason, actor.SessionID, required, e.cfg.ProposalExpiry)
		if err := st.Proposals().Insert(ctx, out); err != nil {
			return err
		}
		if err := st.Audit().Append(ctx, domain.NewAuditEntry(domain.AuditActionUpdate, string(kind), cur.ID.String(), changes, actor, reason)); err != nil {
			return err
		}
		return adjustTrust(ctx, st, actor.SessionID, trustDeltaContribute)
	})
	if err != nil {
		return domain.Proposal{}, err
	}
	return out, nil
}

// Verify records one session's vote on a pending proposal and, when the vote
// completes the quorum, applies the proposed changes to the record's current
// state in the same transaction. The status guard makes a racing double
// approval impossible: only a pending proposal can transition, and the
// transition commits atomically with the version-store mutation.
func (e *Engine) Verify(ctx context.Context, proposalID uuid.UUID, actor domain.Actor) (domain.Proposal, error) {
	var out domain.Proposal
	err := e.store.WithinTx(ctx, func(st repository.Store) error {
		if err := e.checkAndRecord(ctx, st, actor.SessionID, e.cfg.MutationLimit); err != nil {
			return err
		}

		p, err := st.Proposals().Get(ctx, proposalID)
		if err != nil {
			return err
		}
		if p.Status != domain.ProposalStatusPending {
			return &domain.InvalidStateError{ProposalID: p.ID.String(), Expected: domain.ProposalStatusPending, Actual: p.Status}
		}
		if p.HasVerified(actor.SessionID) {
			return &domain.DuplicateVerificationError{ProposalID: p.ID.String(), SessionID: actor.SessionID}
		}

		p = p.WithVerification(actor.SessionID)

		if err := st.Audit().Append(ctx, domain.NewAuditEntry(domain.AuditActionVerify, "proposals", p.ID.String(), p.ProposedChanges, actor, "")); err != nil {
			return err
		}
		if err := recordVerification(ctx, st, actor.SessionID); err != nil {
			return err
		}
		if err := adjustTrust(ctx, st, actor.SessionID, trustDeltaVerify); err != nil {
			return err
		}

		if p.QuorumReached() {
			// Changes apply to the current target state, not the snapshot
			// captured at propose time; the conflict rule guarantees disjoint
			// fields against anything approved in between.
			if _, err := applyApprovedChange(ctx, st, p.TargetID, p.ProposedChanges, p.ProposedBySession, p.CurrentVerifications); err != nil {
				return fmt.Errorf("approving proposal %s: %w", p.ID, err)
			}
			p.Status = domain.ProposalStatusApproved
		}

		if err := st.Proposals().Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return domain.Proposal{}, err
	}
	return out, nil
}

// Reject closes a pending proposal. Any session may reject; the trust
// penalty lands on the rejector.
func (e *Engine) Reject(ctx context.Context, proposalID uuid.UUID, reason string, actor domain.Actor) (domain.Proposal, error) {
	var out domain.Proposal
	err := e.store.WithinTx(ctx, func(st repository.Store) error {
		p, err := st.Proposals().Get(ctx, proposalID)
		if err != nil {
			return err
		}
		if p.Status != domain.ProposalStatusPending {
			return &domain.InvalidStateError{ProposalID: p.ID.String(), Expected: domain.ProposalStatusPending, Actual: p.Status}
		}

		p.Status = domain.ProposalStatusRejected
		if err := st.Proposals().Update(ctx, p); err != nil {
			return err
		}
		if err := st.Audit().Append(ctx, domain.NewAuditEntry(domain.AuditActionReject, "proposals", p.ID.String(), nil, actor, reason)); err != nil {
			return err
		}
		if err := adjustTrust(ctx, st, actor.SessionID, trustDeltaReject); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return domain.Proposal{}, err
	}
	return out, nil
}

// GetProposal returns a proposal by id.
func (e *Engine) GetProposal(ctx context.Context, proposalID uuid.UUID) (domain.Proposal, error) {
	return e.store.Proposals().Get(ctx, proposalID)
}

// ListProposals returns proposals in the given status, newest first.
func (e *Engine) ListProposals(ctx context.Context, status domain.ProposalStatus, page int) ([]domain.Proposal, error) {
	if page < 1 {
		page = 1
	}
	return e.store.Proposals().ListByStatus(ctx, status, e.cfg.PageSize, (page-1)*e.cfg.PageSize)
}

// quorumForProposer sizes the quorum from the proposer's trust score,
// defaulting to the medium quorum when the session cannot be found.
func quorumForProposer(ctx context.Context, st repository.Store, sessionID string) int {
	sess, err := st.Sessions().Get(ctx, sessionID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return domain.QuorumFor(0, false)
		}
		// Treat a read failure like an unknown proposer rather than failing
		// the proposal.
		return domain.QuorumFor(0, false)
	}
	return domain.QuorumFor(sess.TrustScore, true)
}

// chainIDs returns the current version's id plus its full ancestry, so the
// pending-proposal scan covers proposals opened against older versions of
// the same record.
func chainIDs(cur *domain.RecordVersion) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(cur.PreviousVersions)+1)
	ids = append(ids, cur.ID)
	ids = append(ids, cur.PreviousVersions...)
	return ids
}
