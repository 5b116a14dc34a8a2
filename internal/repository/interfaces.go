// Package repository defines the storage contract the engine runs against.
// Implementations must provide serializable-or-stronger transaction isolation
// through WithinTx; the engine does no locking of its own.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/openwitness/chronicle/internal/domain"
)

// RecordRepository persists immutable record versions. Update exists only so
// the engine can flip a superseded version's current pointer; field data is
// never rewritten in place.
type RecordRepository interface {
	Insert(ctx context.Context, v domain.RecordVersion) error
	Get(ctx context.Context, id uuid.UUID) (domain.RecordVersion, error)
	Update(ctx context.Context, v domain.RecordVersion) error
	// ListCurrent returns current versions of kind, newest first. When query
	// is non-empty it matches case-insensitively against searchField. A
	// limit of 0 means unbounded. The second return value is the total count
	// before limit/offset.
	ListCurrent(ctx context.Context, kind domain.Kind, searchField, query string, limit, offset int) ([]domain.RecordVersion, int, error)
	// CountCurrentByFieldValue groups current versions of kind by the given
	// field's value. Missing values group under the empty string.
	CountCurrentByFieldValue(ctx context.Context, kind domain.Kind, field string) (map[string]int, error)
}

// ProposalRepository persists pending updates and their terminal outcomes.
type ProposalRepository interface {
	Insert(ctx context.Context, p domain.Proposal) error
	Get(ctx context.Context, id uuid.UUID) (domain.Proposal, error)
	Update(ctx context.Context, p domain.Proposal) error
	// ListPendingForTarget returns pending proposals whose target id is any of
	// targetIDs. Callers pass the whole version chain of a record so that
	// field-conflict exclusion spans supersessions.
	ListPendingForTarget(ctx context.Context, kind domain.Kind, targetIDs []uuid.UUID) ([]domain.Proposal, error)
	ListByStatus(ctx context.Context, status domain.ProposalStatus, limit, offset int) ([]domain.Proposal, error)
}

// SessionRepository persists pseudonymous actor records.
type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	Insert(ctx context.Context, s domain.Session) error
	Update(ctx context.Context, s domain.Session) error
}

// AuditRepository is the write-only action log.
type AuditRepository interface {
	Append(ctx context.Context, e domain.AuditEntry) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.AuditEntry, error)
}

// Store bundles the repositories with transactional execution. The Store
// passed to a WithinTx callback is bound to the transaction; calling WithinTx
// on it again joins the same transaction.
type Store interface {
	Records() RecordRepository
	Proposals() ProposalRepository
	Sessions() SessionRepository
	Audit() AuditRepository
	WithinTx(ctx context.Context, fn func(Store) error) error
}
