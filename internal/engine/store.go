package engine

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/openwitness/chronicle/internal/domain"
	"github.com/openwitness/chronicle/internal/repository"
	"github.com/openwitness/chronicle/internal/schema/validator"
)

// CreateRecord inserts the first version of a brand-new logical record. The
// rate gate, the audit append and the trust reward commit atomically with
// the insert.
func (e *Engine) CreateRecord(ctx context.Context, kind domain.Kind, fields map[string]any, actor domain.Actor, reason string) (domain.RecordVersion, error) {
	desc, ok := domain.DescriptorFor(kind)
	if !ok {
		return domain.RecordVersion{}, &domain.NotFoundError{Resource: "collection", ID: string(kind)}
	}

	var created domain.RecordVersion
	err := e.store.WithinTx(ctx, func(st repository.Store) error {
		// Rate gate first, validation second; see Propose.
		if err := e.checkAndRecord(ctx, st, actor.SessionID, e.cfg.MutationLimit); err != nil {
			return err
		}
		if strings.TrimSpace(reason) == "" {
			return &domain.ValidationError{Field: "reason", Message: "must not be empty"}
		}
		if err := validator.ValidateCreate(desc, fields); err != nil {
			return err
		}

		created = domain.NewRecordVersion(kind, fields, actor.SessionID)
		if err := st.Records().Insert(ctx, created); err != nil {
			return err
		}
		if err := st.Audit().Append(ctx, domain.NewAuditEntry(domain.AuditActionCreate, string(kind), created.ID.String(), fields, actor, reason)); err != nil {
			return err
		}
		return adjustTrust(ctx, st, actor.SessionID, trustDeltaContribute)
	})
	if err != nil {
		return domain.RecordVersion{}, err
	}
	return created, nil
}

// ResolveCurrent follows supersededBy links from any version id to the
// current version. It returns nil when the starting id does not exist.
func (e *Engine) ResolveCurrent(ctx context.Context, id uuid.UUID) (*domain.RecordVersion, error) {
	return resolveCurrent(ctx, e.store, id)
}

func resolveCurrent(ctx context.Context, st repository.Store, id uuid.UUID) (*domain.RecordVersion, error) {
	v, err := st.Records().Get(ctx, id)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}

	hops := 0
	for !v.CurrentVersion && v.SupersededBy != nil {
		if hops >= domain.MaxResolveHops {
			log.Printf("[ENGINE] resolve chain from %s exceeded %d hops, returning last resolved version %s", id, domain.MaxResolveHops, v.ID)
			break
		}
		next, err := st.Records().Get(ctx, *v.SupersededBy)
		if err != nil {
			var notFound *domain.NotFoundError
			if errors.As(err, &notFound) {
				// Dangling pointer. Degraded-but-safe: hand back what resolved.
				log.Printf("[ENGINE] superseded pointer %s on version %s is dangling", v.SupersededBy, v.ID)
				break
			}
			return nil, err
		}
		v = next
		hops++
	}
	return &v, nil
}

// GetHistory resolves the current version and dereferences its ancestry in
// order, oldest first. A historical id that fails to resolve is dropped
// rather than failing the whole query.
func (e *Engine) GetHistory(ctx context.Context, id uuid.UUID) (*domain.RecordHistory, error) {
	cur, err := e.ResolveCurrent(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, &domain.NotFoundError{Resource: "record", ID: id.String()}
	}

	history := []domain.RecordVersion{}
	for _, prevID := range cur.PreviousVersions {
		v, err := e.store.Records().Get(ctx, prevID)
		if err != nil {
			var notFound *domain.NotFoundError
			if errors.As(err, &notFound) {
				log.Printf("[ENGINE] history entry %s of record %s failed to resolve, dropping", prevID, cur.ID)
				continue
			}
			return nil, err
		}
		history = append(history, v)
	}

	return &domain.RecordHistory{Current: *cur, History: history}, nil
}

// applyApprovedChange is the only mutation path into a version chain besides
// CreateRecord. It inserts the successor and flips the old current version's
// pointer in the caller's transaction. verifications carries the quorum size
// onto the new version's informational counter.
func applyApprovedChange(ctx context.Context, st repository.Store, targetID uuid.UUID, changes map[string]any, authorSession string, verifications int) (domain.RecordVersion, error) {
	cur, err := resolveCurrent(ctx, st, targetID)
	if err != nil {
		return domain.RecordVersion{}, err
	}
	if cur == nil || !cur.CurrentVersion {
		return domain.RecordVersion{}, &domain.NotFoundError{Resource: "record", ID: targetID.String()}
	}

	next := cur.Successor(changes, authorSession)
	next.VerificationCount = verifications
	if err := st.Records().Insert(ctx, next); err != nil {
		return domain.RecordVersion{}, err
	}
	if err := st.Records().Update(ctx, cur.Superseded(next.ID)); err != nil {
		return domain.RecordVersion{}, err
	}
	return next, nil
}
