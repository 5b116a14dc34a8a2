// Package memory implements the repository contract in process memory.
// WithinTx clones the state, runs the callback against the clone, and swaps
// it in only on success; a single mutex serializes transactions, which gives
// the engine the isolation it assumes from a real backend. It backs the
// engine tests and works as a zero-dependency backend for local use.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/openwitness/chronicle/internal/domain"
	"github.com/openwitness/chronicle/internal/repository"
)

type state struct {
	records   map[uuid.UUID]domain.RecordVersion
	proposals map[uuid.UUID]domain.Proposal
	sessions  map[string]domain.Session
	audit     []domain.AuditEntry
}

func newState() *state {
	return &state{
		records:   map[uuid.UUID]domain.RecordVersion{},
		proposals: map[uuid.UUID]domain.Proposal{},
		sessions:  map[string]domain.Session{},
	}
}

// clone copies the map headers. Stored values are treated as immutable:
// every mutation replaces a whole entry, so entry-level copying is enough
// for snapshot isolation.
func (s *state) clone() *state {
	out := &state{
		records:   make(map[uuid.UUID]domain.RecordVersion, len(s.records)),
		proposals: make(map[uuid.UUID]domain.Proposal, len(s.proposals)),
		sessions:  make(map[string]domain.Session, len(s.sessions)),
		audit:     make([]domain.AuditEntry, len(s.audit)),
	}
	for k, v := range s.records {
		out.records[k] = v
	}
	for k, v := range s.proposals {
		out.proposals[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	copy(out.audit, s.audit)
	return out
}

// Store implements repository.Store in memory.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) Records() repository.RecordRepository {
	return &recordRepository{acquire: s.acquire}
}

func (s *Store) Proposals() repository.ProposalRepository {
	return &proposalRepository{acquire: s.acquire}
}

func (s *Store) Sessions() repository.SessionRepository {
	return &sessionRepository{acquire: s.acquire}
}

func (s *Store) Audit() repository.AuditRepository {
	return &auditRepository{acquire: s.acquire}
}

// acquire runs op against the live state with the store lock held.
func (s *Store) acquire(op func(*state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return op(s.state)
}

// WithinTx executes fn against a clone of the state and commits it by
// swapping the clone in. An error discards the clone, so nothing partial is
// ever observed.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&txStore{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// txStore is a Store view bound to an in-flight transaction. The owning
// Store's mutex is already held, so operations touch the working state
// directly.
type txStore struct {
	state *state
}

func (t *txStore) acquire(op func(*state) error) error {
	return op(t.state)
}

func (t *txStore) Records() repository.RecordRepository {
	return &recordRepository{acquire: t.acquire}
}

func (t *txStore) Proposals() repository.ProposalRepository {
	return &proposalRepository{acquire: t.acquire}
}

func (t *txStore) Sessions() repository.SessionRepository {
	return &sessionRepository{acquire: t.acquire}
}

func (t *txStore) Audit() repository.AuditRepository {
	return &auditRepository{acquire: t.acquire}
}

func (t *txStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return fn(t)
}

type recordRepository struct {
	acquire func(func(*state) error) error
}

func (r *recordRepository) Insert(ctx context.Context, v domain.RecordVersion) error {
	return r.acquire(func(st *state) error {
		st.records[v.ID] = v
		return nil
	})
}

func (r *recordRepository) Get(ctx context.Context, id uuid.UUID) (domain.RecordVersion, error) {
	var out domain.RecordVersion
	err := r.acquire(func(st *state) error {
		v, ok := st.records[id]
		if !ok {
			return &domain.NotFoundError{Resource: "record", ID: id.String()}
		}
		out = v
		return nil
	})
	return out, err
}

func (r *recordRepository) Update(ctx context.Context, v domain.RecordVersion) error {
	return r.acquire(func(st *state) error {
		if _, ok := st.records[v.ID]; !ok {
			return &domain.NotFoundError{Resource: "record", ID: v.ID.String()}
		}
		st.records[v.ID] = v
		return nil
	})
}

func (r *recordRepository) ListCurrent(ctx context.Context, kind domain.Kind, searchField, query string, limit, offset int) ([]domain.RecordVersion, int, error) {
	matches := []domain.RecordVersion{}
	err := r.acquire(func(st *state) error {
		for _, v := range st.records {
			if v.Kind != kind || !v.CurrentVersion {
				continue
			}
			if query != "" {
				text, _ := v.Fields[searchField].(string)
				if !strings.Contains(strings.ToLower(text), strings.ToLower(query)) {
					continue
				}
			}
			matches = append(matches, v)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := len(matches)
	if offset >= len(matches) {
		return []domain.RecordVersion{}, total, nil
	}
	matches = matches[offset:]
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, total, nil
}

func (r *recordRepository) CountCurrentByFieldValue(ctx context.Context, kind domain.Kind, field string) (map[string]int, error) {
	counts := make(map[string]int)
	err := r.acquire(func(st *state) error {
		for _, v := range st.records {
			if v.Kind != kind || !v.CurrentVersion {
				continue
			}
			value, _ := v.Fields[field].(string)
			counts[value]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

type proposalRepository struct {
	acquire func(func(*state) error) error
}

func (r *proposalRepository) Insert(ctx context.Context, p domain.Proposal) error {
	return r.acquire(func(st *state) error {
		st.proposals[p.ID] = p
		return nil
	})
}

func (r *proposalRepository) Get(ctx context.Context, id uuid.UUID) (domain.Proposal, error) {
	var out domain.Proposal
	err := r.acquire(func(st *state) error {
		p, ok := st.proposals[id]
		if !ok {
			return &domain.NotFoundError{Resource: "proposal", ID: id.String()}
		}
		out = p
		return nil
	})
	return out, err
}

func (r *proposalRepository) Update(ctx context.Context, p domain.Proposal) error {
	return r.acquire(func(st *state) error {
		if _, ok := st.proposals[p.ID]; !ok {
			return &domain.NotFoundError{Resource: "proposal", ID: p.ID.String()}
		}
		st.proposals[p.ID] = p
		return nil
	})
}

func (r *proposalRepository) ListPendingForTarget(ctx context.Context, kind domain.Kind, targetIDs []uuid.UUID) ([]domain.Proposal, error) {
	wanted := make(map[uuid.UUID]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		wanted[id] = struct{}{}
	}

	matches := []domain.Proposal{}
	err := r.acquire(func(st *state) error {
		for _, p := range st.proposals {
			if p.TargetKind != kind || p.Status != domain.ProposalStatusPending {
				continue
			}
			if _, ok := wanted[p.TargetID]; !ok {
				continue
			}
			matches = append(matches, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ProposedAt.Before(matches[j].ProposedAt)
	})
	return matches, nil
}

func (r *proposalRepository) ListByStatus(ctx context.Context, status domain.ProposalStatus, limit, offset int) ([]domain.Proposal, error) {
	matches := []domain.Proposal{}
	err := r.acquire(func(st *state) error {
		for _, p := range st.proposals {
			if p.Status == status {
				matches = append(matches, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ProposedAt.After(matches[j].ProposedAt)
	})

	if offset >= len(matches) {
		return []domain.Proposal{}, nil
	}
	matches = matches[offset:]
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}

type sessionRepository struct {
	acquire func(func(*state) error) error
}

func (r *sessionRepository) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	var out domain.Session
	err := r.acquire(func(st *state) error {
		s, ok := st.sessions[sessionID]
		if !ok {
			return &domain.NotFoundError{Resource: "session", ID: sessionID}
		}
		out = s
		return nil
	})
	return out, err
}

func (r *sessionRepository) Insert(ctx context.Context, s domain.Session) error {
	return r.acquire(func(st *state) error {
		st.sessions[s.SessionID] = s
		return nil
	})
}

func (r *sessionRepository) Update(ctx context.Context, s domain.Session) error {
	return r.acquire(func(st *state) error {
		if _, ok := st.sessions[s.SessionID]; !ok {
			return &domain.NotFoundError{Resource: "session", ID: s.SessionID}
		}
		st.sessions[s.SessionID] = s
		return nil
	})
}

type auditRepository struct {
	acquire func(func(*state) error) error
}

func (r *auditRepository) Append(ctx context.Context, e domain.AuditEntry) error {
	return r.acquire(func(st *state) error {
		st.audit = append(st.audit, e)
		return nil
	})
}

func (r *auditRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.AuditEntry, error) {
	matches := []domain.AuditEntry{}
	err := r.acquire(func(st *state) error {
		for i := len(st.audit) - 1; i >= 0; i-- {
			if st.audit[i].SessionID != sessionID {
				continue
			}
			matches = append(matches, st.audit[i])
			if limit > 0 && len(matches) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}
