package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ProposalStatus represents the lifecycle state of a pending update.
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusApproved ProposalStatus = "approved"
	ProposalStatusRejected ProposalStatus = "rejected"
	ProposalStatusExpired  ProposalStatus = "expired"
)

// Terminal reports whether no further transition may leave s.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalStatusApproved || s == ProposalStatusRejected || s == ProposalStatusExpired
}

// ParseProposalStatus maps a raw string onto a known status.
func ParseProposalStatus(raw string) (ProposalStatus, bool) {
	switch s := ProposalStatus(raw); s {
	case ProposalStatusPending, ProposalStatusApproved, ProposalStatusRejected, ProposalStatusExpired:
		return s, true
	default:
		return "", false
	}
}

// Proposal is a suggested mutation to one field set of one record, applied
// only once a quorum of distinct sessions has verified it.
type Proposal struct {
	ID                    uuid.UUID      `json:"id"`
	TargetKind            Kind           `json:"target_kind"`
	TargetID              uuid.UUID      `json:"target_id"`
	ProposedChanges       map[string]any `json:"proposed_changes"`
	Reason                string         `json:"reason"`
	ProposedBySession     string         `json:"proposed_by_session"`
	RequiredVerifications int            `json:"required_verifications"`
	CurrentVerifications  int            `json:"current_verifications"`
	VerifiedBySessions    []string       `json:"verified_by_sessions"`
	Status                ProposalStatus `json:"status"`
	ProposedAt            time.Time      `json:"proposed_at"`
	// ExpiresAt is advisory metadata; nothing sweeps pending proposals past it.
	ExpiresAt      time.Time      `json:"expires_at"`
	TargetSnapshot map[string]any `json:"target_snapshot"`
}

// NewProposal creates a pending proposal against the current version of a
// record, capturing a snapshot of its fields at proposal time.
func NewProposal(target RecordVersion, changes map[string]any, reason, proposerSession string, required int, expiry time.Duration) Proposal {
	now := time.Now()
	return Proposal{
		ID:                    uuid.New(),
		TargetKind:            target.Kind,
		TargetID:              target.ID,
		ProposedChanges:       copyFields(changes),
		Reason:                reason,
		ProposedBySession:     proposerSession,
		RequiredVerifications: required,
		VerifiedBySessions:    []string{},
		Status:                ProposalStatusPending,
		ProposedAt:            now,
		ExpiresAt:             now.Add(expiry),
		TargetSnapshot:        copyFields(target.Fields),
	}
}

// HasVerified reports whether session already voted on p.
func (p Proposal) HasVerified(session string) bool {
	for _, s := range p.VerifiedBySessions {
		if s == session {
			return true
		}
	}
	return false
}

// WithVerification returns a copy of p with session's vote recorded.
func (p Proposal) WithVerification(session string) Proposal {
	out := p
	out.VerifiedBySessions = make([]string, 0, len(p.VerifiedBySessions)+1)
	out.VerifiedBySessions = append(out.VerifiedBySessions, p.VerifiedBySessions...)
	out.VerifiedBySessions = append(out.VerifiedBySessions, session)
	out.CurrentVerifications = p.CurrentVerifications + 1
	return out
}

// QuorumReached reports whether enough distinct sessions have verified p.
func (p Proposal) QuorumReached() bool {
	return p.CurrentVerifications >= p.RequiredVerifications
}

// FieldNames returns the proposed field names sorted for stable output.
func (p Proposal) FieldNames() []string {
	names := make([]string, 0, len(p.ProposedChanges))
	for name := range p.ProposedChanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetChangesAsJSONB returns the proposed changes as JSONB for storage.
func (p *Proposal) GetChangesAsJSONB() (json.RawMessage, error) {
	if p.ProposedChanges == nil {
		p.ProposedChanges = make(map[string]any)
	}
	return json.Marshal(p.ProposedChanges)
}

// Quorum sizing rewards high-trust proposers with faster consensus.
const (
	quorumHighTrust    = 2
	quorumMediumTrust  = 3
	quorumLowTrust     = 4
	quorumTrustHighBar = 80
	quorumTrustMidBar  = 50
)

// QuorumFor derives the verification quorum from the proposer's trust score.
// An unknown proposer gets the medium quorum.
func QuorumFor(trustScore int, known bool) int {
	switch {
	case !known:
		return quorumMediumTrust
	case trustScore >= quorumTrustHighBar:
		return quorumHighTrust
	case trustScore >= quorumTrustMidBar:
		return quorumMediumTrust
	default:
		return quorumLowTrust
	}
}

// ConflictingFields returns the field names in changes that overlap any of
// the given pending proposals, sorted. An empty result means the proposal is
// admissible.
func ConflictingFields(changes map[string]any, pending []Proposal) []string {
	seen := make(map[string]struct{})
	for _, p := range pending {
		if p.Status != ProposalStatusPending {
			continue
		}
		for name := range p.ProposedChanges {
			if _, ok := changes[name]; ok {
				seen[name] = struct{}{}
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	conflicts := make([]string, 0, len(seen))
	for name := range seen {
		conflicts = append(conflicts, name)
	}
	sort.Strings(conflicts)
	return conflicts
}
