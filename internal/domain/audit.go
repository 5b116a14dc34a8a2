package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction classifies a state-changing action.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionVerify AuditAction = "verify"
	AuditActionReject AuditAction = "reject"
)

// AuditEntry records one state-changing action. Entries are append-only and
// never mutated or deleted.
type AuditEntry struct {
	ID         uuid.UUID      `json:"id"`
	Action     AuditAction    `json:"action"`
	Collection string         `json:"collection"`
	DocumentID string         `json:"document_id"`
	Changes    map[string]any `json:"changes,omitempty"`
	SessionID  string         `json:"session_id"`
	IPHash     string         `json:"ip_hash,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewAuditEntry stamps an entry with an id and timestamp.
func NewAuditEntry(action AuditAction, collection, documentID string, changes map[string]any, actor Actor, reason string) AuditEntry {
	return AuditEntry{
		ID:         uuid.New(),
		Action:     action,
		Collection: collection,
		DocumentID: documentID,
		Changes:    copyFields(changes),
		SessionID:  actor.SessionID,
		IPHash:     actor.IPHash,
		UserAgent:  actor.UserAgent,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}
}

// GetChangesAsJSONB returns the change description as JSONB for storage.
func (e *AuditEntry) GetChangesAsJSONB() (json.RawMessage, error) {
	if e.Changes == nil {
		e.Changes = make(map[string]any)
	}
	return json.Marshal(e.Changes)
}

// Actor carries the request-scoped identity attached to every write: the
// pseudonymous session token plus transport metadata kept for the audit
// trail.
type Actor struct {
	SessionID string
	IPHash    string
	UserAgent string
}
