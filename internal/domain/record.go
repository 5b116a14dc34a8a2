package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MaxResolveHops bounds the supersededBy pointer chase in resolveCurrent.
// Exceeding it yields the last-resolved version rather than an error.
const MaxResolveHops = 5

// RecordVersion is one immutable snapshot in a record's version chain. A
// logical record is the chain of versions linked through SupersededBy, with
// exactly one version carrying CurrentVersion=true.
type RecordVersion struct {
	ID                uuid.UUID      `json:"id"`
	Kind              Kind           `json:"kind"`
	Fields            map[string]any `json:"fields"`
	CreatedAt         time.Time      `json:"created_at"`
	CreatedBySession  string         `json:"created_by_session"`
	CurrentVersion    bool           `json:"current_version"`
	SupersededBy      *uuid.UUID     `json:"superseded_by,omitempty"`
	PreviousVersions  []uuid.UUID    `json:"previous_versions"`
	VerificationCount int            `json:"verification_count"`
}

// NewRecordVersion creates the first version of a brand-new logical record.
func NewRecordVersion(kind Kind, fields map[string]any, authorSession string) RecordVersion {
	return RecordVersion{
		ID:               uuid.New(),
		Kind:             kind,
		Fields:           copyFields(fields),
		CreatedAt:        time.Now(),
		CreatedBySession: authorSession,
		CurrentVersion:   true,
		PreviousVersions: []uuid.UUID{},
	}
}

// Successor builds the version that supersedes v, with changes overlaid on
// v's fields and v appended to the ancestry chain. The caller is responsible
// for flipping v's CurrentVersion and SupersededBy in the same transaction.
func (v RecordVersion) Successor(changes map[string]any, authorSession string) RecordVersion {
	fields := copyFields(v.Fields)
	for name, value := range changes {
		fields[name] = value
	}

	ancestry := make([]uuid.UUID, 0, len(v.PreviousVersions)+1)
	ancestry = append(ancestry, v.PreviousVersions...)
	ancestry = append(ancestry, v.ID)

	return RecordVersion{
		ID:                uuid.New(),
		Kind:              v.Kind,
		Fields:            fields,
		CreatedAt:         time.Now(),
		CreatedBySession:  authorSession,
		CurrentVersion:    true,
		PreviousVersions:  ancestry,
		VerificationCount: 0,
	}
}

// Superseded returns a copy of v demoted from current, pointing at its
// replacement.
func (v RecordVersion) Superseded(byID uuid.UUID) RecordVersion {
	out := v
	out.Fields = copyFields(v.Fields)
	out.CurrentVersion = false
	out.SupersededBy = &byID
	return out
}

// GetFieldsAsJSONB returns the fields as JSONB for database storage.
func (v *RecordVersion) GetFieldsAsJSONB() (json.RawMessage, error) {
	if v.Fields == nil {
		v.Fields = make(map[string]any)
	}
	return json.Marshal(v.Fields)
}

// FromJSONBFields decodes a fields map from JSONB data.
func FromJSONBFields(fieldsJSON json.RawMessage) (map[string]any, error) {
	var fields map[string]any
	err := json.Unmarshal(fieldsJSON, &fields)
	return fields, err
}

// RecordHistory is the result of a history query: the current version plus
// its ancestry ordered oldest first.
type RecordHistory struct {
	Current RecordVersion   `json:"current"`
	History []RecordVersion `json:"history"`
}

// copyFields creates a shallow copy of the fields map so that callers cannot
// mutate a stored version through a shared map.
func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
