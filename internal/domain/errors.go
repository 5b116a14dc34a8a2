package domain

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports malformed or missing input fields. It is returned
// before any write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on field %q: %s", e.Field, e.Message)
}

// NotFoundError reports a referenced session, record or proposal that does
// not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// RateLimitError reports that a session hit its sliding-window write cap.
type RateLimitError struct {
	SessionID string
	Limit     int
	Window    time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("session %q exceeded rate limit of %d writes per %s", e.SessionID, e.Limit, e.Window)
}

// ConflictError reports a propose call whose field set overlaps a pending
// proposal on the same record.
type ConflictError struct {
	Fields []string
}

func (e *ConflictError) Error() string {
	return "a pending update already exists for one or more requested fields: " + strings.Join(e.Fields, ", ")
}

// InvalidStateError reports an action attempted on a proposal that is not in
// the required state.
type InvalidStateError struct {
	ProposalID string
	Expected   ProposalStatus
	Actual     ProposalStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("proposal %q is %s, expected %s", e.ProposalID, e.Actual, e.Expected)
}

// DuplicateVerificationError reports a session attempting to verify the same
// proposal twice.
type DuplicateVerificationError struct {
	ProposalID string
	SessionID  string
}

func (e *DuplicateVerificationError) Error() string {
	return fmt.Sprintf("session %q already verified proposal %q", e.SessionID, e.ProposalID)
}
