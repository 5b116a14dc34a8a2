package domain

import "time"

// TrustInitial is the score a fresh session starts with; Adjust clamps every
// delta to the [TrustMin, TrustMax] band.
const (
	TrustInitial = 50
	TrustMin     = 0
	TrustMax     = 100
)

// Session is a pseudonymous actor record. ContributionCount is the
// sliding-window write counter anchored on LastSeen; VerificationCount is a
// lifetime total.
type Session struct {
	SessionID         string    `json:"session_id"`
	Fingerprint       string    `json:"fingerprint"`
	FirstSeen         time.Time `json:"first_seen"`
	LastSeen          time.Time `json:"last_seen"`
	ContributionCount int       `json:"contribution_count"`
	VerificationCount int       `json:"verification_count"`
	TrustScore        int       `json:"trust_score"`
	IPHash            string    `json:"ip_hash"`
}

// NewSession creates a session with the initial trust score.
func NewSession(sessionID, fingerprint, ipHash string) Session {
	now := time.Now()
	return Session{
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		FirstSeen:   now,
		LastSeen:    now,
		TrustScore:  TrustInitial,
		IPHash:      ipHash,
	}
}

// WithTrustDelta returns a copy of s with the trust score adjusted and
// clamped to the legal band.
func (s Session) WithTrustDelta(delta int) Session {
	out := s
	out.TrustScore = clampTrust(s.TrustScore + delta)
	return out
}

func clampTrust(score int) int {
	if score < TrustMin {
		return TrustMin
	}
	if score > TrustMax {
		return TrustMax
	}
	return score
}
