package domain

import (
	"strings"
	"time"
)

// Turn is one persisted conversational exchange entry. Turns are append-only:
// they are written once per exchange and never updated or deleted while the
// owning thread lives.
type Turn struct {
	ID        string
	ThreadID  string
	Role      Role
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// ValidateTurn checks the invariants required before persisting a turn.
func ValidateTurn(t *Turn) error {
	if t.ThreadID == "" {
		return ErrMissingRequiredField
	}
	if strings.TrimSpace(t.Text) == "" {
		return ErrMissingRequiredField
	}
	if t.Role != RoleUser && t.Role != RoleAssistant {
		return ErrInvalidTurnRole
	}
	return nil
}

// ThreadOwner extracts the owning user from a thread ID of the form
// "{user_id}_{uuid}". The UUID suffix never contains an underscore, so the
// split is at the last one; user IDs themselves may contain underscores.
// Returns "" when the ID does not carry an owner.
func ThreadOwner(threadID string) string {
	idx := strings.LastIndex(threadID, "_")
	if idx <= 0 {
		return ""
	}
	return threadID[:idx]
}

// ThreadOwnedBy reports whether threadID belongs to userID.
func ThreadOwnedBy(threadID, userID string) bool {
	return userID != "" && ThreadOwner(threadID) == userID
}
