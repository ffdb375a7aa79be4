package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// stamp fills the id and timestamp the caller left empty.
func stamp(r TurnRecord) TurnRecord {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	if r.Role != RoleAssistant {
		r.Role = RoleUser
	}
	return r
}

// openOnUserTurn drops leading assistant turns from an oldest-first window.
func openOnUserTurn(records []TurnRecord) []TurnRecord {
	for i, r := range records {
		if r.Role == RoleUser {
			return records[i:]
		}
	}
	return nil
}
