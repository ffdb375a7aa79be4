// Package memory keeps a short per-owner transcript so follow-ups like "yes" or "make it 3pm"
// reach the model with their context.
package memory

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxTurns bounds each owner's stored transcript when no cap is configured.
const DefaultMaxTurns = 200

// TurnRecord is one message of an owner's conversation with the assistant. Field order matches
// the conversation_turns columns.
type TurnRecord struct {
	ID          string    `json:"id"`
	OwnerID     int64     `json:"user_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists an owner's transcript, keeping only the newest turns.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	// RecentContext returns at most limit of the owner's newest turns, oldest first. The result
	// never opens with an assistant turn, so a window cut mid-exchange loses the orphaned reply.
	// limit <= 0 returns the whole stored transcript.
	RecentContext(ctx context.Context, ownerID int64, limit int) ([]TurnRecord, error)
	Close() error
}
