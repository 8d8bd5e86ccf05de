package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is one persisted chat exchange.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	CallerID  string         `json:"caller_id"`
	Text      string         `json:"message"`
	Reply     string         `json:"response"`
	AgentType string         `json:"agent_type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"timestamp"`
}

type MessageRepository interface {
	Save(ctx context.Context, m *Message) error
	// ListRecent returns at most limit messages for the caller, newest first.
	ListRecent(ctx context.Context, callerID string, limit int) ([]*Message, error)
}
