package domain

import (
	"encoding/json"
	"time"
)

// OutboxMessage is one event row written in the same transaction as the
// order change it describes. The dispatcher publishes unprocessed rows and
// marks them processed, giving at-least-once delivery without ever
// publishing an uncommitted change.
type OutboxMessage struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Processed   bool            `json:"processed"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
