package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryRequest is one natural-language question to answer with SQL.
// Immutable once created.
type QueryRequest struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewQueryRequest creates a request with a fresh ID and timestamp.
func NewQueryRequest(sessionID, text string) *QueryRequest {
	return &QueryRequest{
		ID:        uuid.New(),
		SessionID: sessionID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}
