package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryHistoryRecord is the persisted terminal outcome of one request.
// Exactly one record is written per request, describing only the final
// attempt.
type QueryHistoryRecord struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`

	InputText string `json:"input_text"`
	// FinalSQL is the last statement produced, empty if no attempt got
	// past extraction.
	FinalSQL string `json:"final_sql,omitempty"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
	RowCount     int    `json:"row_count"`
	Attempts     int    `json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
}
