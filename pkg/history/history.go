// Package history persists one record per terminal query session.
package history

import (
	"context"

	"github.com/natural2sql/engine/pkg/models"
)

// Recorder stores terminal outcomes. Implementations must tolerate
// concurrent callers.
type Recorder interface {
	// Record appends one terminal record.
	Record(ctx context.Context, rec *models.QueryHistoryRecord) error
	// Recent returns up to limit records for a session, newest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]models.QueryHistoryRecord, error)
	Close() error
}

// NopRecorder discards everything; used when history is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *models.QueryHistoryRecord) error { return nil }

func (NopRecorder) Recent(context.Context, string, int) ([]models.QueryHistoryRecord, error) {
	return nil, nil
}

func (NopRecorder) Close() error { return nil }

var _ Recorder = NopRecorder{}
