package scanner

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// HistoryFilter narrows a scan history listing.
type HistoryFilter struct {
	Scanner   string            `json:"scanner,omitempty" query:"scanner"`
	EventType ActivityEventType `json:"event_type,omitempty" query:"event_type"`
	Status    OutcomeStatus     `json:"status,omitempty" query:"status"`
	AttemptID uuid.UUID         `json:"attempt_id,omitempty"`
	Since     time.Time         `json:"since,omitempty"`
	Until     time.Time         `json:"until,omitempty"`
	Limit     int               `json:"limit,omitempty" query:"limit"`
	Offset    int               `json:"offset,omitempty" query:"offset"`
}

// Normalized clamps paging values.
func (f HistoryFilter) Normalized() HistoryFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// HistoryRecord is a persisted activity event. Tokens are never stored,
// only a fingerprint that lets operators correlate repeated scans.
type HistoryRecord struct {
	ID          uuid.UUID         `json:"id"`
	Scanner     string            `json:"scanner"`
	EventType   ActivityEventType `json:"event_type"`
	AttemptID   uuid.UUID         `json:"attempt_id"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	FromState   ScanState         `json:"from_state,omitempty"`
	ToState     ScanState         `json:"to_state,omitempty"`
	Trigger     Trigger           `json:"trigger,omitempty"`
	Status      OutcomeStatus     `json:"status,omitempty"`
	Message     string            `json:"message,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// HistoryPage is one page of history records.
type HistoryPage struct {
	Records []HistoryRecord `json:"records"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// HistoryReader lists stored scan activity.
type HistoryReader interface {
	List(ctx context.Context, filter HistoryFilter) (HistoryPage, error)
}
