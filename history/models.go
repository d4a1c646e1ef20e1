package history

import (
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type scanRecord struct {
	bun.BaseModel `bun:"table:scan_history,alias:sh"`

	ID          string         `bun:"id,pk"`
	Scanner     string         `bun:"scanner,notnull"`
	EventType   string         `bun:"event_type,notnull"`
	AttemptID   *string        `bun:"attempt_id"`
	Fingerprint string         `bun:"fingerprint"`
	FromState   string         `bun:"from_state"`
	ToState     string         `bun:"to_state"`
	Trigger     string         `bun:"transition_trigger"`
	Status      string         `bun:"status"`
	Message     string         `bun:"message"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull"`
	OccurredAt  time.Time      `bun:"occurred_at,nullzero,notnull,default:current_timestamp"`
}

func scanRecordHandlers() repository.ModelHandlers[*scanRecord] {
	return repository.ModelHandlers[*scanRecord]{
		NewRecord: func() *scanRecord {
			return &scanRecord{}
		},
		GetID: func(record *scanRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *scanRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *scanRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
