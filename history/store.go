// Package history persists scanner activity so staff can audit who was
// checked and when. Raw tokens never reach the database, records carry a
// stable fingerprint instead.
package history

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	scanner "github.com/goliatone/go-scanner"
)

// RetentionPolicy bounds how much history is kept.
type RetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}

// Store is a bun backed scanner.ActivitySink and scanner.HistoryReader.
type Store struct {
	db     *bun.DB
	repo   repository.Repository[*scanRecord]
	logger glog.Logger
	now    func() time.Time
	skip   map[scanner.ActivityEventType]struct{}
}

type Option func(*Store)

func WithLogger(logger glog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSkippedTypes replaces the event types that are not persisted. By
// default ignored decodes are skipped, the camera produces a lot of them.
func WithSkippedTypes(types ...scanner.ActivityEventType) Option {
	return func(s *Store) {
		s.skip = map[scanner.ActivityEventType]struct{}{}
		for _, t := range types {
			s.skip[t] = struct{}{}
		}
	}
}

func NewStore(db *bun.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, goerrors.New("history: bun db is required", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError)
	}

	repo := repository.NewRepository[*scanRecord](db, scanRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "history: invalid repository wiring")
		}
	}

	s := &Store{
		db:     db,
		repo:   repo,
		logger: glog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
		skip: map[scanner.ActivityEventType]struct{}{
			scanner.ActivityScanIgnored: {},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Record implements scanner.ActivitySink.
func (s *Store) Record(ctx context.Context, event scanner.ActivityEvent) error {
	if s == nil || s.repo == nil {
		return goerrors.New("history: store is not configured", goerrors.CategoryInternal)
	}
	if _, skipped := s.skip[event.EventType]; skipped {
		return nil
	}

	occurredAt := event.OccurredAt.UTC()
	if event.OccurredAt.IsZero() {
		occurredAt = s.now()
	}

	record := &scanRecord{
		ID:          uuid.NewString(),
		Scanner:     strings.TrimSpace(event.Scanner),
		EventType:   string(event.EventType),
		Fingerprint: Fingerprint(event.Token),
		FromState:   string(event.FromState),
		ToState:     string(event.ToState),
		Trigger:     string(event.Trigger),
		Metadata:    sanitizeMetadata(event.Metadata),
		OccurredAt:  occurredAt,
	}
	if event.AttemptID != uuid.Nil {
		id := event.AttemptID.String()
		record.AttemptID = &id
	}
	if event.Outcome != nil {
		record.Status = string(event.Outcome.Status)
		record.Message = event.Outcome.Message
	}

	if _, err := s.repo.Create(ctx, record); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "history: failed to record scan event").
			WithMetadata(map[string]any{
				"scanner":    record.Scanner,
				"event_type": record.EventType,
			})
	}
	return nil
}

// List implements scanner.HistoryReader. Records are newest first.
func (s *Store) List(ctx context.Context, filter scanner.HistoryFilter) (scanner.HistoryPage, error) {
	if s == nil || s.repo == nil {
		return scanner.HistoryPage{}, goerrors.New("history: store is not configured", goerrors.CategoryInternal)
	}
	filter = filter.Normalized()

	selectors := []repository.SelectCriteria{
		repository.OrderBy("occurred_at DESC"),
		repository.SelectPaginate(filter.Limit, filter.Offset),
	}
	if name := strings.TrimSpace(filter.Scanner); name != "" {
		selectors = append(selectors, repository.SelectBy("scanner", "=", name))
	}
	if eventType := strings.TrimSpace(string(filter.EventType)); eventType != "" {
		selectors = append(selectors, repository.SelectBy("event_type", "=", eventType))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if filter.AttemptID != uuid.Nil {
		selectors = append(selectors, repository.SelectBy("attempt_id", "=", filter.AttemptID.String()))
	}
	if !filter.Since.IsZero() {
		selectors = append(selectors, repository.SelectByTimetz("occurred_at", ">=", filter.Since.UTC()))
	}
	if !filter.Until.IsZero() {
		selectors = append(selectors, repository.SelectByTimetz("occurred_at", "<=", filter.Until.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return scanner.HistoryPage{}, goerrors.Wrap(err, goerrors.CategoryExternal, "history: failed to list scan events")
	}

	items := make([]scanner.HistoryRecord, 0, len(records))
	for _, record := range records {
		items = append(items, recordToDomain(record))
	}

	return scanner.HistoryPage{
		Records: items,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Prune deletes records older than the TTL, then the oldest records over
// the row cap. It returns the number of deleted rows.
func (s *Store) Prune(ctx context.Context, policy RetentionPolicy) (int, error) {
	if s == nil || s.db == nil {
		return 0, goerrors.New("history: store is not configured", goerrors.CategoryInternal)
	}
	deleted := 0

	if policy.TTL > 0 {
		cutoff := s.now().Add(-policy.TTL)
		res, err := s.db.NewDelete().
			Model((*scanRecord)(nil)).
			Where("occurred_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, goerrors.Wrap(err, goerrors.CategoryExternal, "history: prune by ttl failed")
		}
		affected, _ := res.RowsAffected()
		deleted += int(affected)
	}

	if policy.RowCap > 0 {
		total, err := s.db.NewSelect().Model((*scanRecord)(nil)).Count(ctx)
		if err != nil {
			return deleted, goerrors.Wrap(err, goerrors.CategoryExternal, "history: count failed")
		}
		if excess := total - policy.RowCap; excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM scan_history WHERE id IN (SELECT id FROM scan_history ORDER BY occurred_at ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, goerrors.Wrap(err, goerrors.CategoryExternal, "history: prune by row cap failed")
			}
			affected, _ := res.RowsAffected()
			deleted += int(affected)
		}
	}

	if deleted > 0 {
		s.logger.Info("history pruned", "deleted", deleted)
	}
	return deleted, nil
}

// Fingerprint derives the stable identifier stored in place of a token.
func Fingerprint(token scanner.Token) string {
	token = token.Normalize()
	if token == "" {
		return ""
	}
	id, err := hashid.NewUUID(token.String())
	if err != nil {
		return ""
	}
	return id.String()
}

func recordToDomain(record *scanRecord) scanner.HistoryRecord {
	if record == nil {
		return scanner.HistoryRecord{}
	}
	out := scanner.HistoryRecord{
		ID:          parseUUID(record.ID),
		Scanner:     record.Scanner,
		EventType:   scanner.ActivityEventType(record.EventType),
		Fingerprint: record.Fingerprint,
		FromState:   scanner.ScanState(record.FromState),
		ToState:     scanner.ScanState(record.ToState),
		Trigger:     scanner.Trigger(record.Trigger),
		Status:      scanner.OutcomeStatus(record.Status),
		Message:     record.Message,
		Metadata:    copyAnyMap(record.Metadata),
		OccurredAt:  record.OccurredAt,
	}
	if record.AttemptID != nil {
		out.AttemptID = parseUUID(*record.AttemptID)
	}
	return out
}

// sanitizeMetadata keeps metadata JSON friendly, values are stringified
// unless they are plain scalars.
func sanitizeMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		switch v := value.(type) {
		case nil:
		case string, bool, int, int64, float64:
			out[key] = v
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ scanner.ActivitySink  = (*Store)(nil)
	_ scanner.HistoryReader = (*Store)(nil)
)
