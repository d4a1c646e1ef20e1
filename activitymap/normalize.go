// Package activitymap converts scanner activity events into a flat shape
// that downstream systems (log pipelines, audit feeds) can consume without
// importing the scanner types.
package activitymap

import (
	"strings"
	"time"

	"github.com/google/uuid"

	scanner "github.com/goliatone/go-scanner"
)

const (
	MetadataKeyFromState = "from_state"
	MetadataKeyToState   = "to_state"
	MetadataKeyTrigger   = "trigger"
	MetadataKeyStatus    = "status"
	MetadataKeyMessage   = "message"
)

const (
	defaultChannel    = "scanner"
	defaultObjectType = "scan_attempt"
	defaultActorID    = "device"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(scanner.ActivityEvent) string
	now              func() time.Time
}

// Normalize converts a scanner.ActivityEvent. The scanner instance is the
// actor and the attempt is the object. Tokens are never copied.
func Normalize(event scanner.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Scanner), options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides how the object id is derived, e.g. to use a
// token fingerprint for events that carry no attempt.
func WithObjectIDResolver(resolver func(scanner.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the event has no scanner name.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func WithNow(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func resolveObjectID(event scanner.ActivityEvent, resolver func(scanner.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	if event.AttemptID == uuid.Nil {
		return ""
	}
	return event.AttemptID.String()
}

func normalizeMetadata(event scanner.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)
	put := func(key, value string) {
		if value == "" {
			return
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}

	put(MetadataKeyFromState, string(event.FromState))
	put(MetadataKeyToState, string(event.ToState))
	put(MetadataKeyTrigger, string(event.Trigger))
	if event.Outcome != nil {
		put(MetadataKeyStatus, string(event.Outcome.Status))
		put(MetadataKeyMessage, event.Outcome.Message)
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
