package activitymap

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"

	scanner "github.com/goliatone/go-scanner"
)

// LogSink writes normalized activity through a structured logger.
type LogSink struct {
	logger glog.Logger
	opts   []Option
}

func NewLogSink(logger glog.Logger, opts ...Option) *LogSink {
	return &LogSink{logger: glog.Ensure(logger), opts: opts}
}

func (s *LogSink) Record(_ context.Context, event scanner.ActivityEvent) error {
	n := Normalize(event, s.opts...)
	args := []any{
		"actor_id", n.ActorID,
		"verb", n.Verb,
		"channel", n.Channel,
		"occurred_at", n.OccurredAt,
	}
	if n.ObjectID != "" {
		args = append(args, "object_type", n.ObjectType, "object_id", n.ObjectID)
	}
	if len(n.Metadata) > 0 {
		args = append(args, "metadata", n.Metadata)
	}
	s.logger.Info("scanner activity", args...)
	return nil
}

var _ scanner.ActivitySink = (*LogSink)(nil)
