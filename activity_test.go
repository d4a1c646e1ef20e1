package scanner_test

import (
	"context"
	"errors"
	"testing"

	scanner "github.com/goliatone/go-scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiActivitySinkFansOut(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	failing := scanner.ActivitySinkFunc(func(context.Context, scanner.ActivityEvent) error {
		return errors.New("disk full")
	})

	sink := scanner.MultiActivitySink(first, nil, failing, second)
	err := sink.Record(context.Background(), scanner.ActivityEvent{EventType: scanner.ActivityScanAccepted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, 1, first.Count(scanner.ActivityScanAccepted))
	assert.Equal(t, 1, second.Count(scanner.ActivityScanAccepted))
}

func TestMultiActivitySinkCollapses(t *testing.T) {
	only := &recordingSink{}
	assert.Same(t, only, scanner.MultiActivitySink(nil, only))

	empty := scanner.MultiActivitySink()
	assert.NoError(t, empty.Record(context.Background(), scanner.ActivityEvent{}))
}
