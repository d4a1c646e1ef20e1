package camera_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanner "github.com/goliatone/go-scanner"
	"github.com/goliatone/go-scanner/camera"
)

func TestFeedDropsWhileStopped(t *testing.T) {
	feed := camera.NewFeed()

	assert.False(t, feed.Publish("T1", "test"))
	_, dropped := feed.Stats()
	assert.Equal(t, 1, dropped)
}

func TestFeedPublishesWhileRunning(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	feed := camera.NewFeed(camera.WithNow(func() time.Time { return at }))
	require.NoError(t, feed.Start(context.Background(), scanner.FacingFront))

	assert.True(t, feed.Running())
	assert.Equal(t, scanner.FacingFront, feed.Facing())
	assert.True(t, feed.Publish("  T123\n", "test"))

	select {
	case ev := <-feed.Decodes():
		assert.Equal(t, scanner.Token("T123"), ev.Token)
		assert.Equal(t, "test", ev.Source)
		assert.Equal(t, at, ev.DecodedAt)
	default:
		t.Fatal("expected a queued decode")
	}
}

func TestFeedRejectsEmptyAndFullBuffer(t *testing.T) {
	feed := camera.NewFeed()
	require.NoError(t, feed.Start(context.Background(), ""))
	assert.Equal(t, scanner.FacingBack, feed.Facing())

	assert.False(t, feed.Publish("   ", "test"))
	assert.True(t, feed.Publish("T1", "test"))
	assert.False(t, feed.Publish("T2", "test"))

	starts, dropped := feed.Stats()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, dropped)
}

func TestFeedStopDiscardsQueuedDecodes(t *testing.T) {
	feed := camera.NewFeed(camera.WithBuffer(4))
	require.NoError(t, feed.Start(context.Background(), scanner.FacingBack))
	require.True(t, feed.Publish("T1", "test"))
	require.True(t, feed.Publish("T2", "test"))

	require.NoError(t, feed.Stop(context.Background()))
	assert.False(t, feed.Running())
	assert.Len(t, feed.Decodes(), 0)

	require.NoError(t, feed.SetFacing(context.Background(), scanner.FacingFront))
	assert.Equal(t, scanner.FacingFront, feed.Facing())
}

func TestPumpLinesPublishesEachLine(t *testing.T) {
	feed := camera.NewFeed(camera.WithBuffer(8))
	require.NoError(t, feed.Start(context.Background(), scanner.FacingBack))

	err := camera.PumpLines(context.Background(), strings.NewReader("T1\n\nT2\r\nT3"), feed, "")
	require.NoError(t, err)

	var got []scanner.Token
	for len(feed.Decodes()) > 0 {
		ev := <-feed.Decodes()
		assert.Equal(t, "reader", ev.Source)
		got = append(got, ev.Token)
	}
	assert.Equal(t, []scanner.Token{"T1", "T2", "T3"}, got)
}

func TestPumpLinesStopsOnCancelledContext(t *testing.T) {
	feed := camera.NewFeed(camera.WithBuffer(8))
	require.NoError(t, feed.Start(context.Background(), scanner.FacingBack))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, camera.PumpLines(ctx, strings.NewReader("T1\nT2\n"), feed, "stdin"))
	assert.Len(t, feed.Decodes(), 0)
}
