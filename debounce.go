package scanner

import (
	"time"
)

const maxDebounceEntries = 256

// debouncer drops a token decoded again right after its cycle finished. The
// camera keeps seeing the same code while the user lowers the phone, so the
// window starts when the scanner returns to idle.
type debouncer struct {
	window  time.Duration
	now     func() time.Time
	entries map[Token]time.Time
}

func newDebouncer(window time.Duration, now func() time.Time) *debouncer {
	if now == nil {
		now = time.Now
	}
	return &debouncer{
		window:  window,
		now:     now,
		entries: map[Token]time.Time{},
	}
}

// Mark records that token just finished a cycle.
func (d *debouncer) Mark(token Token) {
	if d == nil || d.window <= 0 {
		return
	}
	token = token.Normalize()
	if token == "" {
		return
	}
	now := d.now()
	d.cleanup(now)
	d.entries[token] = now
}

// Suppress reports whether token falls inside its cooldown window.
func (d *debouncer) Suppress(token Token) bool {
	if d == nil || d.window <= 0 {
		return false
	}
	seenAt, ok := d.entries[token.Normalize()]
	if !ok {
		return false
	}
	if d.now().Sub(seenAt) >= d.window {
		delete(d.entries, token.Normalize())
		return false
	}
	return true
}

func (d *debouncer) cleanup(now time.Time) {
	for token, seenAt := range d.entries {
		if now.Sub(seenAt) >= d.window || len(d.entries) > maxDebounceEntries {
			delete(d.entries, token)
		}
	}
}
