// Package speech holds scanner.Speaker implementations.
package speech

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	scanner "github.com/goliatone/go-scanner"
)

// Command speaks by running an external TTS binary, the text is passed as
// the last argument (espeak-ng, say, a vendor CLI).
type Command struct {
	Name   string
	Args   []string
	Logger glog.Logger

	// serializes utterances so overlapping results do not talk over each other
	mu sync.Mutex
}

func NewCommand(name string, args ...string) *Command {
	return &Command{
		Name:   name,
		Args:   args,
		Logger: glog.Nop(),
	}
}

func (c *Command) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if c.Name == "" {
		return goerrors.New("speech command not configured", goerrors.CategoryValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	args := append(append([]string{}, c.Args...), text)
	cmd := exec.CommandContext(ctx, c.Name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "speech command failed").
			WithMetadata(map[string]any{
				"command": c.Name,
				"stderr":  strings.TrimSpace(stderr.String()),
			})
	}

	glog.Ensure(c.Logger).Debug("speech issued", "command", c.Name)
	return nil
}

// Nop discards every utterance.
type Nop struct{}

func (Nop) Speak(context.Context, string) error { return nil }

// New returns a Command when name is set, Nop otherwise.
func New(name string, args ...string) scanner.Speaker {
	if strings.TrimSpace(name) == "" {
		return Nop{}
	}
	return NewCommand(name, args...)
}

var (
	_ scanner.Speaker = (*Command)(nil)
	_ scanner.Speaker = Nop{}
)
