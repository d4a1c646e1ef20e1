package scanner

import (
	"context"

	gocmd "github.com/goliatone/go-command"
)

type DecodeCommand struct {
	directory Directory
}

func NewDecodeCommand(directory Directory) *DecodeCommand {
	return &DecodeCommand{directory: directory}
}

func (c *DecodeCommand) Execute(ctx context.Context, msg DecodeMessage) error {
	if c == nil {
		return commandDependencyError("command: scanner directory is required")
	}
	op, err := resolveOperator(c.directory, msg.Scanner, msg)
	if err != nil {
		return err
	}
	accepted, err := op.Decode(ctx, msg.Token)
	if err != nil {
		return err
	}
	snap, err := op.State(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, DecodeResult{Accepted: accepted, Snapshot: snap})
	return nil
}

type ScanAgainCommand struct {
	directory Directory
}

func NewScanAgainCommand(directory Directory) *ScanAgainCommand {
	return &ScanAgainCommand{directory: directory}
}

func (c *ScanAgainCommand) Execute(ctx context.Context, msg ScanAgainMessage) error {
	if c == nil {
		return commandDependencyError("command: scanner directory is required")
	}
	op, err := resolveOperator(c.directory, msg.Scanner, msg)
	if err != nil {
		return err
	}
	if err := op.ScanAgain(ctx); err != nil {
		return err
	}
	return storeSnapshot(ctx, op)
}

type ToggleFacingCommand struct {
	directory Directory
}

func NewToggleFacingCommand(directory Directory) *ToggleFacingCommand {
	return &ToggleFacingCommand{directory: directory}
}

func (c *ToggleFacingCommand) Execute(ctx context.Context, msg ToggleFacingMessage) error {
	if c == nil {
		return commandDependencyError("command: scanner directory is required")
	}
	op, err := resolveOperator(c.directory, msg.Scanner, msg)
	if err != nil {
		return err
	}
	if _, err := op.ToggleFacing(ctx); err != nil {
		return err
	}
	return storeSnapshot(ctx, op)
}

type RefreshCommand struct {
	directory Directory
}

func NewRefreshCommand(directory Directory) *RefreshCommand {
	return &RefreshCommand{directory: directory}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil {
		return commandDependencyError("command: scanner directory is required")
	}
	op, err := resolveOperator(c.directory, msg.Scanner, msg)
	if err != nil {
		return err
	}
	if err := op.Refresh(ctx); err != nil {
		return err
	}
	return storeSnapshot(ctx, op)
}

// StateQuery returns the render view of a scanner.
type StateQuery struct {
	directory Directory
}

func NewStateQuery(directory Directory) *StateQuery {
	return &StateQuery{directory: directory}
}

func (q *StateQuery) Query(ctx context.Context, msg StateMessage) (View, error) {
	if q == nil {
		return View{}, commandDependencyError("query: scanner directory is required")
	}
	op, err := resolveOperator(q.directory, msg.Scanner, msg)
	if err != nil {
		return View{}, err
	}
	snap, err := op.State(ctx)
	if err != nil {
		return View{}, err
	}
	return Render(op.Config(), snap), nil
}

type validatable interface {
	Validate() error
}

func resolveOperator(directory Directory, name string, msg validatable) (Operator, error) {
	if directory == nil {
		return nil, commandDependencyError("command: scanner directory is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return directory.Lookup(name)
}

func storeSnapshot(ctx context.Context, op Operator) error {
	snap, err := op.State(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, snap)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
