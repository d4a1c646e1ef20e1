package scanner

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TypeDecode       = "scanner.command.decode"
	TypeScanAgain    = "scanner.command.scan_again"
	TypeToggleFacing = "scanner.command.facing.toggle"
	TypeRefresh      = "scanner.command.refresh"
	TypeState        = "scanner.query.state"
)

// DecodeMessage submits a token decoded outside the camera feed.
type DecodeMessage struct {
	Scanner string `json:"scanner"`
	Token   Token  `json:"token"`
}

func (DecodeMessage) Type() string { return TypeDecode }

func (m DecodeMessage) Validate() error {
	if err := validateScannerName(m.Scanner); err != nil {
		return err
	}
	if m.Token.IsZero() {
		return commandValidationError("token", "token is required")
	}
	return nil
}

// DecodeResult is stored in the command result collector.
type DecodeResult struct {
	Accepted bool     `json:"accepted"`
	Snapshot Snapshot `json:"snapshot"`
}

type ScanAgainMessage struct {
	Scanner string `json:"scanner"`
}

func (ScanAgainMessage) Type() string { return TypeScanAgain }

func (m ScanAgainMessage) Validate() error {
	return validateScannerName(m.Scanner)
}

type ToggleFacingMessage struct {
	Scanner string `json:"scanner"`
}

func (ToggleFacingMessage) Type() string { return TypeToggleFacing }

func (m ToggleFacingMessage) Validate() error {
	return validateScannerName(m.Scanner)
}

type RefreshMessage struct {
	Scanner string `json:"scanner"`
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	return validateScannerName(m.Scanner)
}

type StateMessage struct {
	Scanner string `json:"scanner"`
}

func (StateMessage) Type() string { return TypeState }

func (m StateMessage) Validate() error {
	return validateScannerName(m.Scanner)
}

func validateScannerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return commandValidationError("scanner", "scanner name is required")
	}
	return nil
}

func commandValidationError(field, message string) error {
	return goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithSeverity(goerrors.SeverityError)
}

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError)
}
