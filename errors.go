package scanner

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeBusinessDenied    = "SCAN_BUSINESS_DENIED"
	TextCodeInvalidToken      = "SCAN_INVALID_TOKEN"
	TextCodeTransportFailure  = "SCAN_TRANSPORT_FAILURE"
	TextCodeInvalidTransition = "SCAN_INVALID_TRANSITION"
	TextCodeActionUnavailable = "SCAN_ACTION_UNAVAILABLE"
	TextCodeActionDisabled    = "SCAN_ACTION_DISABLED"
	TextCodeScannerClosed     = "SCAN_SCANNER_CLOSED"
	TextCodeScannerMounted    = "SCAN_SCANNER_MOUNTED"
)

// ErrScannerClosed is returned by operations issued on an unmounted scanner.
var ErrScannerClosed = goerrors.New("scanner is not mounted", goerrors.CategoryOperation).
	WithTextCode(TextCodeScannerClosed).
	WithCode(http.StatusConflict)

// ErrScannerMounted is returned when mounting twice.
var ErrScannerMounted = goerrors.New("scanner is already mounted", goerrors.CategoryConflict).
	WithTextCode(TextCodeScannerMounted).
	WithCode(http.StatusConflict)

// NewBusinessDenied reports an explicit negative business decision, e.g. unpaid dues.
func NewBusinessDenied(message string, metadata ...map[string]any) *goerrors.Error {
	return newTaxonomyError(message, goerrors.CategoryValidation, TextCodeBusinessDenied, metadata...)
}

// NewInvalidToken reports a malformed or unrecognized QR payload.
func NewInvalidToken(message string, metadata ...map[string]any) *goerrors.Error {
	return newTaxonomyError(message, goerrors.CategoryBadInput, TextCodeInvalidToken, metadata...)
}

// NewTransportFailure wraps a network or server error raised during verification.
func NewTransportFailure(source error, message string, metadata ...map[string]any) *goerrors.Error {
	if source == nil {
		return newTaxonomyError(message, goerrors.CategoryExternal, TextCodeTransportFailure, metadata...)
	}
	err := goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithTextCode(TextCodeTransportFailure).
		WithCode(http.StatusInternalServerError)
	if md := mergeMetadata(metadata...); len(md) > 0 {
		err.WithMetadata(md)
	}
	return err
}

func newTaxonomyError(message string, category goerrors.Category, textCode string, metadata ...map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithTextCode(textCode).
		WithCode(http.StatusBadRequest)
	if md := mergeMetadata(metadata...); len(md) > 0 {
		err.WithMetadata(md)
	}
	return err
}

func newInvalidTransition(from, to ScanState, reason string) *goerrors.Error {
	return goerrors.New("invalid scan state transition", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidTransition).
		WithCode(http.StatusConflict).
		WithMetadata(map[string]any{
			"from":   from,
			"to":     to,
			"reason": reason,
		})
}

func newActionUnavailable(action Action, state ScanState) *goerrors.Error {
	return goerrors.New("action not available while "+string(state), goerrors.CategoryConflict).
		WithTextCode(TextCodeActionUnavailable).
		WithCode(http.StatusConflict).
		WithMetadata(map[string]any{
			"action": action,
			"state":  state,
		})
}

func newActionDisabled(action Action) *goerrors.Error {
	return goerrors.New("action disabled by configuration", goerrors.CategoryValidation).
		WithTextCode(TextCodeActionDisabled).
		WithCode(http.StatusBadRequest).
		WithMetadata(map[string]any{
			"action": action,
		})
}

// IsBusinessDenied reports whether err carries the BusinessDenied text code.
func IsBusinessDenied(err error) bool { return hasTextCode(err, TextCodeBusinessDenied) }

// IsInvalidToken reports whether err carries the InvalidToken text code.
func IsInvalidToken(err error) bool { return hasTextCode(err, TextCodeInvalidToken) }

// IsTransportFailure reports whether err is a transport failure, context
// deadlines count as transport failures.
func IsTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTransportFailure) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsInvalidTransition reports whether err was raised by the transition table.
func IsInvalidTransition(err error) bool { return hasTextCode(err, TextCodeInvalidTransition) }

// IsActionUnavailable reports whether a side action was rejected for the current state.
func IsActionUnavailable(err error) bool { return hasTextCode(err, TextCodeActionUnavailable) }

// IsActionDisabled reports whether a side action was rejected by configuration.
func IsActionDisabled(err error) bool { return hasTextCode(err, TextCodeActionDisabled) }

// IsScannerClosed reports whether the scanner was not mounted.
func IsScannerClosed(err error) bool { return hasTextCode(err, TextCodeScannerClosed) }

// Classify maps an error raised while processing a token onto an outcome tag.
// Only BusinessDenied maps to denied, everything else is invalid.
func Classify(err error) OutcomeStatus {
	if IsBusinessDenied(err) {
		return OutcomeDenied
	}
	return OutcomeInvalid
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	for current := err; current != nil; current = errors.Unwrap(current) {
		if goerrors.As(current, &richErr) && strings.EqualFold(richErr.TextCode, code) {
			return true
		}
		if richErr == nil {
			break
		}
		richErr = nil
	}
	return false
}

func mergeMetadata(metadata ...map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := map[string]any{}
	for _, md := range metadata {
		for k, v := range md {
			out[k] = v
		}
	}
	return out
}
