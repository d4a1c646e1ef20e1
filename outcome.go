package scanner

import "strings"

// OutcomeStatus tags a verification outcome.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeDenied  OutcomeStatus = "denied"
	OutcomeInvalid OutcomeStatus = "invalid"
)

// OutcomeStatuses lists every known status in display order.
var OutcomeStatuses = []OutcomeStatus{OutcomeSuccess, OutcomeDenied, OutcomeInvalid}

// Valid reports whether the status is one of the known tags.
func (s OutcomeStatus) Valid() bool {
	switch s {
	case OutcomeSuccess, OutcomeDenied, OutcomeInvalid:
		return true
	}
	return false
}

func (s OutcomeStatus) String() string { return string(s) }

// Outcome is the classified result of a verification attempt.
type Outcome struct {
	Status      OutcomeStatus `json:"status"`
	Message     string        `json:"message"`
	ActionLabel string        `json:"action_label"`
	Speech      string        `json:"speech,omitempty"`
}

// Success builds a success outcome.
func Success(message, label string) Outcome {
	return Outcome{Status: OutcomeSuccess, Message: message, ActionLabel: label}
}

// Denied builds a denied outcome.
func Denied(message, label string) Outcome {
	return Outcome{Status: OutcomeDenied, Message: message, ActionLabel: label}
}

// Invalid builds an invalid outcome.
func Invalid(message, label string) Outcome {
	return Outcome{Status: OutcomeInvalid, Message: message, ActionLabel: label}
}

// WithSpeech returns a copy of the outcome carrying a speech line.
func (o Outcome) WithSpeech(speech string) Outcome {
	o.Speech = strings.TrimSpace(speech)
	return o
}

// HasSpeech reports whether a TTS utterance should be issued.
func (o Outcome) HasSpeech() bool {
	return strings.TrimSpace(o.Speech) != ""
}

// IsZero reports whether the outcome was never populated.
func (o Outcome) IsZero() bool {
	return o == Outcome{}
}
