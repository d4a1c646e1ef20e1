// Package fees maps dues verification responses onto scanner outcomes.
package fees

import (
	"context"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	scanner "github.com/goliatone/go-scanner"
	"github.com/goliatone/go-scanner/verifier"
)

const ScannerName = "fees"

// DuesChecker is the remote call behind the fee scanner.
type DuesChecker interface {
	VerifyDues(ctx context.Context, token scanner.Token) (verifier.DuesResult, error)
}

// Copy holds the fee scanner strings. "{name}" in a message is replaced
// with the student name.
type Copy struct {
	PaidMessage    string `koanf:"paid_message" mapstructure:"paid_message" yaml:"paid_message" json:"paid_message"`
	PaidLabel      string `koanf:"paid_label" mapstructure:"paid_label" yaml:"paid_label" json:"paid_label"`
	PaidSpeech     string `koanf:"paid_speech" mapstructure:"paid_speech" yaml:"paid_speech" json:"paid_speech"`
	UnpaidMessage  string `koanf:"unpaid_message" mapstructure:"unpaid_message" yaml:"unpaid_message" json:"unpaid_message"`
	UnpaidLabel    string `koanf:"unpaid_label" mapstructure:"unpaid_label" yaml:"unpaid_label" json:"unpaid_label"`
	UnpaidSpeech   string `koanf:"unpaid_speech" mapstructure:"unpaid_speech" yaml:"unpaid_speech" json:"unpaid_speech"`
	InvalidMessage string `koanf:"invalid_message" mapstructure:"invalid_message" yaml:"invalid_message" json:"invalid_message"`
	InvalidLabel   string `koanf:"invalid_label" mapstructure:"invalid_label" yaml:"invalid_label" json:"invalid_label"`
	InvalidSpeech  string `koanf:"invalid_speech" mapstructure:"invalid_speech" yaml:"invalid_speech" json:"invalid_speech"`
}

func DefaultCopy() Copy {
	return Copy{
		PaidMessage:    "{name} 학생은 학생회비를 납부했습니다.",
		PaidLabel:      "납부 완료",
		PaidSpeech:     "납부 확인되었습니다",
		UnpaidMessage:  "{name} 학생은 학생회비 미납 상태입니다.",
		UnpaidLabel:    "미납",
		UnpaidSpeech:   "미납 상태입니다",
		InvalidMessage: "유효하지 않은 QR 코드입니다.",
		InvalidLabel:   "확인 불가",
		InvalidSpeech:  "다시 시도해 주세요",
	}
}

// Merge overlays the non empty fields of other.
func (c Copy) Merge(other Copy) Copy {
	pick := func(base, override string) string {
		if strings.TrimSpace(override) != "" {
			return override
		}
		return base
	}
	return Copy{
		PaidMessage:    pick(c.PaidMessage, other.PaidMessage),
		PaidLabel:      pick(c.PaidLabel, other.PaidLabel),
		PaidSpeech:     pick(c.PaidSpeech, other.PaidSpeech),
		UnpaidMessage:  pick(c.UnpaidMessage, other.UnpaidMessage),
		UnpaidLabel:    pick(c.UnpaidLabel, other.UnpaidLabel),
		UnpaidSpeech:   pick(c.UnpaidSpeech, other.UnpaidSpeech),
		InvalidMessage: pick(c.InvalidMessage, other.InvalidMessage),
		InvalidLabel:   pick(c.InvalidLabel, other.InvalidLabel),
		InvalidSpeech:  pick(c.InvalidSpeech, other.InvalidSpeech),
	}
}

// DefaultScannerConfig is the fee scanner screen preset.
func DefaultScannerConfig() scanner.Config {
	cp := DefaultCopy()
	return scanner.DefaultConfig().Merge(scanner.Config{
		Title:             "학생회비 납부 확인",
		Instructions:      "학생증의 QR 코드를 화면에 비춰 주세요.",
		ProcessingMessage: "납부 내역을 확인하고 있습니다...",
		BackRoute:         "/fees",
		Copy: map[scanner.OutcomeStatus]scanner.StatusCopy{
			scanner.OutcomeSuccess: {ActionLabel: cp.PaidLabel, Speech: cp.PaidSpeech},
			scanner.OutcomeDenied:  {ActionLabel: cp.UnpaidLabel, Speech: cp.UnpaidSpeech},
			scanner.OutcomeInvalid: {ActionLabel: cp.InvalidLabel, Speech: cp.InvalidSpeech},
		},
	})
}

type processor struct {
	checker DuesChecker
	copy    Copy
	logger  glog.Logger
}

type Option func(*processor)

func WithLogger(logger glog.Logger) Option {
	return func(p *processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor classifies dues responses: paid is success, unpaid is
// denied, an unknown or malformed token is invalid. Transport errors are
// returned as is and become the scanner fallback.
func NewProcessor(checker DuesChecker, c Copy, opts ...Option) scanner.ProcessFunc {
	p := &processor{
		checker: checker,
		copy:    DefaultCopy().Merge(c),
		logger:  glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p.process
}

func (p *processor) process(ctx context.Context, token scanner.Token) (scanner.Outcome, error) {
	if p.checker == nil {
		return scanner.Outcome{}, scanner.NewTransportFailure(nil, "dues checker not configured")
	}

	res, err := p.checker.VerifyDues(ctx, token)
	switch {
	case err == nil:
	case scanner.IsInvalidToken(err):
		p.logger.Debug("dues token rejected", "error", err)
		return p.invalid(), nil
	case scanner.IsBusinessDenied(err):
		return p.unpaid(""), nil
	default:
		return scanner.Outcome{}, err
	}

	if res.Approved {
		return scanner.Success(fill(p.copy.PaidMessage, res.StudentName), p.copy.PaidLabel).
			WithSpeech(p.copy.PaidSpeech), nil
	}

	switch strings.ToLower(strings.TrimSpace(res.Status)) {
	case "unknown", "invalid", "not_found":
		return p.invalid(), nil
	}

	return p.unpaid(res.StudentName), nil
}

func (p *processor) unpaid(name string) scanner.Outcome {
	return scanner.Denied(fill(p.copy.UnpaidMessage, name), p.copy.UnpaidLabel).
		WithSpeech(p.copy.UnpaidSpeech)
}

func (p *processor) invalid() scanner.Outcome {
	return scanner.Invalid(p.copy.InvalidMessage, p.copy.InvalidLabel).
		WithSpeech(p.copy.InvalidSpeech)
}

func fill(template, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "해당"
	}
	return strings.ReplaceAll(template, "{name}", name)
}
