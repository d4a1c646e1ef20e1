// Package rental maps rental desk responses onto scanner outcomes. A single
// scan either rents the item out or takes it back, the backend decides which.
package rental

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	scanner "github.com/goliatone/go-scanner"
	"github.com/goliatone/go-scanner/verifier"
)

const (
	ScannerName = "rental"

	StatusRented      = "rented"
	StatusReturned    = "returned"
	StatusUnavailable = "unavailable"
	StatusOverdue     = "overdue"
	StatusNotEligible = "not_eligible"
	StatusUnknown     = "unknown"

	ActionRent   = "rent"
	ActionReturn = "return"

	DueDateLayout = "2006-01-02"
)

// Desk is the remote call behind the rental scanner.
type Desk interface {
	ProcessRental(ctx context.Context, token scanner.Token) (verifier.RentalResult, error)
}

// Copy holds the rental scanner strings. "{item}" and "{due}" are
// replaced with the item name and the due date.
type Copy struct {
	RentedMessage      string `koanf:"rented_message" mapstructure:"rented_message" yaml:"rented_message" json:"rented_message"`
	RentedLabel        string `koanf:"rented_label" mapstructure:"rented_label" yaml:"rented_label" json:"rented_label"`
	RentedSpeech       string `koanf:"rented_speech" mapstructure:"rented_speech" yaml:"rented_speech" json:"rented_speech"`
	ReturnedMessage    string `koanf:"returned_message" mapstructure:"returned_message" yaml:"returned_message" json:"returned_message"`
	ReturnedLabel      string `koanf:"returned_label" mapstructure:"returned_label" yaml:"returned_label" json:"returned_label"`
	ReturnedSpeech     string `koanf:"returned_speech" mapstructure:"returned_speech" yaml:"returned_speech" json:"returned_speech"`
	UnavailableMessage string `koanf:"unavailable_message" mapstructure:"unavailable_message" yaml:"unavailable_message" json:"unavailable_message"`
	OverdueMessage     string `koanf:"overdue_message" mapstructure:"overdue_message" yaml:"overdue_message" json:"overdue_message"`
	NotEligibleMessage string `koanf:"not_eligible_message" mapstructure:"not_eligible_message" yaml:"not_eligible_message" json:"not_eligible_message"`
	DeniedLabel        string `koanf:"denied_label" mapstructure:"denied_label" yaml:"denied_label" json:"denied_label"`
	DeniedSpeech       string `koanf:"denied_speech" mapstructure:"denied_speech" yaml:"denied_speech" json:"denied_speech"`
	InvalidMessage     string `koanf:"invalid_message" mapstructure:"invalid_message" yaml:"invalid_message" json:"invalid_message"`
	InvalidLabel       string `koanf:"invalid_label" mapstructure:"invalid_label" yaml:"invalid_label" json:"invalid_label"`
	InvalidSpeech      string `koanf:"invalid_speech" mapstructure:"invalid_speech" yaml:"invalid_speech" json:"invalid_speech"`
}

func DefaultCopy() Copy {
	return Copy{
		RentedMessage:      "{item} 대여가 완료되었습니다. 반납 기한은 {due}입니다.",
		RentedLabel:        "대여 완료",
		RentedSpeech:       "대여되었습니다",
		ReturnedMessage:    "{item} 반납이 완료되었습니다.",
		ReturnedLabel:      "반납 완료",
		ReturnedSpeech:     "반납되었습니다",
		UnavailableMessage: "{item}은(는) 현재 대여할 수 없습니다.",
		OverdueMessage:     "연체된 물품이 있어 대여할 수 없습니다.",
		NotEligibleMessage: "대여 자격이 확인되지 않습니다.",
		DeniedLabel:        "처리 불가",
		DeniedSpeech:       "처리할 수 없습니다",
		InvalidMessage:     "등록되지 않은 QR 코드입니다.",
		InvalidLabel:       "확인 불가",
		InvalidSpeech:      "다시 시도해 주세요",
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
		RentedMessage:      pick(c.RentedMessage, other.RentedMessage),
		RentedLabel:        pick(c.RentedLabel, other.RentedLabel),
		RentedSpeech:       pick(c.RentedSpeech, other.RentedSpeech),
		ReturnedMessage:    pick(c.ReturnedMessage, other.ReturnedMessage),
		ReturnedLabel:      pick(c.ReturnedLabel, other.ReturnedLabel),
		ReturnedSpeech:     pick(c.ReturnedSpeech, other.ReturnedSpeech),
		UnavailableMessage: pick(c.UnavailableMessage, other.UnavailableMessage),
		OverdueMessage:     pick(c.OverdueMessage, other.OverdueMessage),
		NotEligibleMessage: pick(c.NotEligibleMessage, other.NotEligibleMessage),
		DeniedLabel:        pick(c.DeniedLabel, other.DeniedLabel),
		DeniedSpeech:       pick(c.DeniedSpeech, other.DeniedSpeech),
		InvalidMessage:     pick(c.InvalidMessage, other.InvalidMessage),
		InvalidLabel:       pick(c.InvalidLabel, other.InvalidLabel),
		InvalidSpeech:      pick(c.InvalidSpeech, other.InvalidSpeech),
	}
}

// DefaultScannerConfig is the rental desk screen preset.
func DefaultScannerConfig() scanner.Config {
	cp := DefaultCopy()
	return scanner.DefaultConfig().Merge(scanner.Config{
		Title:             "물품 대여 / 반납",
		Instructions:      "물품 또는 대여증의 QR 코드를 스캔해 주세요.",
		ProcessingMessage: "대여 정보를 처리하고 있습니다...",
		BackRoute:         "/rentals",
		Copy: map[scanner.OutcomeStatus]scanner.StatusCopy{
			scanner.OutcomeSuccess: {ActionLabel: cp.RentedLabel, Speech: cp.RentedSpeech},
			scanner.OutcomeDenied:  {ActionLabel: cp.DeniedLabel, Speech: cp.DeniedSpeech},
			scanner.OutcomeInvalid: {ActionLabel: cp.InvalidLabel, Speech: cp.InvalidSpeech},
		},
	})
}

type processor struct {
	desk     Desk
	copy     Copy
	location *time.Location
	logger   glog.Logger
}

type Option func(*processor)

func WithLogger(logger glog.Logger) Option {
	return func(p *processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLocation sets the zone used to print due dates.
func WithLocation(loc *time.Location) Option {
	return func(p *processor) {
		if loc != nil {
			p.location = loc
		}
	}
}

// NewProcessor classifies rental responses: rented or returned is success,
// an unavailable item, overdue rentals or a not eligible student is denied,
// an unknown token is invalid.
func NewProcessor(desk Desk, c Copy, opts ...Option) scanner.ProcessFunc {
	p := &processor{
		desk:     desk,
		copy:     DefaultCopy().Merge(c),
		location: time.Local,
		logger:   glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p.process
}

func (p *processor) process(ctx context.Context, token scanner.Token) (scanner.Outcome, error) {
	if p.desk == nil {
		return scanner.Outcome{}, scanner.NewTransportFailure(nil, "rental desk not configured")
	}

	res, err := p.desk.ProcessRental(ctx, token)
	switch {
	case err == nil:
	case scanner.IsInvalidToken(err):
		p.logger.Debug("rental token rejected", "error", err)
		return p.invalid(), nil
	case scanner.IsBusinessDenied(err):
		return p.denied(p.copy.NotEligibleMessage, res.ItemName), nil
	default:
		return scanner.Outcome{}, err
	}

	status := normalize(res.Status)
	if status == "ok" || status == "success" {
		// older desk builds only report the action
		status = StatusRented
		if normalize(res.Action) == ActionReturn {
			status = StatusReturned
		}
	}

	switch status {
	case StatusRented:
		return scanner.Success(p.fill(p.copy.RentedMessage, res.ItemName, res.DueAt), p.copy.RentedLabel).
			WithSpeech(p.copy.RentedSpeech), nil
	case StatusReturned:
		return scanner.Success(p.fill(p.copy.ReturnedMessage, res.ItemName, nil), p.copy.ReturnedLabel).
			WithSpeech(p.copy.ReturnedSpeech), nil
	case StatusUnavailable:
		return p.denied(p.copy.UnavailableMessage, res.ItemName), nil
	case StatusOverdue:
		return p.denied(p.copy.OverdueMessage, res.ItemName), nil
	case StatusNotEligible:
		return p.denied(p.copy.NotEligibleMessage, res.ItemName), nil
	case StatusUnknown, "":
		return p.invalid(), nil
	default:
		p.logger.Warn("unknown rental status", "status", res.Status)
		if reason := strings.TrimSpace(res.Reason); reason != "" {
			return p.denied(reason, res.ItemName), nil
		}
		return p.invalid(), nil
	}
}

func (p *processor) denied(message, item string) scanner.Outcome {
	return scanner.Denied(p.fill(message, item, nil), p.copy.DeniedLabel).
		WithSpeech(p.copy.DeniedSpeech)
}

func (p *processor) invalid() scanner.Outcome {
	return scanner.Invalid(p.copy.InvalidMessage, p.copy.InvalidLabel).
		WithSpeech(p.copy.InvalidSpeech)
}

func (p *processor) fill(template, item string, due *time.Time) string {
	item = strings.TrimSpace(item)
	if item == "" {
		item = "물품"
	}
	dueText := "-"
	if due != nil && !due.IsZero() {
		dueText = due.In(p.location).Format(DueDateLayout)
	}
	return strings.NewReplacer("{item}", item, "{due}", dueText).Replace(template)
}

func normalize(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
