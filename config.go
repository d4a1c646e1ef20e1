package scanner

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	DefaultDwell          = 3 * time.Second
	DefaultProcessTimeout = 15 * time.Second
	DefaultRescanCooldown = 2 * time.Second
	DefaultSpeechTimeout  = 5 * time.Second

	DefaultFallbackMessage = "처리 중 문제가 발생했습니다. 다시 시도해 주세요."
	DefaultTimeoutMessage  = "응답이 지연되고 있습니다. 다시 시도해 주세요."
)

// StatusCopy holds the per status strings and badge hints.
type StatusCopy struct {
	ActionLabel string `koanf:"action_label" mapstructure:"action_label" yaml:"action_label" json:"action_label"`
	Speech      string `koanf:"speech" mapstructure:"speech" yaml:"speech" json:"speech,omitempty"`
	Icon        string `koanf:"icon" mapstructure:"icon" yaml:"icon" json:"icon,omitempty"`
	Color       string `koanf:"color" mapstructure:"color" yaml:"color" json:"color,omitempty"`
}

// Config is the static per instance scanner configuration.
type Config struct {
	Title               string                       `koanf:"title" mapstructure:"title" yaml:"title" json:"title"`
	Instructions        string                       `koanf:"instructions" mapstructure:"instructions" yaml:"instructions" json:"instructions"`
	ProcessingMessage   string                       `koanf:"processing_message" mapstructure:"processing_message" yaml:"processing_message" json:"processing_message"`
	Copy                map[OutcomeStatus]StatusCopy `koanf:"copy" mapstructure:"copy" yaml:"copy" json:"copy"`
	FallbackMessage     string                       `koanf:"fallback_message" mapstructure:"fallback_message" yaml:"fallback_message" json:"fallback_message"`
	TimeoutMessage      string                       `koanf:"timeout_message" mapstructure:"timeout_message" yaml:"timeout_message" json:"timeout_message"`
	AllowCameraToggle   bool                         `koanf:"allow_camera_toggle" mapstructure:"allow_camera_toggle" yaml:"allow_camera_toggle" json:"allow_camera_toggle"`
	AllowRefresh        bool                         `koanf:"allow_refresh" mapstructure:"allow_refresh" yaml:"allow_refresh" json:"allow_refresh"`
	AutoReset           bool                         `koanf:"auto_reset" mapstructure:"auto_reset" yaml:"auto_reset" json:"auto_reset"`
	PauseCameraOnResult bool                         `koanf:"pause_camera_on_result" mapstructure:"pause_camera_on_result" yaml:"pause_camera_on_result" json:"pause_camera_on_result"`
	InitialFacing       Facing                       `koanf:"initial_facing" mapstructure:"initial_facing" yaml:"initial_facing" json:"initial_facing"`
	BackRoute           string                       `koanf:"back_route" mapstructure:"back_route" yaml:"back_route" json:"back_route"`

	DwellExpression          string `koanf:"dwell" mapstructure:"dwell" yaml:"dwell" json:"dwell"`
	ProcessTimeoutExpression string `koanf:"process_timeout" mapstructure:"process_timeout" yaml:"process_timeout" json:"process_timeout"`
	RescanCooldownExpression string `koanf:"rescan_cooldown" mapstructure:"rescan_cooldown" yaml:"rescan_cooldown" json:"rescan_cooldown"`
}

// DefaultConfig returns a configuration with the generic copy.
func DefaultConfig() Config {
	return Config{
		Title:             "QR 스캔",
		Instructions:      "QR 코드를 화면 중앙에 맞춰 주세요.",
		ProcessingMessage: "확인 중입니다...",
		Copy: map[OutcomeStatus]StatusCopy{
			OutcomeSuccess: {ActionLabel: "승인", Icon: "check-circle", Color: "green"},
			OutcomeDenied:  {ActionLabel: "거절", Icon: "x-circle", Color: "red"},
			OutcomeInvalid: {ActionLabel: "오류", Icon: "alert-triangle", Color: "orange", Speech: "다시 시도해 주세요"},
		},
		FallbackMessage:          DefaultFallbackMessage,
		TimeoutMessage:           DefaultTimeoutMessage,
		AllowCameraToggle:        true,
		AllowRefresh:             true,
		AutoReset:                true,
		PauseCameraOnResult:      true,
		InitialFacing:            FacingBack,
		DwellExpression:          DefaultDwell.String(),
		ProcessTimeoutExpression: DefaultProcessTimeout.String(),
		RescanCooldownExpression: DefaultRescanCooldown.String(),
	}
}

// Validate runs validation rules
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Title, validation.Required),
		validation.Field(&c.InitialFacing, validation.In(Facing(""), FacingBack, FacingFront)),
		validation.Field(&c.Copy, validation.By(validateCopy)),
		// a zero dwell never arms the reset timer
		validation.Field(&c.DwellExpression, validation.By(durationRule("dwell", c.AutoReset))),
		validation.Field(&c.ProcessTimeoutExpression, validation.By(durationRule("process_timeout", true))),
		validation.Field(&c.RescanCooldownExpression, validation.By(durationRule("rescan_cooldown", false))),
	)
}

// Dwell is how long a result stays on screen before the auto reset.
func (c Config) Dwell() time.Duration {
	return parseDurationOr(c.DwellExpression, DefaultDwell)
}

// ProcessTimeout bounds a single verification call.
func (c Config) ProcessTimeout() time.Duration {
	return parseDurationOr(c.ProcessTimeoutExpression, DefaultProcessTimeout)
}

// RescanCooldown is the window in which the same token is ignored after a cycle.
func (c Config) RescanCooldown() time.Duration {
	return parseDurationOr(c.RescanCooldownExpression, DefaultRescanCooldown)
}

// CopyFor returns the copy registered for status, empty when missing.
func (c Config) CopyFor(status OutcomeStatus) StatusCopy {
	if c.Copy == nil {
		return StatusCopy{}
	}
	return c.Copy[status]
}

// Fallback builds the outcome used when the verification call fails.
func (c Config) Fallback(message string) Outcome {
	if strings.TrimSpace(message) == "" {
		message = c.FallbackMessage
	}
	if strings.TrimSpace(message) == "" {
		message = DefaultFallbackMessage
	}
	cp := c.CopyFor(OutcomeInvalid)
	return Outcome{
		Status:      OutcomeInvalid,
		Message:     message,
		ActionLabel: cp.ActionLabel,
		Speech:      cp.Speech,
	}
}

// Merge overlays non zero fields from other onto a copy of c.
func (c Config) Merge(other Config) Config {
	out := c.clone()
	if other.Title != "" {
		out.Title = other.Title
	}
	if other.Instructions != "" {
		out.Instructions = other.Instructions
	}
	if other.ProcessingMessage != "" {
		out.ProcessingMessage = other.ProcessingMessage
	}
	for status, cp := range other.Copy {
		if out.Copy == nil {
			out.Copy = map[OutcomeStatus]StatusCopy{}
		}
		base := out.Copy[status]
		if cp.ActionLabel != "" {
			base.ActionLabel = cp.ActionLabel
		}
		if cp.Speech != "" {
			base.Speech = cp.Speech
		}
		if cp.Icon != "" {
			base.Icon = cp.Icon
		}
		if cp.Color != "" {
			base.Color = cp.Color
		}
		out.Copy[status] = base
	}
	if other.FallbackMessage != "" {
		out.FallbackMessage = other.FallbackMessage
	}
	if other.TimeoutMessage != "" {
		out.TimeoutMessage = other.TimeoutMessage
	}
	if other.InitialFacing != "" {
		out.InitialFacing = other.InitialFacing
	}
	if other.BackRoute != "" {
		out.BackRoute = other.BackRoute
	}
	if other.DwellExpression != "" {
		out.DwellExpression = other.DwellExpression
	}
	if other.ProcessTimeoutExpression != "" {
		out.ProcessTimeoutExpression = other.ProcessTimeoutExpression
	}
	if other.RescanCooldownExpression != "" {
		out.RescanCooldownExpression = other.RescanCooldownExpression
	}
	return out
}

func (c Config) clone() Config {
	out := c
	if c.Copy != nil {
		out.Copy = make(map[OutcomeStatus]StatusCopy, len(c.Copy))
		for k, v := range c.Copy {
			out.Copy[k] = v
		}
	}
	return out
}

func validateCopy(value any) error {
	copies, ok := value.(map[OutcomeStatus]StatusCopy)
	if !ok {
		return nil
	}
	for status := range copies {
		if !status.Valid() {
			return fmt.Errorf("unknown outcome status %q", status)
		}
	}
	return nil
}

// durationRule accepts an empty expression (the default applies) or a
// parseable duration. When positive is set the duration must be above zero.
func durationRule(name string, positive bool) func(value any) error {
	return func(value any) error {
		expr, _ := value.(string)
		if strings.TrimSpace(expr) == "" {
			return nil
		}
		d, err := time.ParseDuration(expr)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
		if positive && d == 0 {
			return fmt.Errorf("%s must be greater than zero", name)
		}
		return nil
	}
}

func parseDurationOr(expr string, def time.Duration) time.Duration {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return def
	}
	d, err := time.ParseDuration(expr)
	if err != nil || d < 0 {
		return def
	}
	return d
}
