// Package config loads the scanner service configuration. Values come from
// built in defaults, an optional YAML file and SCANNER_* environment
// variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	scanner "github.com/goliatone/go-scanner"
	"github.com/goliatone/go-scanner/fees"
	"github.com/goliatone/go-scanner/history"
	"github.com/goliatone/go-scanner/rental"
)

type App struct {
	Name     string        `koanf:"name" mapstructure:"name" yaml:"name" json:"name"`
	Debug    bool          `koanf:"debug" mapstructure:"debug" yaml:"debug" json:"debug"`
	Server   Server        `koanf:"server" mapstructure:"server" yaml:"server" json:"server"`
	Device   Device        `koanf:"device" mapstructure:"device" yaml:"device" json:"device"`
	History  History       `koanf:"history" mapstructure:"history" yaml:"history" json:"history"`
	Verifier Verifier      `koanf:"verifier" mapstructure:"verifier" yaml:"verifier" json:"verifier"`
	Speech   Speech        `koanf:"speech" mapstructure:"speech" yaml:"speech" json:"speech"`
	Camera   Camera        `koanf:"camera" mapstructure:"camera" yaml:"camera" json:"camera"`
	Fees     FeesScanner   `koanf:"fees" mapstructure:"fees" yaml:"fees" json:"fees"`
	Rental   RentalScanner `koanf:"rental" mapstructure:"rental" yaml:"rental" json:"rental"`
}

type Server struct {
	Address                   string `koanf:"address" mapstructure:"address" yaml:"address" json:"address"`
	ShutdownTimeoutExpression string `koanf:"shutdown_timeout" mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Device configures the bearer token kiosks present on the scanner routes.
type Device struct {
	Enabled   bool     `koanf:"enabled" mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Secret    string   `koanf:"secret" mapstructure:"secret" yaml:"secret" json:"-"`
	Algorithm string   `koanf:"algorithm" mapstructure:"algorithm" yaml:"algorithm" json:"algorithm"`
	JWKSURLs  []string `koanf:"jwks_urls" mapstructure:"jwks_urls" yaml:"jwks_urls" json:"jwks_urls"`
	Audience  string   `koanf:"audience" mapstructure:"audience" yaml:"audience" json:"audience"`
}

type History struct {
	Enabled                 bool   `koanf:"enabled" mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Driver                  string `koanf:"driver" mapstructure:"driver" yaml:"driver" json:"driver"`
	DSN                     string `koanf:"dsn" mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	Debug                   bool   `koanf:"debug" mapstructure:"debug" yaml:"debug" json:"debug"`
	PingTimeoutExpression   string `koanf:"ping_timeout" mapstructure:"ping_timeout" yaml:"ping_timeout" json:"ping_timeout"`
	TTLExpression           string `koanf:"ttl" mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	RowCap                  int    `koanf:"row_cap" mapstructure:"row_cap" yaml:"row_cap" json:"row_cap"`
	PruneIntervalExpression string `koanf:"prune_interval" mapstructure:"prune_interval" yaml:"prune_interval" json:"prune_interval"`
}

type Verifier struct {
	BaseURL           string `koanf:"base_url" mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	StaffToken        string `koanf:"staff_token" mapstructure:"staff_token" yaml:"staff_token" json:"-"`
	TimeoutExpression string `koanf:"timeout" mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

type Speech struct {
	Command           string   `koanf:"command" mapstructure:"command" yaml:"command" json:"command"`
	Args              []string `koanf:"args" mapstructure:"args" yaml:"args" json:"args"`
	TimeoutExpression string   `koanf:"timeout" mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// Camera selects where decoded tokens come from. "stdin" reads one token per
// line, which is how handheld readers in keyboard mode behave. Target names
// the scanner the reader is attached to.
type Camera struct {
	Source string `koanf:"source" mapstructure:"source" yaml:"source" json:"source"`
	Target string `koanf:"target" mapstructure:"target" yaml:"target" json:"target"`
	Buffer int    `koanf:"buffer" mapstructure:"buffer" yaml:"buffer" json:"buffer"`
}

type FeesScanner struct {
	Enabled bool           `koanf:"enabled" mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Scanner scanner.Config `koanf:"scanner" mapstructure:"scanner" yaml:"scanner" json:"scanner"`
	Copy    fees.Copy      `koanf:"copy" mapstructure:"copy" yaml:"copy" json:"copy"`
}

type RentalScanner struct {
	Enabled  bool           `koanf:"enabled" mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Scanner  scanner.Config `koanf:"scanner" mapstructure:"scanner" yaml:"scanner" json:"scanner"`
	Copy     rental.Copy    `koanf:"copy" mapstructure:"copy" yaml:"copy" json:"copy"`
	Location string         `koanf:"location" mapstructure:"location" yaml:"location" json:"location"`
}

const (
	CameraSourceStdin = "stdin"
	CameraSourceNone  = "none"
)

func Defaults() App {
	return App{
		Name: "scanner",
		Server: Server{
			Address:                   ":8572",
			ShutdownTimeoutExpression: "10s",
		},
		Device: Device{
			Algorithm: "HS256",
		},
		History: History{
			Enabled:                 true,
			Driver:                  history.DriverSQLite3,
			DSN:                     "file:scanner.db?cache=shared&_foreign_keys=on",
			PingTimeoutExpression:   history.DefaultPingTimeout.String(),
			TTLExpression:           (90 * 24 * time.Hour).String(),
			RowCap:                  100000,
			PruneIntervalExpression: time.Hour.String(),
		},
		Verifier: Verifier{
			TimeoutExpression: "10s",
		},
		Speech: Speech{
			TimeoutExpression: scanner.DefaultSpeechTimeout.String(),
		},
		Camera: Camera{
			Source: CameraSourceStdin,
			Target: fees.ScannerName,
			Buffer: 1,
		},
		Fees: FeesScanner{
			Enabled: true,
			Scanner: fees.DefaultScannerConfig(),
			Copy:    fees.DefaultCopy(),
		},
		Rental: RentalScanner{
			Enabled: true,
			Scanner: rental.DefaultScannerConfig(),
			Copy:    rental.DefaultCopy(),
		},
	}
}

// Validate runs validation rules
func (a App) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Name, validation.Required),
		validation.Field(&a.Server),
		validation.Field(&a.Device),
		validation.Field(&a.History),
		validation.Field(&a.Verifier),
		validation.Field(&a.Speech),
		validation.Field(&a.Camera),
		validation.Field(&a.Fees),
		validation.Field(&a.Rental),
	)
}

func (f FeesScanner) Validate() error {
	if !f.Enabled {
		return nil
	}
	return f.Scanner.Validate()
}

func (r RentalScanner) Validate() error {
	if !r.Enabled {
		return nil
	}
	if _, err := r.TimeLocation(); err != nil {
		return err
	}
	return r.Scanner.Validate()
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Address, validation.Required),
		validation.Field(&s.ShutdownTimeoutExpression, validation.By(durationRule)),
	)
}

func (s Server) ShutdownTimeout() time.Duration {
	return mustDuration(s.ShutdownTimeoutExpression, 10*time.Second)
}

func (d Device) Validate() error {
	if !d.Enabled {
		return nil
	}
	if strings.TrimSpace(d.Secret) == "" && len(d.JWKSURLs) == 0 {
		return fmt.Errorf("device auth needs a secret or jwks_urls")
	}
	return validation.ValidateStruct(&d,
		validation.Field(&d.Algorithm, validation.In("HS256", "HS384", "HS512")),
	)
}

func (h History) Validate() error {
	if !h.Enabled {
		return nil
	}
	return validation.ValidateStruct(&h,
		validation.Field(&h.Driver, validation.Required, validation.In(
			history.DriverSQLite3, history.DriverSQLite, history.DriverPostgres,
		)),
		validation.Field(&h.DSN, validation.Required),
		validation.Field(&h.PingTimeoutExpression, validation.By(durationRule)),
		validation.Field(&h.TTLExpression, validation.By(durationRule)),
		validation.Field(&h.PruneIntervalExpression, validation.By(durationRule)),
		validation.Field(&h.RowCap, validation.Min(0)),
	)
}

// Store converts the section into the history package configuration.
func (h History) Store() history.Config {
	return history.Config{
		Driver:      h.Driver,
		DSN:         h.DSN,
		Debug:       h.Debug,
		PingTimeout: mustDuration(h.PingTimeoutExpression, history.DefaultPingTimeout),
		TTL:         mustDuration(h.TTLExpression, 0),
		RowCap:      h.RowCap,
	}
}

func (h History) PruneInterval() time.Duration {
	return mustDuration(h.PruneIntervalExpression, time.Hour)
}

func (v Verifier) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.BaseURL, validation.Required),
		validation.Field(&v.TimeoutExpression, validation.By(durationRule)),
	)
}

func (v Verifier) Timeout() time.Duration {
	return mustDuration(v.TimeoutExpression, 10*time.Second)
}

func (s Speech) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.TimeoutExpression, validation.By(durationRule)),
	)
}

func (s Speech) Timeout() time.Duration {
	return mustDuration(s.TimeoutExpression, scanner.DefaultSpeechTimeout)
}

func (c Camera) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Source, validation.In(CameraSourceStdin, CameraSourceNone, "")),
		validation.Field(&c.Target, validation.In(fees.ScannerName, rental.ScannerName, "")),
		validation.Field(&c.Buffer, validation.Min(0)),
	)
}

// TimeLocation resolves the zone used to print due dates.
func (r RentalScanner) TimeLocation() (*time.Location, error) {
	name := strings.TrimSpace(r.Location)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q", name)
	}
	return loc, nil
}

func durationRule(value any) error {
	expr, _ := value.(string)
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	d, err := time.ParseDuration(expr)
	if err != nil {
		return fmt.Errorf("invalid duration %q", expr)
	}
	if d < 0 {
		return fmt.Errorf("duration %q must not be negative", expr)
	}
	return nil
}

func mustDuration(expr string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(expr) == "" {
		return fallback
	}
	d, err := time.ParseDuration(expr)
	if err != nil {
		return fallback
	}
	return d
}
