package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "SCANNER_"

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// Loader resolves the App configuration.
type Loader struct {
	Path     string
	FS       fs.FS
	Lookup   LookupEnv
	Defaults App
}

type LoaderOption func(*Loader)

// WithFile reads the YAML file at path. A missing file is not an error.
func WithFile(path string) LoaderOption {
	return func(l *Loader) {
		l.Path = strings.TrimSpace(path)
	}
}

// WithFS resolves the file path against fsys instead of the working dir.
func WithFS(fsys fs.FS) LoaderOption {
	return func(l *Loader) {
		l.FS = fsys
	}
}

func WithLookupEnv(lookup LookupEnv) LoaderOption {
	return func(l *Loader) {
		l.Lookup = lookup
	}
}

func WithDefaults(defaults App) LoaderOption {
	return func(l *Loader) {
		l.Defaults = defaults
	}
}

func NewLoader(options ...LoaderOption) *Loader {
	l := &Loader{
		Lookup:   os.LookupEnv,
		Defaults: Defaults(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Load is a shortcut for NewLoader(WithFile(path)).Load(ctx).
func Load(ctx context.Context, path string) (App, error) {
	return NewLoader(WithFile(path)).Load(ctx)
}

// Load merges defaults, the file and the environment, then decodes and
// validates the result.
func (l *Loader) Load(ctx context.Context) (App, error) {
	if err := ctx.Err(); err != nil {
		return App{}, err
	}

	defaults, err := toLayerMap(l.Defaults)
	if err != nil {
		return App{}, goerrors.Wrap(err, goerrors.CategoryInternal, "config: encode defaults")
	}

	loaded, err := l.readFile()
	if err != nil {
		return App{}, err
	}

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaults,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("file", 10),
			loaded,
			opts.WithSnapshotID[map[string]any]("file"),
		),
		opts.NewLayer(
			opts.NewScope("env", 20),
			envLayer(l.Lookup),
			opts.WithSnapshotID[map[string]any]("env"),
		),
	)
	if err != nil {
		return App{}, fmt.Errorf("config: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return App{}, fmt.Errorf("config: options merge failed: %w", err)
	}

	app, err := cfgx.Build[App](merged.Value,
		cfgx.WithDefaults(l.Defaults),
		cfgx.WithValidator[App]((*App).Validate),
	)
	if err != nil {
		return App{}, goerrors.Wrap(err, goerrors.CategoryValidation, "config: invalid configuration").
			WithTextCode("CONFIG_INVALID")
	}
	return app, nil
}

func (l *Loader) readFile() (map[string]any, error) {
	if l.Path == "" {
		return map[string]any{}, nil
	}

	var (
		data []byte
		err  error
	)
	if l.FS != nil {
		data, err = fs.ReadFile(l.FS, l.Path)
	} else {
		data, err = os.ReadFile(l.Path)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "config: read file").
			WithMetadata(map[string]any{"path": l.Path})
	}

	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "config: parse yaml").
			WithTextCode("CONFIG_PARSE").
			WithMetadata(map[string]any{"path": l.Path})
	}
	return out, nil
}

// envLayer maps the supported SCANNER_* variables onto config keys.
func envLayer(lookup LookupEnv) map[string]any {
	layer := map[string]any{}
	if lookup == nil {
		return layer
	}

	set := func(path string, value any) {
		parts := strings.Split(path, ".")
		node := layer
		for _, part := range parts[:len(parts)-1] {
			next, ok := node[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				node[part] = next
			}
			node = next
		}
		node[parts[len(parts)-1]] = value
	}

	strs := map[string]string{
		"SERVER_ADDRESS":       "server.address",
		"DEVICE_SECRET":        "device.secret",
		"DEVICE_AUDIENCE":      "device.audience",
		"HISTORY_DRIVER":       "history.driver",
		"HISTORY_DSN":          "history.dsn",
		"VERIFIER_BASE_URL":    "verifier.base_url",
		"VERIFIER_STAFF_TOKEN": "verifier.staff_token",
		"VERIFIER_TIMEOUT":     "verifier.timeout",
		"SPEECH_COMMAND":       "speech.command",
		"CAMERA_SOURCE":        "camera.source",
	}
	for key, path := range strs {
		if value, ok := lookup(EnvPrefix + key); ok && strings.TrimSpace(value) != "" {
			set(path, strings.TrimSpace(value))
		}
	}

	bools := map[string]string{
		"DEBUG":           "debug",
		"DEVICE_ENABLED":  "device.enabled",
		"HISTORY_ENABLED": "history.enabled",
		"FEES_ENABLED":    "fees.enabled",
		"RENTAL_ENABLED":  "rental.enabled",
	}
	for key, path := range bools {
		value, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			set(path, parsed)
		}
	}

	return layer
}

func toLayerMap(app App) (map[string]any, error) {
	data, err := yaml.Marshal(app)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
