package config_test

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-scanner/config"
	"github.com/goliatone/go-scanner/history"
)

func envFrom(values map[string]string) config.LookupEnv {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadRequiresVerifierURL(t *testing.T) {
	_, err := config.NewLoader(config.WithLookupEnv(envFrom(nil))).Load(context.Background())
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "CONFIG_INVALID", richErr.TextCode)
}

func TestLoadDefaultsWithEnv(t *testing.T) {
	app, err := config.NewLoader(
		config.WithFile("missing.yaml"),
		config.WithFS(fstest.MapFS{}),
		config.WithLookupEnv(envFrom(map[string]string{
			"SCANNER_VERIFIER_BASE_URL": "https://council.example.edu/api",
			"SCANNER_DEBUG":             "true",
			"SCANNER_HISTORY_ENABLED":   "nope",
		})),
	).Load(context.Background())
	require.NoError(t, err)

	assert.True(t, app.Debug)
	assert.Equal(t, ":8572", app.Server.Address)
	assert.Equal(t, "https://council.example.edu/api", app.Verifier.BaseURL)
	assert.True(t, app.History.Enabled)
	assert.Equal(t, history.DriverSQLite3, app.History.Driver)
	assert.Equal(t, 90*24*time.Hour, app.History.Store().TTL)
	assert.Equal(t, time.Hour, app.History.PruneInterval())
	assert.Equal(t, 10*time.Second, app.Verifier.Timeout())
	assert.True(t, app.Fees.Enabled)
	assert.NotEmpty(t, app.Fees.Scanner.Title)
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	fsys := fstest.MapFS{
		"config.yaml": &fstest.MapFile{Data: []byte(`
name: desk-2
server:
  address: ":9000"
verifier:
  base_url: https://file.example.edu
  timeout: 3s
history:
  driver: postgres
  dsn: postgres://scanner@localhost/scanner?sslmode=disable
  row_cap: 500
rental:
  enabled: false
camera:
  source: none
`)},
	}

	app, err := config.NewLoader(
		config.WithFile("config.yaml"),
		config.WithFS(fsys),
		config.WithLookupEnv(envFrom(map[string]string{
			"SCANNER_SERVER_ADDRESS": ":9100",
		})),
	).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "desk-2", app.Name)
	assert.Equal(t, ":9100", app.Server.Address)
	assert.Equal(t, "https://file.example.edu", app.Verifier.BaseURL)
	assert.Equal(t, 3*time.Second, app.Verifier.Timeout())
	assert.Equal(t, history.DriverPostgres, app.History.Driver)
	assert.Equal(t, 500, app.History.Store().Retention().RowCap)
	assert.False(t, app.Rental.Enabled)
	assert.Equal(t, config.CameraSourceNone, app.Camera.Source)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad duration", "verifier:\n  base_url: https://x.example\n  timeout: soon\n"},
		{"unknown driver", "verifier:\n  base_url: https://x.example\nhistory:\n  driver: oracle\n"},
		{"unknown camera source", "verifier:\n  base_url: https://x.example\ncamera:\n  source: usb\n"},
		{"bad location", "verifier:\n  base_url: https://x.example\nrental:\n  location: Mars/Olympus\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.NewLoader(
				config.WithFile("config.yaml"),
				config.WithFS(fstest.MapFS{"config.yaml": &fstest.MapFile{Data: []byte(tt.yaml)}}),
				config.WithLookupEnv(envFrom(nil)),
			).Load(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := config.NewLoader(
		config.WithFile("config.yaml"),
		config.WithFS(fstest.MapFS{"config.yaml": &fstest.MapFile{Data: []byte("server: [")}}),
		config.WithLookupEnv(envFrom(nil)),
	).Load(context.Background())
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "CONFIG_PARSE", richErr.TextCode)
}

func TestLoadHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := config.NewLoader(config.WithLookupEnv(envFrom(nil))).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
