package deviceguard_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"

	"github.com/goliatone/go-scanner/middleware/deviceguard"
)

var testKey = []byte("device-secret")

func deviceToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if claims["exp"] == nil {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newGuard(cfg deviceguard.Config) router.HandlerFunc {
	if cfg.SigningKey.Key == nil && cfg.KeyFunc == nil {
		cfg.SigningKey = deviceguard.SigningKey{Key: testKey, JWTAlg: jwt.SigningMethodHS256.Alg()}
	}
	cfg.ErrorHandler = func(ctx router.Context, err error) error { return err }
	return deviceguard.New(cfg)(func(ctx router.Context) error {
		return ctx.Next()
	})
}

func TestGuardAcceptsValidToken(t *testing.T) {
	token := deviceToken(t, jwt.MapClaims{"sub": "kiosk-1", "scanners": []string{"fees"}})
	handler := newGuard(deviceguard.Config{})

	ctx := newMockContext()
	ctx.ParamsM["name"] = "fees"
	ctx.HeadersM["Authorization"] = "Bearer " + token
	ctx.On("Locals", "device", mock.AnythingOfType("*deviceguard.Claims")).Return(nil)

	if err := handler(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ctx.NextCalled {
		t.Fatal("expected next handler to run")
	}

	var stored *deviceguard.Claims
	for _, call := range ctx.Calls {
		if call.Method == "Locals" {
			stored, _ = call.Arguments.Get(1).(*deviceguard.Claims)
		}
	}
	if stored.DeviceID() != "kiosk-1" {
		t.Fatalf("expected device kiosk-1, got %q", stored.DeviceID())
	}
}

func TestGuardRejectsScannerOutsideClaims(t *testing.T) {
	token := deviceToken(t, jwt.MapClaims{"sub": "kiosk-1", "scanners": []string{"fees"}})
	handler := newGuard(deviceguard.Config{})

	ctx := newMockContext()
	ctx.ParamsM["name"] = "rental"
	ctx.HeadersM["Authorization"] = "Bearer " + token

	err := handler(ctx)
	if !errors.Is(err, deviceguard.ErrScannerNotAllowed) {
		t.Fatalf("expected scanner not allowed, got %v", err)
	}
	if ctx.NextCalled {
		t.Fatal("next handler should not run")
	}
}

func TestGuardRejectsMissingAndExpiredTokens(t *testing.T) {
	handler := newGuard(deviceguard.Config{})

	ctx := newMockContext()
	if err := handler(ctx); !errors.Is(err, deviceguard.ErrTokenMissingOrMalformed) {
		t.Fatalf("expected missing token error, got %v", err)
	}

	expired := deviceToken(t, jwt.MapClaims{"sub": "kiosk-1", "exp": time.Now().Add(-time.Hour).Unix()})
	ctx = newMockContext()
	ctx.HeadersM["Authorization"] = "Bearer " + expired
	err := handler(ctx)
	if err == nil || !strings.Contains(err.Error(), "token is expired") {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestGuardChecksAudience(t *testing.T) {
	token := deviceToken(t, jwt.MapClaims{"sub": "kiosk-1", "aud": "other-service"})
	handler := newGuard(deviceguard.Config{Audience: "scanner"})

	ctx := newMockContext()
	ctx.HeadersM["Authorization"] = "Bearer " + token
	if err := handler(ctx); err == nil {
		t.Fatal("expected audience mismatch error")
	}
}

func TestGuardQueryLookupAndFilter(t *testing.T) {
	token := deviceToken(t, jwt.MapClaims{"sub": "kiosk-2"})
	handler := newGuard(deviceguard.Config{
		TokenLookup: "header:Authorization,query:device_token",
		Filter: func(ctx router.Context) bool {
			return ctx.Query("skip", "") == "1"
		},
	})

	ctx := newMockContext()
	ctx.QueriesM["device_token"] = token
	ctx.On("Locals", "device", mock.Anything).Return(nil)
	if err := handler(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx = newMockContext()
	ctx.QueriesM["skip"] = "1"
	if err := handler(ctx); err != nil {
		t.Fatalf("filtered request should pass: %v", err)
	}
	if !ctx.NextCalled {
		t.Fatal("expected filtered request to reach next")
	}
}

func TestClaimsAllows(t *testing.T) {
	open := &deviceguard.Claims{}
	if !open.Allows("fees") {
		t.Fatal("empty scanner list should allow every scanner")
	}

	scoped := &deviceguard.Claims{Scanners: []string{"rental"}}
	if scoped.Allows("fees") || !scoped.Allows("rental") || !scoped.Allows("") {
		t.Fatalf("unexpected scope result for %#v", scoped.Scanners)
	}

	var missing *deviceguard.Claims
	if missing.Allows("fees") {
		t.Fatal("nil claims must not allow anything")
	}
}

func TestNewRequiresKeyMaterial(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic without key material")
		}
	}()
	deviceguard.New(deviceguard.Config{})
}

func TestGuardDefaultErrorHandlerStatuses(t *testing.T) {
	scoped := deviceToken(t, jwt.MapClaims{"sub": "kiosk-1", "scanners": []string{"fees"}})
	expired := deviceToken(t, jwt.MapClaims{"sub": "kiosk-1", "exp": time.Now().Add(-time.Hour).Unix()})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing token", "", router.StatusUnauthorized, deviceguard.ErrTokenMissingOrMalformed.Error()},
		{"wrong scheme", "Basic " + scoped, router.StatusUnauthorized, deviceguard.ErrTokenMissingOrMalformed.Error()},
		{"expired token", "Bearer " + expired, router.StatusUnauthorized, "Invalid or expired device token"},
		{"scanner outside claims", "Bearer " + scoped, router.StatusForbidden, deviceguard.ErrScannerNotAllowed.Error()},
	}

	handler := deviceguard.New(deviceguard.Config{
		SigningKey: deviceguard.SigningKey{Key: testKey, JWTAlg: jwt.SigningMethodHS256.Alg()},
	})(func(ctx router.Context) error {
		return ctx.Next()
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newMockContext()
			ctx.ParamsM["name"] = "rental"
			if tt.header != "" {
				ctx.HeadersM["Authorization"] = tt.header
			}
			ctx.On("Status", tt.status).Once()
			ctx.On("SendString", tt.body).Return(nil).Once()

			if err := handler(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ctx.NextCalled {
				t.Fatal("next handler should not run")
			}
			ctx.AssertExpectations(t)
		})
	}
}
