package verifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanner "github.com/goliatone/go-scanner"
	"github.com/goliatone/go-scanner/verifier"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, session verifier.Session) *verifier.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := verifier.NewClient(verifier.Config{
		BaseURL: srv.URL + "/",
		Timeout: time.Second,
		Session: session,
	})
	require.NoError(t, err)
	return client
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	_, err := verifier.NewClient(verifier.Config{})
	assert.Error(t, err)

	_, err = verifier.NewClient(verifier.Config{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestVerifyDuesSendsTokenAndBearer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/dues/verify", r.URL.Path)
		assert.Equal(t, "Bearer staff-1", r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "T123", body["token"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"approved":true,"status":"paid","student_name":"Ada","student_id":"S1"}`))
	}, verifier.NewStaticSession("staff-1"))

	res, err := client.VerifyDues(context.Background(), " T123 ")
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Equal(t, "Ada", res.StudentName)
}

func TestProcessRentalDecodesDueDate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rentals/process", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":"ok","action":"rented","item_name":"Calculator","due_at":"2024-03-05T17:00:00Z"}`))
	}, nil)

	res, err := client.ProcessRental(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, "rented", res.Action)
	require.NotNil(t, res.DueAt)
	assert.Equal(t, 2024, res.DueAt.Year())
}

func TestClientMapsStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
		reason string
	}{
		{"not found", http.StatusNotFound, `{}`, scanner.IsInvalidToken, "unrecognized token"},
		{"bad request", http.StatusBadRequest, `{"reason":"malformed"}`, scanner.IsInvalidToken, "malformed"},
		{"conflict", http.StatusConflict, `{"message":"dues unpaid"}`, scanner.IsBusinessDenied, "dues unpaid"},
		{"payment required", http.StatusPaymentRequired, `{"error":"balance due"}`, scanner.IsBusinessDenied, "balance due"},
		{"server error", http.StatusBadGateway, `oops`, scanner.IsTransportFailure, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			_, err := client.VerifyDues(context.Background(), "T1")
			require.Error(t, err)
			assert.True(t, tt.check(err))
			if tt.reason != "" {
				assert.Equal(t, tt.reason, errMessage(err))
			}
		})
	}
}

func TestClientMalformedBodyIsTransportFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}, nil)

	_, err := client.VerifyDues(context.Background(), "T1")
	require.Error(t, err)
	assert.True(t, scanner.IsTransportFailure(err))
}

func TestClientRejectsEmptyToken(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	}, nil)

	_, err := client.VerifyDues(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, scanner.IsInvalidToken(err))
	assert.Zero(t, calls)
}

func TestClientSessionFailureIsTransportFailure(t *testing.T) {
	calls := 0
	session := verifier.SessionFunc(func(context.Context) (string, error) {
		return "", errors.New("keychain locked")
	})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	}, session)

	_, err := client.VerifyDues(context.Background(), "T1")
	require.Error(t, err)
	assert.True(t, scanner.IsTransportFailure(err))
	assert.Zero(t, calls)
}

func errMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Message
	}
	return ""
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "staff-7",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	raw, err := token.SignedString([]byte("not-the-backend-key"))
	require.NoError(t, err)
	return raw
}

func TestStaticSession(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("opaque token passes through", func(t *testing.T) {
		got, err := verifier.NewStaticSession(" opaque ").WithNow(clock).Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "opaque", got)
	})

	t.Run("empty token", func(t *testing.T) {
		got, err := verifier.NewStaticSession("").Token(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("valid jwt", func(t *testing.T) {
		raw := signedToken(t, now.Add(time.Hour))
		got, err := verifier.NewStaticSession(raw).WithNow(clock).Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	})

	t.Run("expired jwt", func(t *testing.T) {
		raw := signedToken(t, now.Add(-time.Hour))
		_, err := verifier.NewStaticSession(raw).WithNow(clock).Token(context.Background())
		require.Error(t, err)
		assert.True(t, verifier.IsSessionExpired(err))
	})
}
