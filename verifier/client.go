// Package verifier is the HTTP client for the council backend's dues and
// rental endpoints. Responses are mapped onto the scanner error taxonomy so
// the specializations only deal with business results.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	scanner "github.com/goliatone/go-scanner"
)

const (
	DefaultTimeout           = 10 * time.Second
	defaultResponseBodyLimit = 1 << 20
	duesVerifyPath           = "/dues/verify"
	rentalProcessPath        = "/rentals/process"
	headerAuthorization      = "Authorization"
	headerContentType        = "Content-Type"
	contentTypeJSON          = "application/json"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Session    Session
	Logger     glog.Logger
}

// Client calls the verification endpoints.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	http    HTTPDoer
	session Session
	logger  glog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, goerrors.New("verifier base url is required", goerrors.CategoryValidation).
			WithCode(http.StatusBadRequest)
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, goerrors.New("verifier base url is invalid", goerrors.CategoryValidation).
			WithCode(http.StatusBadRequest).
			WithMetadata(map[string]any{"base_url": raw})
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		timeout: timeout,
		http:    httpClient,
		session: cfg.Session,
		logger:  glog.Ensure(cfg.Logger),
	}, nil
}

// DuesResult is the response of the dues verification endpoint.
type DuesResult struct {
	Approved    bool   `json:"approved"`
	Status      string `json:"status"`
	StudentName string `json:"student_name"`
	StudentID   string `json:"student_id"`
	Reason      string `json:"reason"`
}

// RentalResult is the response of the rental processing endpoint.
type RentalResult struct {
	Status   string     `json:"status"`
	Action   string     `json:"action"`
	ItemName string     `json:"item_name"`
	DueAt    *time.Time `json:"due_at,omitempty"`
	Reason   string     `json:"reason"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type errorBody struct {
	Reason  string `json:"reason"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (b errorBody) text() string {
	for _, candidate := range []string{b.Reason, b.Message, b.Error} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

// VerifyDues asks whether the student identified by token paid the dues.
func (c *Client) VerifyDues(ctx context.Context, token scanner.Token) (DuesResult, error) {
	var out DuesResult
	if err := c.post(ctx, duesVerifyPath, token, &out); err != nil {
		return DuesResult{}, err
	}
	return out, nil
}

// ProcessRental rents out or takes back the item the token refers to.
func (c *Client) ProcessRental(ctx context.Context, token scanner.Token) (RentalResult, error) {
	var out RentalResult
	if err := c.post(ctx, rentalProcessPath, token, &out); err != nil {
		return RentalResult{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, token scanner.Token, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	token = token.Normalize()
	if token == "" {
		return scanner.NewInvalidToken("token is empty")
	}

	body, err := json.Marshal(tokenRequest{Token: token.String()})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode verification request")
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL.JoinPath(path).String()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create verification request")
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	if c.session != nil {
		staff, err := c.session.Token(ctx)
		if err != nil {
			return scanner.NewTransportFailure(err, "staff session unavailable", map[string]any{"path": path})
		}
		if staff != "" {
			req.Header.Set(headerAuthorization, "Bearer "+staff)
		}
	}

	startedAt := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return scanner.NewTransportFailure(err, "verification request failed", map[string]any{"path": path})
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, defaultResponseBodyLimit+1))
	if err != nil {
		return scanner.NewTransportFailure(err, "failed to read verification response", map[string]any{
			"path":        path,
			"status_code": res.StatusCode,
		})
	}
	if len(payload) > defaultResponseBodyLimit {
		return scanner.NewTransportFailure(nil, fmt.Sprintf("verification response exceeds %d bytes", defaultResponseBodyLimit), map[string]any{
			"path":        path,
			"status_code": res.StatusCode,
		})
	}

	c.logger.Debug("verification response",
		"path", path,
		"status_code", res.StatusCode,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)

	if err := classifyStatus(path, res.StatusCode, payload); err != nil {
		return err
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return scanner.NewTransportFailure(err, "failed to decode verification response", map[string]any{
			"path":        path,
			"status_code": res.StatusCode,
		})
	}
	return nil
}

// classifyStatus maps non 2xx responses onto the scanner taxonomy.
func classifyStatus(path string, status int, payload []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var body errorBody
	_ = json.Unmarshal(payload, &body)
	reason := body.text()

	md := map[string]any{"path": path, "status_code": status}

	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		if reason == "" {
			reason = "unrecognized token"
		}
		return scanner.NewInvalidToken(reason, md)
	case http.StatusConflict, http.StatusPaymentRequired:
		return scanner.NewBusinessDenied(reason, md)
	default:
		return scanner.NewTransportFailure(nil, fmt.Sprintf("verification endpoint returned %d", status), md)
	}
}
