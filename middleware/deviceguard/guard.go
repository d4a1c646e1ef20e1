// Package deviceguard protects the scanner bridge routes. Kiosks present a
// signed device token; its claims may restrict which scanners the device
// is allowed to drive.
package deviceguard

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup = "header:" + router.HeaderAuthorization

	ErrTokenMissingOrMalformed = errors.New("missing or malformed device token")
	ErrScannerNotAllowed       = errors.New("device is not allowed to use this scanner")
)

// Claims is the device token payload. An empty Scanners list allows every
// scanner.
type Claims struct {
	jwt.RegisteredClaims
	Scanners []string `json:"scanners,omitempty"`
}

// DeviceID returns the token subject.
func (c *Claims) DeviceID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// Allows reports whether the device may drive the named scanner.
func (c *Claims) Allows(name string) bool {
	if c == nil {
		return false
	}
	name = strings.TrimSpace(name)
	if len(c.Scanners) == 0 || name == "" {
		return true
	}
	return slices.Contains(c.Scanners, name)
}

type SigningKey struct {
	JWTAlg string
	Key    any
}

type Config struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	SigningKey     SigningKey
	SigningKeys    map[string]SigningKey
	JWKSetURLs     []string
	KeyFunc        jwt.Keyfunc
	ContextKey     string
	TokenLookup    string
	AuthScheme     string
	Audience       string
	// ScannerParam is the route param checked against Claims.Scanners.
	ScannerParam string
	Leeway       time.Duration
}

func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	parserOpts := []jwt.ParserOption{jwt.WithLeeway(cfg.Leeway)}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.SigningKey.JWTAlg != "" && len(cfg.SigningKeys) == 0 && len(cfg.JWKSetURLs) == 0 {
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{cfg.SigningKey.JWTAlg}))
	}
	parser := jwt.NewParser(parserOpts...)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			raw, err := ExtractRawTokenFromContext(ctx, extractors)
			if err != nil || raw == "" {
				return cfg.ErrorHandler(ctx, ErrTokenMissingOrMalformed)
			}

			claims := &Claims{}
			if _, err := parser.ParseWithClaims(raw, claims, cfg.KeyFunc); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if !claims.Allows(ctx.Param(cfg.ScannerParam)) {
				return cfg.ErrorHandler(ctx, ErrScannerNotAllowed)
			}

			ctx.Locals(cfg.ContextKey, claims)

			if cfg.SuccessHandler != nil {
				if err := cfg.SuccessHandler(ctx); err != nil {
					return err
				}
			}
			return next(ctx)
		}
	}
}

// ClaimsFromContext returns the device claims stored by the guard.
func ClaimsFromContext(ctx router.Context, key ...string) (*Claims, bool) {
	contextKey := "device"
	if len(key) > 0 && key[0] != "" {
		contextKey = key[0]
	}
	claims, ok := ctx.Locals(contextKey).(*Claims)
	return claims, ok && claims != nil
}

func ExtractRawTokenFromContext(ctx router.Context, extractors []Extractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			switch {
			case errors.Is(err, ErrTokenMissingOrMalformed):
				return c.Status(router.StatusUnauthorized).SendString(ErrTokenMissingOrMalformed.Error())
			case errors.Is(err, ErrScannerNotAllowed):
				return c.Status(router.StatusForbidden).SendString(ErrScannerNotAllowed.Error())
			}
			return c.Status(router.StatusUnauthorized).SendString("Invalid or expired device token")
		}
	}

	if cfg.SigningKey.Key == nil && len(cfg.SigningKeys) == 0 && len(cfg.JWKSetURLs) == 0 && cfg.KeyFunc == nil {
		panic("deviceguard: one of KeyFunc, JWKSetURLs, SigningKeys or SigningKey is required")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "device"
	}
	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}
	if cfg.ScannerParam == "" {
		cfg.ScannerParam = "name"
	}

	if cfg.KeyFunc == nil {
		if len(cfg.SigningKeys) > 0 || len(cfg.JWKSetURLs) > 0 {
			givenKeys := make(map[string]keyfunc.GivenKey, len(cfg.SigningKeys))
			for kid, key := range cfg.SigningKeys {
				givenKeys[kid] = keyfunc.NewGivenCustom(key.Key, keyfunc.GivenKeyOptions{
					Algorithm: key.JWTAlg,
				})
			}
			if len(cfg.JWKSetURLs) > 0 {
				var err error
				cfg.KeyFunc, err = multiKeyfunc(givenKeys, cfg.JWKSetURLs)
				if err != nil {
					panic("deviceguard: failed to load JWK sets: " + err.Error())
				}
			} else {
				cfg.KeyFunc = keyfunc.NewGiven(givenKeys).Keyfunc
			}
		} else {
			cfg.KeyFunc = signingKeyFunc(cfg.SigningKey)
		}
	}

	return cfg
}

func multiKeyfunc(givenKeys map[string]keyfunc.GivenKey, urls []string) (jwt.Keyfunc, error) {
	opts := keyfunc.Options{
		GivenKeys: givenKeys,
		RefreshErrorHandler: func(err error) {
			log.Printf("deviceguard: background JWK set refresh failed: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	}
	m := make(map[string]keyfunc.Options, len(urls))
	for _, url := range urls {
		m[url] = opts
	}
	multi, err := keyfunc.GetMultiple(m, keyfunc.MultipleOptions{
		KeySelector: keyfunc.KeySelectorFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get JWK set URLs: %w", err)
	}
	return multi.Keyfunc, nil
}

// Extractor pulls the raw token out of a request.
type Extractor func(c router.Context) (string, error)

// GetExtractors parses a lookup such as "header:Authorization,query:device_token".
func GetExtractors(tokenLookup string, authSchemes ...string) []Extractor {
	extractors := make([]Extractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

func fromHeader(header string, authScheme string) Extractor {
	return func(c router.Context) (string, error) {
		a := c.Header(header)
		l := len(authScheme)
		if l == 0 {
			return "", ErrTokenMissingOrMalformed
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrTokenMissingOrMalformed
	}
}

func fromQuery(param string) Extractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func fromCookie(name string) Extractor {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func signingKeyFunc(key SigningKey) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if key.JWTAlg != "" {
			alg, ok := token.Header["alg"].(string)
			if !ok {
				return nil, fmt.Errorf("unexpected signing method: expected %q, got none", key.JWTAlg)
			}
			if alg != key.JWTAlg {
				return nil, fmt.Errorf("unexpected signing method: expected %q, got %q", key.JWTAlg, alg)
			}
		}
		return key.Key, nil
	}
}
