package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName carries the session token for browser clients.
	CookieName = "huddle_token"
	// QueryParam carries the session token on WebSocket URLs.
	QueryParam = "token"

	issuer = "huddle"
)

var (
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for tokens past their expiry.
	ErrExpiredToken = errors.New("token expired")
)

// claims is the internal claims type used for JWT parsing.
type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Tokens issues and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer. now may be nil.
func NewTokens(secret []byte, ttl time.Duration, now func() time.Time) (*Tokens, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("token secret must be at least 16 bytes, got %d", len(secret))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Tokens{secret: secret, ttl: ttl, now: now}, nil
}

// TTL returns how long issued tokens stay valid.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue signs a token for an authenticated principal.
func (t *Tokens) Issue(p Principal) (string, error) {
	if !p.Authenticated() {
		return "", fmt.Errorf("cannot issue token for %s", p)
	}
	now := t.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(p.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Username: p.Username,
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the principal it names.
func (t *Tokens) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Anonymous, ErrInvalidToken
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Anonymous, mapJWTError(err)
	}

	id, err := strconv.ParseInt(parsed.Subject, 10, 64)
	if err != nil || id <= 0 || parsed.Username == "" {
		return Anonymous, ErrInvalidToken
	}
	return Principal{ID: id, Username: parsed.Username}, nil
}

// Resolve implements Resolver. Tokens are looked up in the Authorization
// header, then the token query parameter, then the session cookie. Missing
// or invalid tokens resolve to Anonymous.
func (t *Tokens) Resolve(r *http.Request) Principal {
	raw := RequestToken(r)
	if raw == "" {
		return Anonymous
	}
	p, err := t.Verify(raw)
	if err != nil {
		return Anonymous
	}
	return p
}

// RequestToken extracts the raw token from r, or "".
func RequestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.URL.Query().Get(QueryParam); token != "" {
		return token
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// mapJWTError translates jwt library errors to package errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredToken
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}
