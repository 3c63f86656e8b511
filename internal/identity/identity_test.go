package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codefionn/huddle/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestTokens(t *testing.T, now func() time.Time) *Tokens {
	t.Helper()
	tokens, err := NewTokens(testSecret, time.Hour, now)
	require.NoError(t, err)
	return tokens
}

func TestPrincipal(t *testing.T) {
	assert.False(t, Anonymous.Authenticated())
	assert.Equal(t, "anonymous", Anonymous.String())

	p := Principal{ID: 3, Username: "alice"}
	assert.True(t, p.Authenticated())
	assert.Equal(t, "alice#3", p.String())
}

func TestNewTokensValidation(t *testing.T) {
	_, err := NewTokens([]byte("short"), time.Hour, nil)
	assert.Error(t, err)

	_, err = NewTokens(testSecret, 0, nil)
	assert.Error(t, err)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	tokens := newTestTokens(t, nil)

	raw, err := tokens.Issue(Principal{ID: 7, Username: "bob"})
	require.NoError(t, err)

	p, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, Principal{ID: 7, Username: "bob"}, p)
}

func TestIssueRejectsAnonymous(t *testing.T) {
	_, err := newTestTokens(t, nil).Issue(Anonymous)
	assert.Error(t, err)
}

func TestVerifyExpired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := issued
	tokens := newTestTokens(t, func() time.Time { return clock })

	raw, err := tokens.Issue(Principal{ID: 1, Username: "alice"})
	require.NoError(t, err)

	clock = issued.Add(2 * time.Hour)
	_, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	raw, err := newTestTokens(t, nil).Issue(Principal{ID: 1, Username: "alice"})
	require.NoError(t, err)

	other, err := NewTokens([]byte("ffffffffffffffffffffffffffffffff"), time.Hour, nil)
	require.NoError(t, err)

	_, err = other.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = other.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveSources(t *testing.T) {
	tokens := newTestTokens(t, nil)
	raw, err := tokens.Issue(Principal{ID: 2, Username: "carol"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    Principal
	}{
		{"none", func(*http.Request) {}, Anonymous},
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+raw) }, Principal{ID: 2, Username: "carol"}},
		{"query", func(r *http.Request) { r.URL.RawQuery = QueryParam + "=" + raw }, Principal{ID: 2, Username: "carol"}},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: raw}) }, Principal{ID: 2, Username: "carol"}},
		{"garbage", func(r *http.Request) { r.URL.RawQuery = QueryParam + "=nope" }, Anonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/checklist/", nil)
			tt.prepare(r)
			assert.Equal(t, tt.want, tokens.Resolve(r))
		})
	}
}

type fakeCreds map[string]struct {
	p    Principal
	hash string
}

func (f fakeCreds) LookupCredentials(_ context.Context, username string) (Principal, string, error) {
	c, ok := f[username]
	if !ok {
		return Anonymous, "", ErrUnknownUser
	}
	return c.p, c.hash, nil
}

func TestAuthenticatorLogin(t *testing.T) {
	hash, err := secrets.HashPassword("password")
	require.NoError(t, err)

	creds := fakeCreds{"alice": {Principal{ID: 1, Username: "alice"}, hash}}
	tokens := newTestTokens(t, nil)
	auth := NewAuthenticator(creds, tokens)

	raw, p, err := auth.Login(context.Background(), "alice", "password")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)

	verified, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, p, verified)

	_, _, err = auth.Login(context.Background(), "alice", "wrong")
	assert.True(t, errors.Is(err, ErrBadCredentials))

	_, _, err = auth.Login(context.Background(), "mallory", "password")
	assert.True(t, errors.Is(err, ErrBadCredentials))
}
