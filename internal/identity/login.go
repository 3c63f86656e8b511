package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/codefionn/huddle/internal/secrets"
)

// ErrBadCredentials is returned by Login for unknown users and wrong passwords.
var ErrBadCredentials = errors.New("invalid username or password")

// ErrUnknownUser is returned by Credentials implementations for missing users.
var ErrUnknownUser = errors.New("unknown user")

// Credentials looks up the stored password hash of a user.
type Credentials interface {
	LookupCredentials(ctx context.Context, username string) (Principal, string, error)
}

// Authenticator exchanges a username and password for a session token.
type Authenticator struct {
	creds  Credentials
	tokens *Tokens
}

// NewAuthenticator creates an authenticator backed by creds.
func NewAuthenticator(creds Credentials, tokens *Tokens) *Authenticator {
	return &Authenticator{creds: creds, tokens: tokens}
}

// Login verifies the password and returns a signed token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, Principal, error) {
	p, hash, err := a.creds.LookupCredentials(ctx, username)
	if errors.Is(err, ErrUnknownUser) {
		return "", Anonymous, ErrBadCredentials
	}
	if err != nil {
		return "", Anonymous, fmt.Errorf("lookup credentials: %w", err)
	}

	if err := secrets.VerifyPassword(hash, password); err != nil {
		if errors.Is(err, secrets.ErrInvalidPassword) {
			return "", Anonymous, ErrBadCredentials
		}
		return "", Anonymous, err
	}

	token, err := a.tokens.Issue(p)
	if err != nil {
		return "", Anonymous, err
	}
	return token, p, nil
}
