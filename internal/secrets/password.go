package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// HashPrefix is applied to password hashes persisted in the user table.
	HashPrefix = "scrypt:"
	// payloadVersion allows the hash format to evolve while remaining backward compatible.
	payloadVersion = 1

	defaultN = 1 << 15
	defaultR = 8
	defaultP = 1
	keyLen   = 32
)

var (
	// ErrInvalidPassword is returned when the password does not match the hash.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidPayload indicates the stored hash is malformed.
	ErrInvalidPayload = errors.New("invalid password hash")
	// ErrEmptyPassword rejects empty passwords at hashing time.
	ErrEmptyPassword = errors.New("password must not be empty")
)

// Payload is the decoded form of a stored password hash.
type Payload struct {
	Version int    `json:"version"`
	N       int    `json:"n"`
	R       int    `json:"r"`
	P       int    `json:"p"`
	Salt    string `json:"salt"`
	Hash    string `json:"hash"`
}

// HashPassword derives a salted scrypt hash suitable for storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key, err := deriveKey(password, salt, defaultN, defaultR, defaultP)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(&Payload{
		Version: payloadVersion,
		N:       defaultN,
		R:       defaultR,
		P:       defaultP,
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Hash:    base64.StdEncoding.EncodeToString(key),
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return HashPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// VerifyPassword checks password against a hash produced by HashPassword.
func VerifyPassword(encoded, password string) error {
	payload, err := decodePayload(encoded)
	if err != nil {
		return err
	}

	salt, err := base64.StdEncoding.DecodeString(payload.Salt)
	if err != nil {
		return fmt.Errorf("%w: decode salt: %v", ErrInvalidPayload, err)
	}
	want, err := base64.StdEncoding.DecodeString(payload.Hash)
	if err != nil {
		return fmt.Errorf("%w: decode hash: %v", ErrInvalidPayload, err)
	}

	got, err := deriveKey(password, salt, payload.N, payload.R, payload.P)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrInvalidPassword
	}
	return nil
}

func decodePayload(encoded string) (*Payload, error) {
	if !strings.HasPrefix(encoded, HashPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidPayload, HashPrefix)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, HashPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrInvalidPayload, err)
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: parse payload: %v", ErrInvalidPayload, err)
	}
	if payload.Version != payloadVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidPayload, payload.Version)
	}
	if payload.N <= 1 || payload.R <= 0 || payload.P <= 0 || payload.Salt == "" || payload.Hash == "" {
		return nil, ErrInvalidPayload
	}
	return &payload, nil
}

func deriveKey(password string, salt []byte, n, r, p int) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), salt, n, r, p, keyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}
