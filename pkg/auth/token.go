package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultTokenPrefix marks bearer tokens issued by this service
	DefaultTokenPrefix = "skc_"
	// DefaultTokenBytes is the random payload size of a bearer token
	DefaultTokenBytes = 32

	minTokenBytes = 16
	maxTokenBytes = 64
	displayChars  = 8
)

var errMalformedToken = errors.New("malformed bearer token")

// TokenFormat describes how bearer tokens are rendered: a fixed prefix followed
// by unpadded base64url random bytes. Only the sha256 of the full token is stored.
type TokenFormat struct {
	Prefix string
	Bytes  int
}

// DefaultTokenFormat returns the format used when nothing is configured
func DefaultTokenFormat() TokenFormat {
	return TokenFormat{Prefix: DefaultTokenPrefix, Bytes: DefaultTokenBytes}
}

// NewTokenFormat checks a configured prefix and payload size
func NewTokenFormat(prefix string, size int) (TokenFormat, error) {
	f := TokenFormat{Prefix: prefix, Bytes: size}
	if err := f.check(); err != nil {
		return TokenFormat{}, err
	}
	return f, nil
}

func (f TokenFormat) check() error {
	if len(f.Prefix) < 2 || !strings.HasSuffix(f.Prefix, "_") {
		return fmt.Errorf("token prefix %q must be at least two characters and end in '_'", f.Prefix)
	}
	for _, r := range strings.TrimSuffix(f.Prefix, "_") {
		if r < 'a' || r > 'z' {
			return fmt.Errorf("token prefix %q may only contain lowercase letters", f.Prefix)
		}
	}
	if f.Bytes < minTokenBytes || f.Bytes > maxTokenBytes {
		return fmt.Errorf("token size must be between %d and %d bytes, got %d", minTokenBytes, maxTokenBytes, f.Bytes)
	}
	return nil
}

// Issue returns a fresh token with its storage hash and display prefix
func (f TokenFormat) Issue() (token, hash, display string, err error) {
	payload := make([]byte, f.Bytes)
	if _, err := rand.Read(payload); err != nil {
		return "", "", "", fmt.Errorf("reading token entropy: %w", err)
	}
	token = f.Prefix + base64.RawURLEncoding.EncodeToString(payload)
	return token, HashToken(token), f.Display(token), nil
}

// Parse rejects tokens that could not have been issued in this format. The
// payload must decode to exactly Bytes bytes, so lookups are only spent on
// plausible tokens.
func (f TokenFormat) Parse(token string) error {
	body, ok := strings.CutPrefix(token, f.Prefix)
	if !ok || body == "" {
		return errMalformedToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil || len(payload) != f.Bytes {
		return errMalformedToken
	}
	return nil
}

// Display returns the prefix plus the first characters of the payload, enough
// for a member to tell their tokens apart in listings
func (f TokenFormat) Display(token string) string {
	body, ok := strings.CutPrefix(token, f.Prefix)
	if !ok {
		return ""
	}
	if len(body) > displayChars {
		body = body[:displayChars]
	}
	return f.Prefix + body
}

// HashToken is the lookup key stored for a token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
