package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const defaultSecret = "dev-change-me"

var (
	// ErrTokenMalformed is returned when a token does not have the
	// subject.issued_at.signature shape.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrSignatureMismatch is returned when the signature does not match the claims.
	ErrSignatureMismatch = errors.New("token signature mismatch")
	// ErrSubjectInvalid is returned for an empty subject.
	ErrSubjectInvalid = errors.New("token subject invalid")
)

// Claims are the parsed parts of a session token. The subject is readable
// without the secret; only Verify proves it was minted by a holder of it.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	Signature string
}

// Codec mints and parses bearer tokens of the form
// subject.issued_at.signature, where issued_at is Unix milliseconds and
// signature is hex(HMAC-SHA256(secret, "subject:issued_at")).
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used by Make.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a codec. An empty secret falls back to the development default.
func New(secret string, opts ...Option) *Codec {
	if secret == "" {
		secret = defaultSecret
	}
	c := &Codec{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UsesDefaultSecret reports whether the codec signs with the built-in secret.
func (c *Codec) UsesDefaultSecret() bool {
	return string(c.secret) == defaultSecret
}

// Make mints a token for subject issued now.
func (c *Codec) Make(subject string) (string, error) {
	return c.MakeAt(subject, c.now())
}

// MakeAt mints a token for subject with an explicit issue time.
func (c *Codec) MakeAt(subject string, issuedAt time.Time) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: %q", ErrSubjectInvalid, subject)
	}
	ts := strconv.FormatInt(issuedAt.UnixMilli(), 10)
	return subject + "." + ts + "." + c.sign(subject, ts), nil
}

// Parse splits a token into its claims without checking the signature.
// The subject may itself contain dots, so the issue time and signature are
// taken from the right.
func Parse(raw string) (Claims, error) {
	sigAt := strings.LastIndexByte(raw, '.')
	if sigAt < 0 {
		return Claims{}, ErrTokenMalformed
	}
	head, sig := raw[:sigAt], raw[sigAt+1:]
	tsAt := strings.LastIndexByte(head, '.')
	if tsAt <= 0 {
		return Claims{}, ErrTokenMalformed
	}
	subject, ts := head[:tsAt], head[tsAt+1:]
	if !isDigits(ts) || !isHex(sig) {
		return Claims{}, ErrTokenMalformed
	}
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Claims{}, ErrTokenMalformed
	}
	return Claims{
		Subject:   subject,
		IssuedAt:  time.UnixMilli(ms),
		Signature: sig,
	}, nil
}

// Verify parses raw and checks its signature in constant time.
func (c *Codec) Verify(raw string) (Claims, error) {
	claims, err := Parse(raw)
	if err != nil {
		return Claims{}, err
	}
	ts := strconv.FormatInt(claims.IssuedAt.UnixMilli(), 10)
	want := c.sign(claims.Subject, ts)
	if !hmac.Equal([]byte(want), []byte(claims.Signature)) {
		return Claims{}, ErrSignatureMismatch
	}
	return claims, nil
}

func (c *Codec) sign(subject, ts string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(subject + ":" + ts))
	return hex.EncodeToString(mac.Sum(nil))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
