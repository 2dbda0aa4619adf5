package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Audience is the aud claim of service tokens accepted by the identity tier.
const Audience = "svh-identity"

const defaultTTL = time.Minute

var ErrInvalidToken = errors.New("invalid service token")

// Claims is the service token payload.
type Claims struct {
	Service string `json:"svc"`
	jwtlib.RegisteredClaims
}

// Signer mints and validates short-lived HS256 tokens between tiers.
type Signer struct {
	secret  []byte
	service string
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Signer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSigner creates a signer that identifies itself as service.
func NewSigner(secret, service string, opts ...Option) *Signer {
	s := &Signer{secret: []byte(secret), service: service, ttl: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign creates a signed service token.
func (s *Signer) Sign() (string, error) {
	now := s.now()
	claims := Claims{
		Service: s.service,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    s.service,
			Audience:  jwtlib.ClaimStrings{Audience},
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse validates a token string and returns the claims.
func (s *Signer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwtlib.WithAudience(Audience),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
