package authority

import (
	"context"
	"time"

	"github.com/sentinelhive/svh/internal/store"
)

// LoginRequest is the credential payload accepted by both tiers.
type LoginRequest struct {
	ExternalID string `json:"external_id" binding:"required"`
	Password   string `json:"password" binding:"required"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// LoginResult describes a freshly minted token.
type LoginResult struct {
	Token        string `json:"token"`
	ExternalID   string `json:"external_id"`
	IsPrivileged bool   `json:"is_privileged"`
}

// Identity is the store-owning tier as seen from the edge. It is served
// in-process by identity.Service and over HTTP by identityclient.Client.
type Identity interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	Rotate(ctx context.Context, token string) (*LoginResult, error)
	Sweep(ctx context.Context) (store.SweepResult, error)
}

// Session is what the edge hands back after login or refresh.
type Session struct {
	LoginResult
	ExpiresIn time.Duration
}

// Status is the cache-only answer of Check.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)
