package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sentinelhive/svh/internal/authority"
	"github.com/sentinelhive/svh/internal/config"
	"github.com/sentinelhive/svh/internal/database"
	"github.com/sentinelhive/svh/internal/edge"
	"github.com/sentinelhive/svh/internal/identityclient"
	"github.com/sentinelhive/svh/internal/middleware"
	"github.com/sentinelhive/svh/internal/pkg/jwt"
	"github.com/sentinelhive/svh/internal/pkg/metrics"
	pkgredis "github.com/sentinelhive/svh/internal/pkg/redis"
	"github.com/sentinelhive/svh/internal/pkg/sessioncache"
	"github.com/sentinelhive/svh/internal/pkg/token"
	"github.com/sentinelhive/svh/internal/store"
	"go.uber.org/zap"
)

const bootSweepTimeout = 10 * time.Second

// NewEdge wires the public tier: session cache, identity client, account
// lookups and the optional Redis login limiter.
func NewEdge(logger *zap.Logger, cfg *config.AppConfig, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	o := collect(opts)

	codec := token.New(cfg.Secret)
	if err := applyRuntimeSettings(cfg, codec, logger); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, service: "edge", addr: cfg.EdgeAddr(), logger: logger}

	db := o.db
	if db == nil {
		var err error
		if db, err = database.Connect(cfg, false); err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		a.closers = append(a.closers, func() error { return database.Close(db) })
	}

	var rc *pkgredis.Client
	if cfg.Redis.Enable {
		var err error
		if rc, err = pkgredis.Connect(cfg.RedisURL); err != nil {
			_ = a.Shutdown(context.Background())
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
	}

	m := metrics.New(a.service)
	cache := sessioncache.New()
	m.TrackCacheSize(cache.Len)

	clientOpts := []identityclient.Option{identityclient.WithMetrics(m)}
	if cfg.InternalSecret != "" {
		clientOpts = append(clientOpts, identityclient.WithSigner(jwt.NewSigner(cfg.InternalSecret, a.service)))
	}
	client := identityclient.New(cfg.Edge.IdentityBaseURL, cfg.Edge.IdentityTimeout, clientOpts...)

	auth := authority.New(authority.Deps{
		Identity:   client,
		Accounts:   store.NewCachedAccounts(store.NewAccounts(db), cfg.Edge.AccountCacheSize, cfg.Edge.AccountCacheTTL),
		Cache:      cache,
		Codec:      codec,
		Logger:     logger,
		Metrics:    m,
		DefaultTTL: cfg.Session.DefaultTTL,
		MaxTTL:     cfg.Session.MaxTTL,
	})

	if cfg.Edge.SweepOnBoot {
		a.start = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, bootSweepTimeout)
			defer cancel()
			res, err := auth.SweepLedger(ctx)
			if err != nil {
				logger.Warn("boot sweep through identity failed", zap.Error(err))
				return nil
			}
			logger.Info("boot sweep through identity finished", zap.Int64("revoked", res.Revoked))
			return nil
		}
	}

	a.router = newRouter(cfg, logger, m)
	a.router.Use(edgeCORS(cfg))
	edge.NewHandler(auth, client, edge.Config{
		CookieName:   cfg.Edge.CookieName,
		CookieSecure: cfg.Edge.CookieSecure,
		LoginLimiter: middleware.LoginRateLimit(rc, cfg.LoginRateLimit.Max, cfg.LoginRateLimit.Window, logger),
	}, logger).RegisterRoutes(a.router)
	return a, nil
}
