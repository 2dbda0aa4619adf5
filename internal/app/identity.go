package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sentinelhive/svh/internal/config"
	"github.com/sentinelhive/svh/internal/database"
	"github.com/sentinelhive/svh/internal/identity"
	"github.com/sentinelhive/svh/internal/middleware"
	"github.com/sentinelhive/svh/internal/pkg/jwt"
	"github.com/sentinelhive/svh/internal/pkg/metrics"
	"github.com/sentinelhive/svh/internal/pkg/token"
	"github.com/sentinelhive/svh/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewIdentity wires the internal tier: database, ledger, password checks
// and the boot revoker.
func NewIdentity(logger *zap.Logger, cfg *config.AppConfig, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	o := collect(opts)

	codec := token.New(cfg.Secret)
	if err := applyRuntimeSettings(cfg, codec, logger); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, service: "identity", addr: cfg.IdentityAddr(), logger: logger}

	db, err := openIdentityDB(cfg, o.db)
	if err != nil {
		return nil, err
	}
	if o.db == nil {
		a.closers = append(a.closers, func() error { return database.Close(db) })
	}

	m := metrics.New(a.service)
	svc := identity.NewService(store.NewAccounts(db), store.NewSessionStore(db), codec, logger, identity.WithMetrics(m))
	boot := identity.NewBootRevoker(svc, logger)
	a.start = func(ctx context.Context) error {
		_, err := boot.Start(ctx)
		return err
	}
	a.stop = boot.Stop

	var signer *jwt.Signer
	if cfg.InternalSecret != "" {
		signer = jwt.NewSigner(cfg.InternalSecret, a.service)
	} else {
		logger.Warn("internal_secret is empty, identity endpoints accept unauthenticated callers")
	}

	a.router = newRouter(cfg, logger, m)
	identity.NewHandler(svc, db, logger).RegisterRoutes(a.router, middleware.ServiceAuth(signer))
	return a, nil
}

func openIdentityDB(cfg *config.AppConfig, injected *gorm.DB) (*gorm.DB, error) {
	if injected == nil {
		db, err := database.Connect(cfg, cfg.Identity.AutoMigrate)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return db, nil
	}
	if cfg.Identity.AutoMigrate {
		if err := database.Migrate(injected); err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
	}
	return injected, nil
}
