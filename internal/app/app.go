package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sentinelhive/svh/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App is one tier ready to serve: its router plus the hooks that must run
// around the HTTP server's lifetime.
type App struct {
	cfg     *config.AppConfig
	service string
	addr    string
	router  *gin.Engine
	logger  *zap.Logger

	start   func(ctx context.Context) error
	stop    func(ctx context.Context)
	closers []func() error
}

// Option customizes construction. Tests use it to inject a database.
type Option func(*options)

type options struct {
	db *gorm.DB
}

// WithDB uses db instead of connecting to the configured MySQL server. The
// caller keeps ownership of it.
func WithDB(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Addr returns the listen address.
func (a *App) Addr() string { return a.addr }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Service names the tier ("edge" or "identity").
func (a *App) Service() string { return a.service }

// Start runs the boot hooks. The server must not accept traffic before it
// returns nil.
func (a *App) Start(ctx context.Context) error {
	if a.start == nil {
		return nil
	}
	return a.start(ctx)
}

// Shutdown runs the stop hooks and releases connections.
func (a *App) Shutdown(ctx context.Context) error {
	if a.stop != nil {
		a.stop(ctx)
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
