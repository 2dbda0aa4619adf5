package identity

import (
	"context"
	"fmt"

	"github.com/sentinelhive/svh/internal/store"
	"go.uber.org/zap"
)

// BootRevoker treats every ledger row left active by a previous process as
// revoked. No edge cache can still hold those tokens, so they are
// unreachable either way.
type BootRevoker struct {
	svc    *Service
	logger *zap.Logger
}

func NewBootRevoker(svc *Service, logger *zap.Logger) *BootRevoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BootRevoker{svc: svc, logger: logger}
}

// Start runs the sweep. It must succeed before the tier serves traffic.
func (b *BootRevoker) Start(ctx context.Context) (store.SweepResult, error) {
	res, err := b.svc.Sweep(ctx)
	if err != nil {
		return res, fmt.Errorf("boot revoke: %w", err)
	}
	b.logger.Info("boot revoke finished",
		zap.Int64("revoked", res.Revoked),
		zap.Int64("pruned", res.Pruned),
	)
	return res, nil
}

// Stop repeats the sweep on shutdown. Failures are only logged.
func (b *BootRevoker) Stop(ctx context.Context) {
	res, err := b.svc.Sweep(ctx)
	if err != nil {
		b.logger.Warn("shutdown revoke failed", zap.Error(err))
		return
	}
	if res.Revoked > 0 {
		b.logger.Info("shutdown revoke finished", zap.Int64("revoked", res.Revoked))
	}
}
