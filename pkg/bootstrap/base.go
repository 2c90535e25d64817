package bootstrap

import (
	"context"
	"fmt"

	"fluxflag/internal/config"
	"fluxflag/internal/logger"
)

// Base carries the pieces every fluxflagd command shares: config,
// logger, and a uniform shutdown sequence. It does not own a
// broker.Producer/Consumer pair directly; the schema-discovery
// telemetry sink manages its own kafka-go writer lifecycle and is
// registered as an additional shutdown hook instead.
type Base struct {
	Config *config.Config
	Logger logger.Logger
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("shutting down application")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("application exited successfully")
	return nil
}
