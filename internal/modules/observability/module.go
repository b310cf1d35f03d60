package observability

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"dip_bot/internal/modules/config"
	"dip_bot/pkg/logger"
	"dip_bot/pkg/tracing"
)

// NewLogger builds the process logger and installs the pkg/logger facade.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	logger.SetServiceName(cfg.Service.Name)
	tracing.SetServiceName(cfg.Service.Name)
	return logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Development: cfg.Service.Development,
	})
}

// FxLogger routes fx's own event log through zap.
func FxLogger() fx.Option {
	return fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log.Named("fx")}
	})
}

func startTracer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) error {
	_, closeTracer, err := tracing.InitTracer(tracing.Config{
		Enabled: cfg.Tracing.Enabled,
		Host:    cfg.Tracing.Host,
		Port:    cfg.Tracing.Port,
	})
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			closeTracer()
			_ = log.Sync()
			return nil
		},
	})
	return nil
}

func Module() fx.Option {
	return fx.Module("observability",
		fx.Provide(NewLogger),
		fx.Invoke(startTracer),
	)
}
