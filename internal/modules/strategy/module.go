package strategy

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"dip_bot/internal/modules/config"
	"dip_bot/internal/strategy"
)

func NewStrategy(cfg *config.Config, exec strategy.Executor, n strategy.Notifier, log *zap.Logger) *strategy.Strategy {
	return strategy.New(cfg.StrategyConfig(), exec, n, strategy.WithLogger(log.Named("strategy")))
}

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			NewStrategy, // *strategy.Strategy
		),
	)
}
