package main

import (
	"context"

	"go.uber.org/fx"

	"dip_bot/internal/modules/config"
	"dip_bot/internal/modules/exchange"
	"dip_bot/internal/modules/health"
	"dip_bot/internal/modules/observability"
	"dip_bot/internal/modules/storage"
	"dip_bot/internal/modules/strategy"
	"dip_bot/internal/modules/telegram"
	"dip_bot/internal/runner"
)

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		observability.FxLogger(),
		config.Module(),
		observability.Module(),
		health.Module(),
		storage.Module(),
		exchange.Module(),
		telegram.Module(),
		strategy.Module(),
		runner.Module(),
	)
	app.Run()
}
