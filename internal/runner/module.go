package runner

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"dip_bot/internal/modules/config"
	"dip_bot/internal/modules/health/service"
	"dip_bot/internal/state"
	"dip_bot/internal/strategy"
)

type Params struct {
	fx.In

	Cfg      *config.Config
	Market   MarketData
	Strategy *strategy.Strategy
	Store    state.Store
	Notifier strategy.Notifier
	Health   *service.State
	Log      *zap.Logger
}

func NewRunner(p Params) *Runner {
	return New(Config{
		PollInterval: p.Cfg.Service.PollInterval,
		ErrorBackoff: p.Cfg.Service.ErrorBackoff,
		DryRun:       p.Cfg.Exchange.DryRun,
		Testnet:      p.Cfg.Exchange.Testnet,
	}, p.Market, p.Strategy, p.Store, p.Notifier, p.Health, p.Log)
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewRunner, // *Runner
		),
		fx.Invoke(func(lc fx.Lifecycle, r *Runner) {
			var (
				cancel context.CancelFunc
				done   = make(chan struct{})
			)
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// unparseable state stops startup here
					if err := r.Load(ctx); err != nil {
						return err
					}
					var runCtx context.Context
					runCtx, cancel = context.WithCancel(context.Background())
					go func() {
						defer close(done)
						r.Run(runCtx)
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					if cancel == nil {
						return nil
					}
					cancel()
					select {
					case <-done:
					case <-ctx.Done():
					}
					return nil
				},
			})
		}),
	)
}
