package exchange

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"dip_bot/internal/exchange"
	"dip_bot/internal/modules/config"
	"dip_bot/internal/runner"
	"dip_bot/internal/strategy"
)

func NewClient(cfg *config.Config, log *zap.Logger) (*exchange.Client, error) {
	return exchange.NewClient(exchange.Config{
		BaseURL:    cfg.Exchange.BaseURL,
		Coin:       cfg.Coin(),
		PrivateKey: cfg.Exchange.PrivateKey,
		Testnet:    cfg.Exchange.Testnet,
		Slippage:   cfg.Exchange.Slippage,
		VWAPWindow: cfg.Strategy.VWAPWindow,
		BookDepth:  cfg.Strategy.OrderBookDepth,
	}, log)
}

// NewExecutor keeps dry-run mode off the order endpoint entirely.
func NewExecutor(cfg *config.Config, c *exchange.Client, log *zap.Logger) strategy.Executor {
	if cfg.Exchange.DryRun {
		log.Info("dry run: orders are simulated")
		return exchange.NewDryRunExecutor(log)
	}
	log.Warn("live trading enabled", zap.String("coin", c.Coin()), zap.Bool("mainnet", c.Mainnet()))
	return c
}

func NewMarketData(c *exchange.Client) runner.MarketData { return c }

// warmup fails startup only for a coin the exchange does not list. Transient
// API errors are left to the runner's back-off.
func warmup(ctx context.Context, c *exchange.Client, log *zap.Logger) error {
	err := c.Warmup(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, exchange.ErrUnknownCoin) {
		return err
	}
	log.Warn("exchange warmup failed; continuing", zap.Error(err))
	return nil
}

func startFeed(lc fx.Lifecycle, cfg *config.Config, c *exchange.Client, log *zap.Logger) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := warmup(ctx, c, log); err != nil {
				return err
			}
			if !cfg.Exchange.UseWS {
				return nil
			}
			feed := exchange.NewMidsFeed(exchange.WSURL(c.BaseURL()), log)
			c.UseFeed(feed)

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			go feed.Run(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			NewClient,     // *exchange.Client
			NewExecutor,   // strategy.Executor
			NewMarketData, // runner.MarketData
		),
		fx.Invoke(startFeed),
	)
}
