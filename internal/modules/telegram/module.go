package telegram

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"dip_bot/internal/modules/config"
	"dip_bot/internal/modules/health/service"
	"dip_bot/internal/notify"
	"dip_bot/internal/strategy"
)

type Result struct {
	fx.Out

	Strategy strategy.Notifier
	Bot      *notify.Telegram // nil when telegram is not configured
}

// NewNotifier falls back to logging alerts when no token or chat is set, or
// when the Bot API cannot be reached at startup. Alerts never block trading.
func NewNotifier(cfg *config.Config, health *service.State, log *zap.Logger) Result {
	if !cfg.TelegramEnabled() {
		return Result{Strategy: notify.NewStdout(log)}
	}

	t, err := notify.NewTelegram(notify.TelegramConfig{
		Token:    cfg.Telegram.Token,
		ChatID:   cfg.Telegram.ChatID,
		Endpoint: cfg.Telegram.Endpoint,
	}, log)
	if err != nil {
		log.Warn("telegram unavailable; alerts go to the log", zap.Error(err))
		return Result{Strategy: notify.NewStdout(log)}
	}
	t.SetStatus(health.Summary)
	return Result{Strategy: t, Bot: t}
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			NewNotifier,
		),
		// command loop through Lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, t *notify.Telegram) {
				var cancel context.CancelFunc
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						var runCtx context.Context
						runCtx, cancel = context.WithCancel(context.Background())
						t.Start(runCtx)
						return nil
					},
					OnStop: func(ctx context.Context) error {
						if cancel != nil {
							cancel()
						}
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
