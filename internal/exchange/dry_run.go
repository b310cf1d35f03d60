package exchange

import (
	"context"

	"go.uber.org/zap"

	"dip_bot/internal/models"
)

// DryRunExecutor acknowledges every order without touching the exchange.
type DryRunExecutor struct {
	log *zap.Logger
}

func NewDryRunExecutor(log *zap.Logger) *DryRunExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &DryRunExecutor{log: log.Named("dry_run")}
}

func (d *DryRunExecutor) MarketBuy(_ context.Context, size float64) (models.OrderResult, error) {
	return d.ack("buy", size), nil
}

func (d *DryRunExecutor) ReduceOnlySell(_ context.Context, size float64) (models.OrderResult, error) {
	return d.ack("sell", size), nil
}

func (d *DryRunExecutor) ack(side string, size float64) models.OrderResult {
	d.log.Info("simulated order", zap.String("side", side), zap.Float64("size", size))
	return models.OrderResult{Status: "dry_run", Side: side, Size: size, Simulated: true}
}
