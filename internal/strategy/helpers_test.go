package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"dip_bot/internal/models"
)

type order struct {
	side string
	size float64
}

type fakeExecutor struct {
	orders  []order
	buyErr  error
	sellErr error
}

func (f *fakeExecutor) MarketBuy(_ context.Context, size float64) (models.OrderResult, error) {
	if f.buyErr != nil {
		return models.OrderResult{}, f.buyErr
	}
	f.orders = append(f.orders, order{side: "buy", size: size})
	return models.OrderResult{Status: "ok", Side: "buy", Size: size, Simulated: true}, nil
}

func (f *fakeExecutor) ReduceOnlySell(_ context.Context, size float64) (models.OrderResult, error) {
	if f.sellErr != nil {
		return models.OrderResult{}, f.sellErr
	}
	f.orders = append(f.orders, order{side: "sell", size: size})
	return models.OrderResult{Status: "ok", Side: "sell", Size: size, Simulated: true}, nil
}

func (f *fakeExecutor) sells() int {
	n := 0
	for _, o := range f.orders {
		if o.side == "sell" {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	msgs []string
}

func (f *fakeNotifier) Send(msg string)                  { f.msgs = append(f.msgs, msg) }
func (f *fakeNotifier) Sendf(format string, args ...any) { f.Send(fmt.Sprintf(format, args...)) }

var errExchangeDown = errors.New("exchange down")

func testConfig() Config {
	return Config{
		BaseSize:          7.7,
		NormalSize:        23.8,
		DeepSize:          170,
		NuclearMultiplier: 1.5,
		MaxDailyLoss:      1500,
		FundingMax:        0.0003,
		ImbalanceMin:      1.8,
		ProfitTargets:     [2]float64{1.008, 1.015},
		FinalTarget:       1.025,
		NoTradeStart:      3,
		NoTradeEnd:        7,
		ATRWindow:         120,
		VWAPATRMultiplier: 1.2,
		OrderBookDepth:    20,
	}
}

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func newTestStrategy() (*Strategy, *fakeExecutor, *fakeNotifier, *fixedClock) {
	exec := &fakeExecutor{}
	n := &fakeNotifier{}
	clock := &fixedClock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	return New(testConfig(), exec, n, WithClock(clock.now)), exec, n, clock
}

func openState(price, size float64) *models.PositionState {
	st := models.NewPositionState(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	st.Entries = append(st.Entries, models.Entry{Price: price, Size: size})
	return st
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func ptr(v float64) *float64 { return &v }
