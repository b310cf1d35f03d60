package strategy

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"dip_bot/internal/models"
)

// ErrInsufficientData means indicators cannot be produced from the given market data.
var ErrInsufficientData = errors.New("insufficient data")

// Executor places orders for the traded instrument.
type Executor interface {
	MarketBuy(ctx context.Context, size float64) (models.OrderResult, error)
	ReduceOnlySell(ctx context.Context, size float64) (models.OrderResult, error)
}

// Notifier delivers operator alerts, best effort.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Config holds strategy parameters.
type Config struct {
	BaseSize          float64
	NormalSize        float64
	DeepSize          float64
	NuclearMultiplier float64

	MaxDailyLoss float64
	FundingMax   float64
	ImbalanceMin float64

	ProfitTargets [2]float64
	FinalTarget   float64

	NoTradeStart int // UTC hour, inclusive
	NoTradeEnd   int // UTC hour, exclusive

	ATRWindow         int
	VWAPATRMultiplier float64
	OrderBookDepth    int
}

// Strategy is the decision engine. It holds no position state of its own:
// every operation receives the state it mutates.
type Strategy struct {
	cfg  Config
	exec Executor
	n    Notifier
	log  *zap.Logger
	now  func() time.Time
}

type Option func(*Strategy)

func WithClock(now func() time.Time) Option {
	return func(s *Strategy) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Strategy) { s.log = l }
}

func New(cfg Config, exec Executor, n Notifier, opts ...Option) *Strategy {
	if cfg.OrderBookDepth <= 0 {
		cfg.OrderBookDepth = defaultBookDepth
	}
	s := &Strategy{
		cfg:  cfg,
		exec: exec,
		n:    n,
		log:  zap.NewNop(),
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Strategy) Config() Config { return s.cfg }

// Now returns the strategy clock in UTC.
func (s *Strategy) Now() time.Time { return s.now().UTC() }

// Indicators derives the per-cycle signals from a market snapshot.
func (s *Strategy) Indicators(candles []models.Candle, book models.OrderBook, funding float64) (models.Indicators, error) {
	vwap, atr, err := ComputeVWAPAndATR(candles, s.cfg.ATRWindow)
	if err != nil {
		return models.Indicators{}, err
	}
	return models.Indicators{
		VWAP:        vwap,
		ATR:         atr,
		LowerBand:   ComputeLowerBand(vwap, atr, s.cfg.VWAPATRMultiplier),
		Imbalance:   ComputeOrderBookImbalance(book, s.cfg.OrderBookDepth),
		FundingRate: funding,
	}, nil
}
