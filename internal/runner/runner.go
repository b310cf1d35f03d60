package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dip_bot/internal/models"
	"dip_bot/internal/modules/health/service"
	"dip_bot/internal/state"
	"dip_bot/internal/strategy"
	"dip_bot/pkg/tracing"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultErrorBackoff = 10 * time.Second

	// unreadyAfter consecutive failed cycles flip /readyz back to not ready.
	unreadyAfter = 3
)

// MarketData is the read side of the exchange.
type MarketData interface {
	FetchPrice(ctx context.Context) (float64, error)
	FetchCandles(ctx context.Context) ([]models.Candle, error)
	FetchOrderBook(ctx context.Context) (models.OrderBook, error)
	FetchFundingRate(ctx context.Context) (float64, error)
}

type Config struct {
	PollInterval time.Duration
	ErrorBackoff time.Duration
	DryRun       bool
	Testnet      bool
}

// Runner drives the strategy: one cycle at a time, never overlapping.
type Runner struct {
	cfg    Config
	md     MarketData
	strat  *strategy.Strategy
	store  state.Store
	n      strategy.Notifier
	health *service.State
	log    *zap.Logger

	st    *models.PositionState
	sleep func(ctx context.Context, d time.Duration) bool
}

func New(cfg Config, md MarketData, strat *strategy.Strategy, store state.Store,
	n strategy.Notifier, health *service.State, log *zap.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	if log == nil {
		log = zap.NewNop()
	}
	if health == nil {
		health = service.NewState()
	}
	return &Runner{
		cfg:    cfg,
		md:     md,
		strat:  strat,
		store:  store,
		n:      n,
		health: health,
		log:    log.Named("runner"),
		sleep:  sleepCtx,
	}
}

// Load reads the persisted position. It must succeed before Run.
func (r *Runner) Load(ctx context.Context) error {
	st, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load position state: %w", err)
	}
	r.st = st
	r.publish()

	avg, _ := st.AverageEntry()
	r.log.Info("position loaded",
		zap.String("phase", string(st.Phase())),
		zap.Int("entries", len(st.Entries)),
		zap.Float64("size", st.TotalSize()),
		zap.Float64("avg", avg),
		zap.Float64("daily_pnl", st.DailyPnL),
	)
	return nil
}

// State returns a copy of the in-memory position.
func (r *Runner) State() *models.PositionState {
	if r.st == nil {
		return nil
	}
	return r.st.Clone()
}

type snapshot struct {
	price   float64
	candles []models.Candle
	book    models.OrderBook
	funding float64
}

func (r *Runner) fetch(ctx context.Context) (snapshot, error) {
	var s snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.price, err = r.md.FetchPrice(gctx)
		if err != nil {
			return fmt.Errorf("fetch price: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		s.candles, err = r.md.FetchCandles(gctx)
		if err != nil {
			return fmt.Errorf("fetch candles: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		s.book, err = r.md.FetchOrderBook(gctx)
		if err != nil {
			return fmt.Errorf("fetch order book: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		s.funding, err = r.md.FetchFundingRate(gctx)
		if err != nil {
			return fmt.Errorf("fetch funding rate: %w", err)
		}
		return nil
	})
	return s, g.Wait()
}

// Cycle runs one fetch, decide, persist pass. Every fallible read happens
// before the first mutation of the position. A failed order or save returns
// early; mutations already acknowledged stay in memory and are persisted by
// the next successful cycle.
func (r *Runner) Cycle(ctx context.Context) (err error) {
	if r.st == nil {
		return fmt.Errorf("position state not loaded")
	}

	span, ctx := tracing.StartSpan(ctx, "runner.cycle")
	start := time.Now()
	defer func() {
		tracing.Fail(span, err)
		span.Finish()
		mtxCycleSeconds.Observe(time.Since(start).Seconds())
	}()

	snap, err := r.fetch(ctx)
	if err != nil {
		return err
	}
	ind, err := r.strat.Indicators(snap.candles, snap.book, snap.funding)
	if err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	span.SetTag("price", snap.price)

	st := r.st
	defer r.publish()

	r.strat.DailyResetIfNeeded(st)
	r.strat.UpdateSessionHigh(snap.price, st)

	now := r.strat.Now()
	d := r.strat.EvaluateEntry(snap.price, ind, now.Hour(), st)
	r.log.Debug("cycle",
		zap.Float64("price", snap.price),
		zap.Float64("vwap", ind.VWAP),
		zap.Float64("atr", ind.ATR),
		zap.Float64("lower_band", ind.LowerBand),
		zap.Float64("imbalance", ind.Imbalance),
		zap.Float64("funding", ind.FundingRate),
		zap.Bool("entry", d.Allowed),
		zap.String("guard", string(d.Reason)),
	)
	if d.Allowed {
		res, err := r.strat.ExecuteEntry(ctx, snap.price, d.Size, st)
		if err != nil {
			return err
		}
		mtxOrders.WithLabelValues("buy", orderMode(res.Simulated)).Inc()
	} else {
		mtxEntryRejections.WithLabelValues(string(d.Reason)).Inc()
	}

	exits, err := r.strat.ProcessExits(ctx, snap.price, st)
	for _, ex := range exits {
		mtxOrders.WithLabelValues("sell", orderMode(ex.Order.Simulated)).Inc()
	}
	if err != nil {
		return err
	}

	if err := r.store.Save(ctx, st); err != nil {
		return fmt.Errorf("save position state: %w", err)
	}
	return nil
}

func (r *Runner) publish() {
	st := r.st
	r.health.SetPosition(service.PositionOf(st))
	mtxDailyPnL.Set(st.DailyPnL)
	mtxPositionSize.Set(st.TotalSize())
	mtxEntries.Set(float64(len(st.Entries)))
}

// Run loops until ctx is cancelled. Cycle errors are reported and retried
// after the back-off; they never stop the loop.
func (r *Runner) Run(ctx context.Context) {
	r.n.Sendf("Bot starting (dry_run=%v, testnet=%v)", r.cfg.DryRun, r.cfg.Testnet)

	failures := 0
	for {
		err := r.Cycle(ctx)
		if ctx.Err() != nil {
			r.log.Info("runner stopped")
			return
		}
		r.health.TouchCycle(time.Now(), err)

		wait := r.cfg.PollInterval
		if err != nil {
			failures++
			mtxCycles.WithLabelValues("error").Inc()
			r.log.Error("cycle failed", zap.Error(err), zap.Int("consecutive", failures))
			r.n.Sendf("Error: %v", err)
			if failures >= unreadyAfter && r.health.Ready() {
				r.log.Warn("marking not ready", zap.Int("consecutive_failures", failures))
				r.health.SetReady(false)
			}
			wait = r.cfg.ErrorBackoff
		} else {
			failures = 0
			mtxCycles.WithLabelValues("ok").Inc()
			r.health.SetReady(true)
		}

		if !r.sleep(ctx, wait) {
			r.log.Info("runner stopped")
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
