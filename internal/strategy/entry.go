package strategy

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"dip_bot/internal/models"
)

// localLowPct: price must sit this far under the session high to count as a new low.
const localLowPct = 0.0005

// Guard names the entry check that rejected a cycle.
type Guard string

const (
	GuardNone      Guard = ""
	GuardBlackout  Guard = "blackout"
	GuardDailyLoss Guard = "daily_loss"
	GuardFunding   Guard = "funding"
	GuardPriceBand Guard = "price_band"
	GuardImbalance Guard = "imbalance"
	GuardLocalLow  Guard = "local_low"
)

// EntryDecision is the result of the guard chain. Size and Level are set only when Allowed.
type EntryDecision struct {
	Allowed bool
	Size    float64
	Level   int
	Reason  Guard
}

// LevelSize is the order size of the n-th lot of a lineage. Levels past ten
// scale geometrically: deep * nuclear^(n-10).
func (s *Strategy) LevelSize(level int) float64 {
	switch {
	case level <= 1:
		return s.cfg.BaseSize
	case level <= 6:
		return s.cfg.NormalSize
	case level <= 10:
		return s.cfg.DeepSize
	default:
		return s.cfg.DeepSize * math.Pow(s.cfg.NuclearMultiplier, float64(level-10))
	}
}

func (s *Strategy) inBlackout(hourUTC int) bool {
	return s.cfg.NoTradeStart <= hourUTC && hourUTC < s.cfg.NoTradeEnd
}

func newLowerLow(price float64, sessionHigh *float64) bool {
	if sessionHigh == nil {
		return false
	}
	return price <= *sessionHigh*(1-localLowPct)
}

// EvaluateEntry runs the guard chain in order and stops at the first failure.
func (s *Strategy) EvaluateEntry(price float64, ind models.Indicators, hourUTC int, st *models.PositionState) EntryDecision {
	var reason Guard
	switch {
	case s.inBlackout(hourUTC):
		reason = GuardBlackout
	case st.DailyPnL <= -s.cfg.MaxDailyLoss:
		reason = GuardDailyLoss
	case ind.FundingRate >= s.cfg.FundingMax:
		reason = GuardFunding
	case price > ind.LowerBand:
		reason = GuardPriceBand
	case ind.Imbalance < s.cfg.ImbalanceMin:
		reason = GuardImbalance
	case !newLowerLow(price, st.SessionHigh):
		reason = GuardLocalLow
	}
	if reason != GuardNone {
		return EntryDecision{Reason: reason}
	}

	level := len(st.Entries) + 1
	return EntryDecision{Allowed: true, Size: s.LevelSize(level), Level: level}
}

// ExecuteEntry buys size and records the lot. A failed order leaves st untouched.
func (s *Strategy) ExecuteEntry(ctx context.Context, price, size float64, st *models.PositionState) (models.OrderResult, error) {
	res, err := s.exec.MarketBuy(ctx, size)
	if err != nil {
		return res, fmt.Errorf("market buy %v: %w", size, err)
	}

	st.Entries = append(st.Entries, models.Entry{Price: price, Size: size})
	avg, _ := st.AverageEntry()

	s.log.Info("entry filled",
		zap.Int("level", len(st.Entries)),
		zap.Float64("size", size),
		zap.Float64("price", price),
		zap.Float64("avg", avg),
	)
	s.n.Sendf("BUY level %d size %v at %v; new avg %.6f (%s)", len(st.Entries), size, price, avg, res)
	return res, nil
}
