package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dip_bot/internal/models"
)

const (
	partialFraction = 0.25
	finalFraction   = 1.0
)

type ExitStage string

const (
	StagePartialOne ExitStage = "partial_one"
	StagePartialTwo ExitStage = "partial_two"
	StageFinal      ExitStage = "final"
)

// Exit describes one executed liquidation.
type Exit struct {
	Stage     ExitStage
	Fraction  float64
	Price     float64
	Size      float64
	Realized  float64
	Remaining float64
	Order     models.OrderResult
}

// ProcessExits walks the profit waterfall. All three checks run in the same
// call and compound: each sell shrinks the size the next fraction applies to.
// Thresholds are measured against the average entry at the start of the call.
func (s *Strategy) ProcessExits(ctx context.Context, price float64, st *models.PositionState) ([]Exit, error) {
	avg, ok := st.AverageEntry()
	if !ok || st.TotalSize() <= 0 {
		return nil, nil
	}

	var exits []Exit

	if !st.PartialOneDone && price >= avg*s.cfg.ProfitTargets[0] {
		ex, err := s.applyExit(ctx, st, StagePartialOne, partialFraction, price)
		if err != nil {
			return exits, err
		}
		exits = append(exits, ex)
		if !st.IsFlat() {
			st.PartialOneDone = true
		}
	}

	if !st.PartialTwoDone && price >= avg*s.cfg.ProfitTargets[1] {
		ex, err := s.applyExit(ctx, st, StagePartialTwo, partialFraction, price)
		if err != nil {
			return exits, err
		}
		exits = append(exits, ex)
		if !st.IsFlat() {
			st.PartialTwoDone = true
		}
	}

	if price >= avg*s.cfg.FinalTarget && !st.IsFlat() {
		ex, err := s.applyExit(ctx, st, StageFinal, finalFraction, price)
		if err != nil {
			return exits, err
		}
		exits = append(exits, ex)
	}

	return exits, nil
}

// applyExit sells fraction of the current size. The order goes out first; st
// is only changed once it is acknowledged.
func (s *Strategy) applyExit(ctx context.Context, st *models.PositionState, stage ExitStage, fraction, price float64) (Exit, error) {
	avg, ok := st.AverageEntry()
	if !ok {
		return Exit{}, nil
	}
	total := st.TotalSize()
	sell := total * fraction

	res, err := s.exec.ReduceOnlySell(ctx, sell)
	if err != nil {
		return Exit{}, fmt.Errorf("%s reduce-only sell %v: %w", stage, sell, err)
	}

	realized := (price - avg) * sell
	st.DailyPnL += realized
	remaining := total - sell
	if remaining > 0 {
		st.Entries = []models.Entry{{Price: avg, Size: remaining}}
	} else {
		st.ResetLineage()
	}

	s.log.Info("exit filled",
		zap.String("stage", string(stage)),
		zap.Float64("fraction", fraction),
		zap.Float64("price", price),
		zap.Float64("realized", realized),
		zap.Float64("remaining", remaining),
	)
	s.n.Sendf("EXIT %.0f%% at %v; realized %.2f; remaining %v", fraction*100, price, realized, remaining)

	return Exit{
		Stage:     stage,
		Fraction:  fraction,
		Price:     price,
		Size:      sell,
		Realized:  realized,
		Remaining: remaining,
		Order:     res,
	}, nil
}
