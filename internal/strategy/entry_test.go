package strategy

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"dip_bot/internal/models"
)

func TestLevelSize(t *testing.T) {
	s, _, _, _ := newTestStrategy()
	cfg := testConfig()

	tests := []struct {
		level int
		want  float64
	}{
		{-3, cfg.BaseSize},
		{0, cfg.BaseSize},
		{1, cfg.BaseSize},
		{2, cfg.NormalSize},
		{6, cfg.NormalSize},
		{7, cfg.DeepSize},
		{10, cfg.DeepSize},
		{11, cfg.DeepSize * cfg.NuclearMultiplier},
		{12, cfg.DeepSize * cfg.NuclearMultiplier * cfg.NuclearMultiplier},
		{15, cfg.DeepSize * math.Pow(cfg.NuclearMultiplier, 5)},
	}
	for _, tt := range tests {
		if got := s.LevelSize(tt.level); !approx(got, tt.want) {
			t.Errorf("LevelSize(%d) = %v, want %v", tt.level, got, tt.want)
		}
	}

	// deep ladders must not blow the stack
	if got := s.LevelSize(100000); !math.IsInf(got, 1) {
		t.Errorf("LevelSize(100000) = %v, want +Inf", got)
	}
}

func TestEvaluateEntry_Guards(t *testing.T) {
	passing := func() (float64, models.Indicators, int, *models.PositionState) {
		st := models.NewPositionState(testNow)
		st.SessionHigh = ptr(110)
		ind := models.Indicators{LowerBand: 101, Imbalance: 2, FundingRate: 0}
		return 100, ind, 12, st
	}

	tests := []struct {
		name   string
		mutate func(price *float64, ind *models.Indicators, hour *int, st *models.PositionState)
		want   Guard
	}{
		{name: "all pass", mutate: func(*float64, *models.Indicators, *int, *models.PositionState) {}, want: GuardNone},
		{name: "blackout start", mutate: func(_ *float64, _ *models.Indicators, h *int, _ *models.PositionState) { *h = 3 }, want: GuardBlackout},
		{name: "blackout last hour", mutate: func(_ *float64, _ *models.Indicators, h *int, _ *models.PositionState) { *h = 6 }, want: GuardBlackout},
		{name: "blackout end exclusive", mutate: func(_ *float64, _ *models.Indicators, h *int, _ *models.PositionState) { *h = 7 }, want: GuardNone},
		{name: "daily loss hit", mutate: func(_ *float64, _ *models.Indicators, _ *int, st *models.PositionState) { st.DailyPnL = -1500 }, want: GuardDailyLoss},
		{name: "daily loss below limit", mutate: func(_ *float64, _ *models.Indicators, _ *int, st *models.PositionState) { st.DailyPnL = -1499 }, want: GuardNone},
		{name: "funding at ceiling", mutate: func(_ *float64, ind *models.Indicators, _ *int, _ *models.PositionState) { ind.FundingRate = 0.0003 }, want: GuardFunding},
		{name: "price above band", mutate: func(p *float64, _ *models.Indicators, _ *int, _ *models.PositionState) { *p = 101.5 }, want: GuardPriceBand},
		{name: "price on band", mutate: func(p *float64, _ *models.Indicators, _ *int, _ *models.PositionState) { *p = 101 }, want: GuardNone},
		{name: "weak bids", mutate: func(_ *float64, ind *models.Indicators, _ *int, _ *models.PositionState) { ind.Imbalance = 1.79 }, want: GuardImbalance},
		{name: "infinite imbalance", mutate: func(_ *float64, ind *models.Indicators, _ *int, _ *models.PositionState) { ind.Imbalance = math.Inf(1) }, want: GuardNone},
		{name: "no session high", mutate: func(_ *float64, _ *models.Indicators, _ *int, st *models.PositionState) { st.SessionHigh = nil }, want: GuardLocalLow},
		{name: "not far enough under high", mutate: func(_ *float64, _ *models.Indicators, _ *int, st *models.PositionState) { st.SessionHigh = ptr(100.03) }, want: GuardLocalLow},
	}

	s, _, _, _ := newTestStrategy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, ind, hour, st := passing()
			tt.mutate(&price, &ind, &hour, st)

			d := s.EvaluateEntry(price, ind, hour, st)
			if d.Reason != tt.want {
				t.Fatalf("reason = %q, want %q", d.Reason, tt.want)
			}
			if d.Allowed != (tt.want == GuardNone) {
				t.Fatalf("allowed = %v for reason %q", d.Allowed, d.Reason)
			}
			if !d.Allowed && d.Size != 0 {
				t.Fatalf("rejected decision carries size %v", d.Size)
			}
		})
	}
}

func TestEvaluateEntry_SizesNextLevel(t *testing.T) {
	s, _, _, _ := newTestStrategy()
	st := models.NewPositionState(testNow)
	st.SessionHigh = ptr(110)
	for i := 0; i < 6; i++ {
		st.Entries = append(st.Entries, models.Entry{Price: 100, Size: 1})
	}

	d := s.EvaluateEntry(100, models.Indicators{LowerBand: 101, Imbalance: 2}, 12, st)
	if !d.Allowed || d.Level != 7 || d.Size != testConfig().DeepSize {
		t.Fatalf("decision = %+v, want level 7 deep size", d)
	}
}

func TestExecuteEntry(t *testing.T) {
	s, exec, n, _ := newTestStrategy()
	st := openState(100, 10)

	if _, err := s.ExecuteEntry(context.Background(), 90, 30, st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.Entries) != 2 || st.Entries[1] != (models.Entry{Price: 90, Size: 30}) {
		t.Fatalf("entries = %+v", st.Entries)
	}
	if len(exec.orders) != 1 || exec.orders[0] != (order{side: "buy", size: 30}) {
		t.Fatalf("orders = %+v", exec.orders)
	}
	if len(n.msgs) != 1 || !strings.Contains(n.msgs[0], "BUY level 2 size 30 at 90; new avg 92.500000") {
		t.Fatalf("alerts = %q", n.msgs)
	}
}

func TestExecuteEntry_FailedBuyLeavesState(t *testing.T) {
	s, exec, n, _ := newTestStrategy()
	exec.buyErr = errExchangeDown
	st := openState(100, 10)

	_, err := s.ExecuteEntry(context.Background(), 90, 30, st)
	if !errors.Is(err, errExchangeDown) {
		t.Fatalf("err = %v, want wrapped exchange error", err)
	}
	if len(st.Entries) != 1 || len(n.msgs) != 0 {
		t.Fatalf("state or alerts changed on failed buy: %+v %q", st.Entries, n.msgs)
	}
}
