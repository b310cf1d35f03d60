package strategy

import (
	"go.uber.org/zap"

	"dip_bot/internal/models"
)

// DailyResetIfNeeded zeroes the daily P&L once per UTC calendar day.
func (s *Strategy) DailyResetIfNeeded(st *models.PositionState) bool {
	today := s.Now().Format(models.DateLayout)
	if st.LastResetDate == today {
		return false
	}
	s.log.Info("daily reset",
		zap.String("previous", st.LastResetDate),
		zap.String("today", today),
		zap.Float64("pnl", st.DailyPnL),
	)
	st.DailyPnL = 0
	st.LastResetDate = today
	s.n.Send("Daily reset: counters cleared")
	return true
}

// UpdateSessionHigh only ever raises the reference high; the flat reset is
// the one path that clears it.
func (s *Strategy) UpdateSessionHigh(price float64, st *models.PositionState) {
	if st.SessionHigh == nil || price > *st.SessionHigh {
		p := price
		st.SessionHigh = &p
	}
}
