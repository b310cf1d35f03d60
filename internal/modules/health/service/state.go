package service

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dip_bot/internal/models"
)

// Position is the read-only view of the position published after every cycle.
type Position struct {
	Phase       models.Phase `json:"phase"`
	Entries     int          `json:"entries"`
	Size        float64      `json:"size"`
	AvgEntry    float64      `json:"avg_entry"`
	SessionHigh *float64     `json:"session_high"`
	DailyPnL    float64      `json:"daily_pnl"`
	ResetDate   string       `json:"last_reset_date"`
}

func PositionOf(st *models.PositionState) Position {
	avg, _ := st.AverageEntry()
	p := Position{
		Phase:     st.Phase(),
		Entries:   len(st.Entries),
		Size:      st.TotalSize(),
		AvgEntry:  avg,
		DailyPnL:  st.DailyPnL,
		ResetDate: st.LastResetDate,
	}
	if st.SessionHigh != nil {
		h := *st.SessionHigh
		p.SessionHigh = &h
	}
	return p
}

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	lastCycleUnix atomic.Int64 // unix seconds
	cycles        atomic.Int64
	failures      atomic.Int64

	mu        sync.RWMutex
	lastError string
	position  Position
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// TouchCycle records the outcome of a finished cycle.
func (s *State) TouchCycle(t time.Time, err error) {
	s.lastCycleUnix.Store(t.Unix())
	s.cycles.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures.Add(1)
		s.lastError = err.Error()
		return
	}
	s.lastError = ""
}

func (s *State) LastCycle() time.Time {
	u := s.lastCycleUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Cycles() int64   { return s.cycles.Load() }
func (s *State) Failures() int64 { return s.failures.Load() }

func (s *State) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *State) SetPosition(p Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = p
}

func (s *State) Position() Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

// Summary is the one-line status answered to /status.
func (s *State) Summary() string {
	p := s.Position()
	high := "n/a"
	if p.SessionHigh != nil {
		high = fmt.Sprintf("%v", *p.SessionHigh)
	}
	msg := fmt.Sprintf("phase=%s entries=%d size=%v avg=%.6f high=%s daily_pnl=%.2f cycles=%d failures=%d",
		p.Phase, p.Entries, p.Size, p.AvgEntry, high, p.DailyPnL, s.Cycles(), s.Failures())
	if e := s.LastError(); e != "" {
		msg += "\nlast error: " + e
	}
	return msg
}
