package models

import "time"

// DateLayout is the ISO calendar date stored in last_reset_date.
const DateLayout = "2006-01-02"

// Phase of the exit waterfall for the current lineage.
type Phase string

const (
	PhaseFlat           Phase = "FLAT"
	PhaseOpen           Phase = "OPEN"
	PhasePartialOneDone Phase = "PARTIAL_ONE_DONE"
	PhasePartialTwoDone Phase = "PARTIAL_TWO_DONE"
)

// Entry is one accumulated lot.
type Entry struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// PositionState is the durable record of the single open lineage.
type PositionState struct {
	Entries        []Entry  `json:"entries"`
	SessionHigh    *float64 `json:"session_high"`
	PartialOneDone bool     `json:"partial_one_done"`
	PartialTwoDone bool     `json:"partial_two_done"`
	DailyPnL       float64  `json:"daily_pnl"`
	LastResetDate  string   `json:"last_reset_date"`
}

// NewPositionState returns a flat state whose reset date is the UTC date of now.
func NewPositionState(now time.Time) *PositionState {
	return &PositionState{
		Entries:       []Entry{},
		LastResetDate: now.UTC().Format(DateLayout),
	}
}

// Normalize fills defaults for fields absent from a persisted record.
func (s *PositionState) Normalize(now time.Time) {
	if s.Entries == nil {
		s.Entries = []Entry{}
	}
	if s.LastResetDate == "" {
		s.LastResetDate = now.UTC().Format(DateLayout)
	}
}

func (s *PositionState) TotalSize() float64 {
	var total float64
	for _, e := range s.Entries {
		total += e.Size
	}
	return total
}

// AverageEntry is the size-weighted entry price; ok is false when flat.
func (s *PositionState) AverageEntry() (float64, bool) {
	size := s.TotalSize()
	if size == 0 {
		return 0, false
	}
	var weighted float64
	for _, e := range s.Entries {
		weighted += e.Price * e.Size
	}
	return weighted / size, true
}

func (s *PositionState) IsFlat() bool { return len(s.Entries) == 0 }

// ResetLineage terminates the lineage: the next entry starts a fresh one.
func (s *PositionState) ResetLineage() {
	s.Entries = []Entry{}
	s.SessionHigh = nil
	s.PartialOneDone = false
	s.PartialTwoDone = false
}

func (s *PositionState) Phase() Phase {
	switch {
	case s.IsFlat():
		return PhaseFlat
	case s.PartialTwoDone:
		return PhasePartialTwoDone
	case s.PartialOneDone:
		return PhasePartialOneDone
	default:
		return PhaseOpen
	}
}

// Clone returns a deep copy.
func (s *PositionState) Clone() *PositionState {
	out := *s
	out.Entries = append([]Entry{}, s.Entries...)
	if s.SessionHigh != nil {
		h := *s.SessionHigh
		out.SessionHigh = &h
	}
	return &out
}
