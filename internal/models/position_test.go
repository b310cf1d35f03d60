package models

import (
	"testing"
	"time"
)

func TestAverageEntry(t *testing.T) {
	st := &PositionState{Entries: []Entry{{Price: 100, Size: 10}, {Price: 90, Size: 30}}}

	avg, ok := st.AverageEntry()
	if !ok {
		t.Fatal("expected average for open position")
	}
	if avg != 92.5 {
		t.Fatalf("avg = %v, want 92.5", avg)
	}
	if got := st.TotalSize(); got != 40 {
		t.Fatalf("total = %v, want 40", got)
	}

	flat := NewPositionState(time.Now())
	if _, ok := flat.AverageEntry(); ok {
		t.Fatal("flat state must not report an average")
	}
}

func TestPhase(t *testing.T) {
	st := NewPositionState(time.Now())
	if st.Phase() != PhaseFlat {
		t.Fatalf("phase = %s, want FLAT", st.Phase())
	}
	st.Entries = append(st.Entries, Entry{Price: 1, Size: 1})
	if st.Phase() != PhaseOpen {
		t.Fatalf("phase = %s, want OPEN", st.Phase())
	}
	st.PartialOneDone = true
	if st.Phase() != PhasePartialOneDone {
		t.Fatalf("phase = %s, want PARTIAL_ONE_DONE", st.Phase())
	}
	st.PartialTwoDone = true
	if st.Phase() != PhasePartialTwoDone {
		t.Fatalf("phase = %s, want PARTIAL_TWO_DONE", st.Phase())
	}
}

func TestResetLineage(t *testing.T) {
	high := 120.0
	st := &PositionState{
		Entries:        []Entry{{Price: 100, Size: 1}},
		SessionHigh:    &high,
		PartialOneDone: true,
		PartialTwoDone: true,
		DailyPnL:       12,
		LastResetDate:  "2024-01-02",
	}
	st.ResetLineage()

	if !st.IsFlat() || st.SessionHigh != nil || st.PartialOneDone || st.PartialTwoDone {
		t.Fatalf("lineage not reset: %+v", st)
	}
	if st.DailyPnL != 12 || st.LastResetDate != "2024-01-02" {
		t.Fatalf("daily bookkeeping must survive a lineage reset: %+v", st)
	}
}

func TestCloneIsDeep(t *testing.T) {
	high := 10.0
	st := &PositionState{Entries: []Entry{{Price: 1, Size: 2}}, SessionHigh: &high}
	cp := st.Clone()

	cp.Entries[0].Size = 99
	*cp.SessionHigh = 42

	if st.Entries[0].Size != 2 || *st.SessionHigh != 10 {
		t.Fatalf("clone shares memory with original: %+v", st)
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 5, 6, 23, 0, 0, 0, time.UTC)
	st := &PositionState{}
	st.Normalize(now)

	if st.Entries == nil || len(st.Entries) != 0 {
		t.Fatalf("entries = %#v, want empty", st.Entries)
	}
	if st.LastResetDate != "2024-05-06" {
		t.Fatalf("last_reset_date = %q", st.LastResetDate)
	}
}
