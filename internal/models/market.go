package models

import (
	"fmt"
	"time"
)

// Candle is one OHLCV bar.
type Candle struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook levels are ordered best first.
type OrderBook struct {
	Bids []BookLevel
	Asks []BookLevel
	Time time.Time
}

// Indicators are recomputed every cycle and never persisted.
type Indicators struct {
	VWAP        float64
	ATR         float64
	LowerBand   float64
	Imbalance   float64
	FundingRate float64
}

// OrderResult is the acknowledgement returned by an executor.
type OrderResult struct {
	ClientID  string
	OrderID   int64
	Status    string
	Side      string
	Size      float64
	AvgPrice  float64
	Simulated bool
}

func (r OrderResult) String() string {
	if r.Simulated {
		return fmt.Sprintf("status=%s side=%s size=%v", r.Status, r.Side, r.Size)
	}
	return fmt.Sprintf("status=%s side=%s size=%v avg=%v oid=%d cloid=%s",
		r.Status, r.Side, r.Size, r.AvgPrice, r.OrderID, r.ClientID)
}
