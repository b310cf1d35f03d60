package strategy

import (
	"fmt"
	"math"

	"dip_bot/internal/models"
)

const defaultBookDepth = 20

// ComputeVWAPAndATR returns the running close-weighted VWAP over the whole
// series and the mean true range of the last atrWindow bars. The first bar
// has no previous close and contributes no true range, so at least
// atrWindow+1 candles are required.
func ComputeVWAPAndATR(candles []models.Candle, atrWindow int) (float64, float64, error) {
	if len(candles) == 0 {
		return 0, 0, fmt.Errorf("%w: empty candle series", ErrInsufficientData)
	}
	if atrWindow <= 0 {
		return 0, 0, fmt.Errorf("%w: atr window %d", ErrInsufficientData, atrWindow)
	}

	var pv, vol float64
	for _, c := range candles {
		pv += c.Close * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0, 0, fmt.Errorf("%w: zero cumulative volume", ErrInsufficientData)
	}
	vwap := pv / vol

	if len(candles)-1 < atrWindow {
		return 0, 0, fmt.Errorf("%w: %d candles, atr window %d", ErrInsufficientData, len(candles), atrWindow)
	}
	var sum float64
	for i := len(candles) - atrWindow; i < len(candles); i++ {
		sum += trueRange(candles[i], candles[i-1].Close)
	}
	return vwap, sum / float64(atrWindow), nil
}

func trueRange(c models.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ComputeLowerBand returns the price at or below which entries are allowed.
func ComputeLowerBand(vwap, atr, k float64) float64 {
	return vwap - k*atr
}

// ComputeOrderBookImbalance is bid volume over ask volume across the best
// depth levels of each side; +Inf when there is no ask volume.
func ComputeOrderBookImbalance(book models.OrderBook, depth int) float64 {
	bids := sumSizes(book.Bids, depth)
	asks := sumSizes(book.Asks, depth)
	if asks == 0 {
		return math.Inf(1)
	}
	return bids / asks
}

func sumSizes(levels []models.BookLevel, depth int) float64 {
	if len(levels) > depth {
		levels = levels[:depth]
	}
	var total float64
	for _, l := range levels {
		total += l.Size
	}
	return total
}
