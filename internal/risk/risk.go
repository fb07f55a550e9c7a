// Package risk derives stop-loss and take-profit distances from recent price range.
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/THA011/AI-meta4/internal/candle"
)

const (
	// pipFactor converts a decimal price distance into pips.
	pipFactor = 10000
	// minStopPips is the floor applied to every stop suggestion.
	minStopPips = 10
	// tpSpreadPips is the minimum distance between stop and take-profit.
	tpSpreadPips = 20
)

var (
	// ErrInsufficientData reports fewer raw candles than the sizing window.
	ErrInsufficientData = errors.New("insufficient candles for risk sizing")
	// ErrBadRange reports a non-finite high or low inside the sizing window.
	ErrBadRange = errors.New("non-finite high/low in risk window")
)

// Sizing is the stop/take-profit suggestion attached to a prediction.
type Sizing struct {
	StopPips int
	TPPips   int
}

// Size computes an ATR-like proxy over the trailing window of the raw series:
// the high-low envelope averaged across the window, converted to pips.
// It operates on raw candles, not the validity-filtered feature rows.
func Size(series candle.Series) (Sizing, error) {
	if series.Len() < candle.RiskWindow {
		return Sizing{}, fmt.Errorf("%w: got %d candles, need %d", ErrInsufficientData, series.Len(), candle.RiskWindow)
	}

	tail := series[series.Len()-candle.RiskWindow:]
	maxHigh := math.Inf(-1)
	minLow := math.Inf(1)
	for _, c := range tail {
		if math.IsNaN(c.High) || math.IsInf(c.High, 0) || math.IsNaN(c.Low) || math.IsInf(c.Low, 0) {
			return Sizing{}, ErrBadRange
		}
		maxHigh = math.Max(maxHigh, c.High)
		minLow = math.Min(minLow, c.Low)
	}

	avgRange := (maxHigh - minLow) / candle.RiskWindow
	stop := int(math.Floor(avgRange * pipFactor))
	if stop < minStopPips {
		stop = minStopPips
	}
	tp := stop * 2
	if stop+tpSpreadPips > tp {
		tp = stop + tpSpreadPips
	}
	return Sizing{StopPips: stop, TPPips: tp}, nil
}
