// Package feature recomputes the training-time indicator set over a close-price window.
//
// Every request replays the full supplied window from scratch. No smoothing
// state survives between requests, so identical input always produces
// identical features regardless of call history. The recursions for ema8 and
// rsi14 must start at the beginning of the window; approximating them from a
// partial tail would drift from the values the classifier was trained on.
package feature

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// SchemaVersion tags the feature layout shared with the offline training job.
const SchemaVersion = "v1"

// Names lists the six features in canonical order. The order is a contract
// with the trained scaler and model; reordering silently corrupts predictions.
var Names = []string{"ret1", "sma5", "sma10", "ema8", "vol5", "rsi14"}

const (
	smaShortWindow = 5
	smaLongWindow  = 10
	volWindow      = 5
	emaSpan        = 8
	rsiPeriod      = 14

	// rsiEpsilon keeps the relative-strength ratio defined when no down moves exist.
	rsiEpsilon = 1e-12
)

// ErrNoValidRows reports a window where no bar had all six features defined.
var ErrNoValidRows = errors.New("no valid feature rows")

// Vector is one feature row in canonical order.
type Vector [6]float64

// Row carries the per-bar feature values; NaN marks an undefined value.
type Row struct {
	Ret1  float64
	SMA5  float64
	SMA10 float64
	EMA8  float64
	Vol5  float64
	RSI14 float64
}

// Valid reports whether every component is finite.
func (r Row) Valid() bool {
	for _, v := range r.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Vector returns the row in canonical order.
func (r Row) Vector() Vector {
	return Vector{r.Ret1, r.SMA5, r.SMA10, r.EMA8, r.Vol5, r.RSI14}
}

// Compute derives all six feature series from the full close window.
func Compute(closes []float64) []Row {
	n := len(closes)
	if n == 0 {
		return nil
	}

	ret1 := make([]float64, n)
	ret1[0] = math.NaN()
	for i := 1; i < n; i++ {
		ret1[i] = closes[i]/closes[i-1] - 1
	}

	ema8 := make([]float64, n)
	ema8[0] = closes[0]
	const emaAlpha = 2.0 / (emaSpan + 1)
	for i := 1; i < n; i++ {
		ema8[i] = emaAlpha*closes[i] + (1-emaAlpha)*ema8[i-1]
	}

	rsi14 := computeRSI(closes)

	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			Ret1:  ret1[i],
			SMA5:  rollingMean(closes, i, smaShortWindow),
			SMA10: rollingMean(closes, i, smaLongWindow),
			EMA8:  ema8[i],
			Vol5:  rollingStdDev(ret1, i, volWindow),
			RSI14: rsi14[i],
		}
	}
	return rows
}

// LastValid filters rows by validity, preserving order, and returns the final
// surviving row as the inference input.
func LastValid(rows []Row) (Vector, error) {
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Valid() {
			return rows[i].Vector(), nil
		}
	}
	return Vector{}, ErrNoValidRows
}

func rollingMean(series []float64, i, window int) float64 {
	if i < window-1 {
		return math.NaN()
	}
	return stat.Mean(series[i-window+1:i+1], nil)
}

func rollingStdDev(series []float64, i, window int) float64 {
	if i < window-1 {
		return math.NaN()
	}
	return stat.StdDev(series[i-window+1:i+1], nil)
}

// computeRSI smooths up and down moves with the same recursion as ema8 but
// alpha 1/period, seeded at the first defined delta. Bounded in [0,100].
func computeRSI(closes []float64) []float64 {
	n := len(closes)
	out := make([]float64, n)
	out[0] = math.NaN()

	const alpha = 1.0 / rsiPeriod
	var emaUp, emaDown float64
	seeded := false
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if math.IsNaN(delta) {
			out[i] = math.NaN()
			continue
		}
		up := math.Max(delta, 0)
		down := math.Max(-delta, 0)
		if !seeded {
			emaUp, emaDown = up, down
			seeded = true
		} else {
			emaUp = alpha*up + (1-alpha)*emaUp
			emaDown = alpha*down + (1-alpha)*emaDown
		}
		rs := emaUp / (emaDown + rsiEpsilon)
		out[i] = 100 - 100/(1+rs)
	}
	return out
}
