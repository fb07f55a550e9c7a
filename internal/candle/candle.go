// Package candle normalizes raw OHLCV records into time-ordered series ready for indicators.
package candle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	// RiskWindow is the trailing bar count consumed by stop/take-profit sizing and RSI smoothing.
	RiskWindow = 14
	// MinWindow is the shortest series the service accepts: the risk window plus one warm-up bar.
	MinWindow = RiskWindow + 1
)

// ErrInsufficientData reports a series shorter than the minimum window.
var ErrInsufficientData = errors.New("insufficient candle history")

// Field is a numeric candle field tolerant of string-encoded values.
// Anything uncoercible decodes to NaN rather than failing the request;
// downstream validity filtering drops the affected rows.
type Field float64

// UnmarshalJSON accepts a JSON number, a quoted number, or null.
func (f *Field) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = Field(math.NaN())
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(b, &unquoted); err != nil {
			*f = Field(math.NaN())
			return nil
		}
		s = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = Field(math.NaN())
		return nil
	}
	*f = Field(v)
	return nil
}

// Record is the wire form of a single candle as clients submit it.
type Record struct {
	Datetime string `json:"datetime"`
	Open     Field  `json:"open"`
	High     Field  `json:"high"`
	Low      Field  `json:"low"`
	Close    Field  `json:"close"`
	Volume   Field  `json:"volume"`
}

// UnmarshalJSON defaults absent numeric fields to NaN so they count as missing.
func (r *Record) UnmarshalJSON(b []byte) error {
	type alias Record
	nan := Field(math.NaN())
	a := alias{Open: nan, High: nan, Low: nan, Close: nan, Volume: nan}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*r = Record(a)
	return nil
}

// Candle is one OHLCV bar after coercion; NaN marks a field that failed to parse.
type Candle struct {
	Datetime string
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Series is a candle sequence sorted ascending by datetime.
type Series []Candle

// ParseRecords coerces raw records and orders them into a canonical series.
// The sort is stable: records sharing a datetime keep their input order.
func ParseRecords(records []Record) (Series, error) {
	if len(records) < MinWindow {
		return nil, fmt.Errorf("%w: got %d candles, need at least %d", ErrInsufficientData, len(records), MinWindow)
	}
	series := make(Series, len(records))
	for i, rec := range records {
		series[i] = Candle{
			Datetime: rec.Datetime,
			Open:     float64(rec.Open),
			High:     float64(rec.High),
			Low:      float64(rec.Low),
			Close:    float64(rec.Close),
			Volume:   float64(rec.Volume),
		}
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Datetime < series[j].Datetime
	})
	return series, nil
}

// Len returns the number of candles in the series.
func (s Series) Len() int { return len(s) }

// Closes extracts the close column in series order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// HasMissing reports whether any numeric field in the series is non-finite.
func (s Series) HasMissing() bool {
	for _, c := range s {
		for _, v := range [5]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}
