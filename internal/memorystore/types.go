package memorystore

import (
	"math"
	"time"
)

// MaxBars is the default window kept per symbol.
const MaxBars = 100

// Bar represents a single candlestick received from the kline stream.
// Bars are identified by OpenTime within a symbol+interval series.
type Bar struct {
	OpenTime time.Time // Start time of the bar (millisecond precision)
	Open     float64   // Opening price
	High     float64   // Highest price during the interval
	Low      float64   // Lowest price during the interval
	Close    float64   // Closing (or latest, while the bar is open) price
}

// Valid reports whether all prices are finite and non-negative.
// High/low ordering against open/close is not checked; the feed does not guarantee it.
func (b Bar) Valid() bool {
	for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return false
		}
	}
	return !b.OpenTime.IsZero()
}

// Key is the millisecond start time used for ordering and deduplication.
func (b Bar) Key() int64 {
	return b.OpenTime.UnixMilli()
}

// UpsertResult describes what Upsert did with a bar.
type UpsertResult int

const (
	Ignored UpsertResult = iota
	Appended
	Replaced
)

func (r UpsertResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	default:
		return "ignored"
	}
}

// Mutated reports whether the series changed.
func (r UpsertResult) Mutated() bool {
	return r == Appended || r == Replaced
}
