package binance

import (
	"fmt"
	"time"
)

// KlineInterval is the interval value used in stream names and REST requests.
type KlineInterval string

const (
	Interval1Sec    KlineInterval = "1s"
	Interval1Min    KlineInterval = "1m"
	Interval3Min    KlineInterval = "3m"
	Interval5Min    KlineInterval = "5m"
	Interval15Min   KlineInterval = "15m"
	Interval30Min   KlineInterval = "30m"
	Interval1Hour   KlineInterval = "1h"
	Interval2Hour   KlineInterval = "2h"
	Interval4Hour   KlineInterval = "4h"
	Interval6Hour   KlineInterval = "6h"
	Interval8Hour   KlineInterval = "8h"
	Interval12Hour  KlineInterval = "12h"
	IntervalDaily   KlineInterval = "1d"
	Interval3Day    KlineInterval = "3d"
	IntervalWeekly  KlineInterval = "1w"
	IntervalMonthly KlineInterval = "1M"
)

var validKlineIntervals = map[KlineInterval]time.Duration{
	Interval1Sec:    time.Second,
	Interval1Min:    time.Minute,
	Interval3Min:    3 * time.Minute,
	Interval5Min:    5 * time.Minute,
	Interval15Min:   15 * time.Minute,
	Interval30Min:   30 * time.Minute,
	Interval1Hour:   time.Hour,
	Interval2Hour:   2 * time.Hour,
	Interval4Hour:   4 * time.Hour,
	Interval6Hour:   6 * time.Hour,
	Interval8Hour:   8 * time.Hour,
	Interval12Hour:  12 * time.Hour,
	IntervalDaily:   24 * time.Hour,
	Interval3Day:    3 * 24 * time.Hour,
	IntervalWeekly:  7 * 24 * time.Hour,
	IntervalMonthly: 30 * 24 * time.Hour, // nominal; calendar months vary
}

// IsValid checks if the KlineInterval is one the feed serves.
func (k KlineInterval) IsValid() bool {
	_, ok := validKlineIntervals[k]
	return ok
}

// Duration returns the nominal length of one bar.
func (k KlineInterval) Duration() time.Duration {
	return validKlineIntervals[k]
}

// ParseKlineInterval parses a string into a valid KlineInterval.
func ParseKlineInterval(s string) (KlineInterval, error) {
	interval := KlineInterval(s)
	if !interval.IsValid() {
		return "", fmt.Errorf("invalid kline interval: %q", s)
	}
	return interval, nil
}
