package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"klinefeed/internal/memorystore"
)

var (
	// ErrNotKline marks messages without a kline payload (subscribe replies etc.).
	// It is a rejection, not a failure: callers drop the message silently.
	ErrNotKline = errors.New("not a kline message")

	// ErrMalformedPayload marks kline messages with missing or unparsable fields.
	ErrMalformedPayload = errors.New("malformed kline payload")
)

type rawMessage struct {
	Kline  json.RawMessage `json:"k"`
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Decode maps a raw stream message to a Bar.
// Both the raw event and the combined-stream envelope are accepted.
func Decode(raw []byte) (memorystore.Bar, error) {
	var msg rawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return memorystore.Bar{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if msg.Stream != "" && len(msg.Data) > 0 {
		return decodeEvent(msg.Data)
	}
	return decodeKline(msg.Kline)
}

func decodeEvent(data []byte) (memorystore.Bar, error) {
	var msg rawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return memorystore.Bar{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return decodeKline(msg.Kline)
}

func decodeKline(k json.RawMessage) (memorystore.Bar, error) {
	if len(k) == 0 || string(k) == "null" {
		return memorystore.Bar{}, ErrNotKline
	}

	var d KlineData
	if err := json.Unmarshal(k, &d); err != nil {
		return memorystore.Bar{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return d.Bar()
}

// Bar converts the payload, converting decimal strings to float64 and the
// millisecond start time to a time.Time.
func (d *KlineData) Bar() (memorystore.Bar, error) {
	if d.OpenTime == nil || *d.OpenTime <= 0 {
		return memorystore.Bar{}, fmt.Errorf("%w: missing start time", ErrMalformedPayload)
	}

	open, err := parsePrice("o", d.Open)
	if err != nil {
		return memorystore.Bar{}, err
	}
	high, err := parsePrice("h", d.High)
	if err != nil {
		return memorystore.Bar{}, err
	}
	low, err := parsePrice("l", d.Low)
	if err != nil {
		return memorystore.Bar{}, err
	}
	closePrice, err := parsePrice("c", d.Close)
	if err != nil {
		return memorystore.Bar{}, err
	}

	return memorystore.Bar{
		OpenTime: time.UnixMilli(*d.OpenTime),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
	}, nil
}

func parsePrice(field string, s *string) (float64, error) {
	if s == nil {
		return 0, fmt.Errorf("%w: missing field %q", ErrMalformedPayload, field)
	}
	v, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q: %v", ErrMalformedPayload, field, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%w: field %q out of range: %s", ErrMalformedPayload, field, *s)
	}
	return v, nil
}
