// Package render holds the sinks the session renders bar series into.
package render

import (
	"encoding/json"

	"klinefeed/internal/memorystore"
	"klinefeed/pkg/storage"
)

// Frame is the published form of one rendered series. Bars use the snapshot
// entry format.
type Frame struct {
	Symbol string          `json:"symbol"`
	Bars   []storage.Entry `json:"bars"`
}

func NewFrame(symbol string, bars []memorystore.Bar) Frame {
	entries := make([]storage.Entry, len(bars))
	for i, b := range bars {
		entries[i] = storage.ToEntry(b)
	}
	return Frame{Symbol: symbol, Bars: entries}
}

func (f Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

type Sink interface {
	Render(symbol string, bars []memorystore.Bar)
}

// Multi fans a render out to every sink in order.
type Multi []Sink

func (m Multi) Render(symbol string, bars []memorystore.Bar) {
	for _, s := range m {
		s.Render(symbol, bars)
	}
}
