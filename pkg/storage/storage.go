// Package storage defines the durable mirror of per-symbol bar series.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"klinefeed/internal/memorystore"
)

// Store persists one snapshot per symbol. Save overwrites the whole snapshot;
// Load returns an empty slice and a nil error when the symbol has none.
type Store interface {
	Save(ctx context.Context, symbol string, bars []memorystore.Bar) error
	Load(ctx context.Context, symbol string) ([]memorystore.Bar, error)
}

// ErrPersistence matches every *PersistenceError via errors.Is.
var ErrPersistence = errors.New("persistence failure")

// PersistenceError reports a failed read or write of a symbol's snapshot.
type PersistenceError struct {
	Op     string // "save" or "load"
	Symbol string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s snapshot %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// SaveError and LoadError wrap backend errors.
func SaveError(symbol string, err error) error {
	return &PersistenceError{Op: "save", Symbol: symbol, Err: err}
}

func LoadError(symbol string, err error) error {
	return &PersistenceError{Op: "load", Symbol: symbol, Err: err}
}

// Entry is one bar in the snapshot wire format.
type Entry struct {
	X int64   `json:"x"` // start time, ms since epoch
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
}

func ToEntry(b memorystore.Bar) Entry {
	return Entry{X: b.Key(), O: b.Open, H: b.High, L: b.Low, C: b.Close}
}

func (e Entry) Bar() memorystore.Bar {
	return memorystore.Bar{
		OpenTime: time.UnixMilli(e.X),
		Open:     e.O,
		High:     e.H,
		Low:      e.L,
		Close:    e.C,
	}
}

// EncodeSnapshot serializes bars as a JSON array of entries, in order.
func EncodeSnapshot(bars []memorystore.Bar) ([]byte, error) {
	entries := make([]Entry, len(bars))
	for i, b := range bars {
		entries[i] = ToEntry(b)
	}
	return json.Marshal(entries)
}

// DecodeSnapshot parses a snapshot. Ordering is not checked here; the
// buffer drops unordered entries when loading.
func DecodeSnapshot(data []byte) ([]memorystore.Bar, error) {
	if len(data) == 0 {
		return []memorystore.Bar{}, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	bars := make([]memorystore.Bar, len(entries))
	for i, e := range entries {
		bars[i] = e.Bar()
	}
	return bars, nil
}
