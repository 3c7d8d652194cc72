package memorystore

import (
	"sync"
)

// SymbolBuffer is the in-memory series of one symbol: strictly increasing by
// OpenTime, no duplicates, at most limit bars.
type SymbolBuffer struct {
	mu     sync.Mutex
	symbol string
	limit  int
	bars   []Bar
}

// NewSymbolBuffer returns an empty buffer. A non-positive limit means MaxBars.
func NewSymbolBuffer(symbol string, limit int) *SymbolBuffer {
	if limit <= 0 {
		limit = MaxBars
	}
	return &SymbolBuffer{
		symbol: symbol,
		limit:  limit,
		bars:   make([]Bar, 0, limit+1),
	}
}

func (b *SymbolBuffer) Symbol() string { return b.symbol }

func (b *SymbolBuffer) Limit() int { return b.limit }

// Upsert applies one bar:
//   - same OpenTime as the last bar replaces it (in-progress update),
//   - later OpenTime appends it and evicts the oldest bar past the limit,
//   - anything older is ignored.
func (b *SymbolBuffer) Upsert(k Bar) UpsertResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.bars)
	if n == 0 {
		b.bars = append(b.bars, k)
		return Appended
	}

	last := b.bars[n-1].Key()
	switch key := k.Key(); {
	case key == last:
		b.bars[n-1] = k
		return Replaced
	case key > last:
		b.bars = append(b.bars, k)
		b.evict()
		return Appended
	default:
		return Ignored
	}
}

// Load replaces the series with persisted bars. Invalid entries and entries that
// are not strictly after the previously kept one are dropped; the number of
// dropped entries is returned. Only the most recent limit bars are kept.
func (b *SymbolBuffer) Load(bars []Bar) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := make([]Bar, 0, min(len(bars), b.limit)+1)
	dropped := 0
	for _, k := range bars {
		if !k.Valid() {
			dropped++
			continue
		}
		if len(kept) > 0 && k.Key() <= kept[len(kept)-1].Key() {
			dropped++
			continue
		}
		kept = append(kept, k)
	}

	b.bars = kept
	b.evict()
	return dropped
}

// evict drops the oldest bars until the window fits. Callers hold mu.
func (b *SymbolBuffer) evict() {
	if over := len(b.bars) - b.limit; over > 0 {
		b.bars = append(b.bars[:0], b.bars[over:]...)
	}
}

// Bars returns a copy of the ordered series.
func (b *SymbolBuffer) Bars() []Bar {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]Bar, len(b.bars))
	copy(cp, b.bars)
	return cp
}

func (b *SymbolBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bars)
}

// Last returns the most recent bar, if any.
func (b *SymbolBuffer) Last() (Bar, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.bars) == 0 {
		return Bar{}, false
	}
	return b.bars[len(b.bars)-1], true
}
