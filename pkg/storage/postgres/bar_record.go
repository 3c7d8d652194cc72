package postgres

import (
	"time"

	"klinefeed/internal/memorystore"
)

// BarRecord is one bar of a symbol's persisted snapshot.
type BarRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol   string    `gorm:"type:text;not null;uniqueIndex:idx_bar_symbol_open_time"`
	OpenTime time.Time `gorm:"not null;uniqueIndex:idx_bar_symbol_open_time"`

	Open  float64 `gorm:"type:numeric;not null"`
	High  float64 `gorm:"type:numeric;not null"`
	Low   float64 `gorm:"type:numeric;not null"`
	Close float64 `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (BarRecord) TableName() string {
	return "bar_snapshot"
}

// ToBarRecord converts a bar of symbol into a row.
func ToBarRecord(symbol string, b memorystore.Bar) BarRecord {
	return BarRecord{
		Symbol:   symbol,
		OpenTime: b.OpenTime.UTC(),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
	}
}

func (r BarRecord) Bar() memorystore.Bar {
	return memorystore.Bar{
		OpenTime: time.UnixMilli(r.OpenTime.UnixMilli()),
		Open:     r.Open,
		High:     r.High,
		Low:      r.Low,
		Close:    r.Close,
	}
}
