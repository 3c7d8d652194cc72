package postgres

import (
	"context"
	"strings"

	"klinefeed/internal/memorystore"
	"klinefeed/pkg/storage"

	"gorm.io/gorm"
)

const insertBatchSize = 100

// Save replaces every row of symbol inside one transaction.
func (p *PostgresClient) Save(ctx context.Context, symbol string, bars []memorystore.Bar) error {
	symbol = strings.ToUpper(symbol)

	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = ToBarRecord(symbol, b)
	}

	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("symbol = ?", symbol).Delete(&BarRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, insertBatchSize).Error
	})
	if err != nil {
		return storage.SaveError(symbol, err)
	}
	return nil
}

// Load returns symbol's rows ordered by open time.
func (p *PostgresClient) Load(ctx context.Context, symbol string) ([]memorystore.Bar, error) {
	symbol = strings.ToUpper(symbol)

	var records []BarRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("open_time ASC").
		Find(&records).Error
	if err != nil {
		return nil, storage.LoadError(symbol, err)
	}

	bars := make([]memorystore.Bar, len(records))
	for i, r := range records {
		bars[i] = r.Bar()
	}
	return bars, nil
}

// DeleteSnapshot removes every row of symbol.
func (p *PostgresClient) DeleteSnapshot(ctx context.Context, symbol string) error {
	return p.DB.WithContext(ctx).
		Where("symbol = ?", strings.ToUpper(symbol)).
		Delete(&BarRecord{}).Error
}
