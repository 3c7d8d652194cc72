package binance

import (
	"encoding/json"

	"klinefeed/internal/memorystore"
)

// ParseKlineList converts /api/v3/klines rows to bars.
// Rows look like [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
// It safely skips rows that are short or do not parse.
func ParseKlineList(raw [][]json.RawMessage) []memorystore.Bar {
	out := make([]memorystore.Bar, 0, len(raw))

	for _, row := range raw {
		if len(row) < 5 {
			continue // skip incomplete row
		}

		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}

		var prices [4]string
		ok := true
		for i := range prices {
			if err := json.Unmarshal(row[i+1], &prices[i]); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		d := KlineData{
			OpenTime: &openTime,
			Open:     &prices[0],
			High:     &prices[1],
			Low:      &prices[2],
			Close:    &prices[3],
		}
		b, err := d.Bar()
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}
