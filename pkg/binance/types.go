package binance

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Subscription identifies one live stream target.
type Subscription struct {
	Symbol   string        // base asset, upper-case (e.g. "ETH")
	Interval KlineInterval // e.g. "1m"
}

// NewSubscription normalizes the symbol and validates the interval.
func NewSubscription(symbol, interval string) (Subscription, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Subscription{}, fmt.Errorf("empty symbol")
	}
	iv, err := ParseKlineInterval(strings.TrimSpace(interval))
	if err != nil {
		return Subscription{}, err
	}
	return Subscription{Symbol: symbol, Interval: iv}, nil
}

// StreamName returns the feed stream for the pair symbol+quote, e.g. "ethusdt@kline_1m".
func (s Subscription) StreamName(quote string) string {
	return fmt.Sprintf("%s%s@kline_%s", strings.ToLower(s.Symbol), strings.ToLower(quote), s.Interval)
}

// Pair returns the exchange symbol, e.g. "ETHUSDT".
func (s Subscription) Pair(quote string) string {
	return strings.ToUpper(s.Symbol + quote)
}

func (s Subscription) String() string {
	return s.Symbol + "/" + string(s.Interval)
}

// KlineEvent is the raw kline stream event.
type KlineEvent struct {
	EventType string     `json:"e"`
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	Kline     *KlineData `json:"k"`
}

// KlineData carries the bar fields. Pointers distinguish missing fields from zero values.
type KlineData struct {
	OpenTime  *int64  `json:"t"`
	CloseTime int64   `json:"T"`
	Symbol    string  `json:"s"`
	Interval  string  `json:"i"`
	Open      *string `json:"o"`
	Close     *string `json:"c"`
	High      *string `json:"h"`
	Low       *string `json:"l"`
	Volume    string  `json:"v"`
	Closed    bool    `json:"x"` // whether the bar is final
}

// StreamEnvelope wraps events on the combined-stream endpoint.
type StreamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type SubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     uint     `json:"id"`
}

// SubscribeResponse is the reply to a SUBSCRIBE request; Error is set on rejection.
type SubscribeResponse struct {
	Result interface{}    `json:"result"`
	ID     uint           `json:"id"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("binance error %d: %s", e.Code, e.Msg)
}
