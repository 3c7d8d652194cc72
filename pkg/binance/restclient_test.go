package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// go test -v --run TestGetKlines
func TestGetKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BNBUSDT" || q.Get("interval") != "5m" || q.Get("limit") != "3" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			[1000,"1.0","2.0","0.5","1.5","10",1999,"15",3,"5","7","0"],
			[2000,"1.5","2.5","1.0","2.0","10",2999,"15",3,"5","7","0"],
			[3000,"bad","2.5","1.0","2.0","10",3999,"15",3,"5","7","0"],
			[4000,"2.0"]
		]`))
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, "USDT", 5*time.Second)
	sub, _ := NewSubscription("bnb", "5m")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bars, err := client.GetKlines(ctx, sub, 3)
	if err != nil {
		t.Fatalf("GetKlines: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("len = %d, want 2 (bad rows skipped)", len(bars))
	}
	if bars[0].Key() != 1000 || bars[1].Close != 2.0 {
		t.Errorf("unexpected bars: %+v", bars)
	}
}

// go test -v --run TestGetKlinesAPIError
func TestGetKlinesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, "USDT", 5*time.Second)
	sub, _ := NewSubscription("nope", "1m")

	_, err := client.GetKlines(context.Background(), sub, 10)
	var apiErr *ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want *ErrorResponse", err)
	}
	if apiErr.Code != -1121 {
		t.Errorf("code = %d, want -1121", apiErr.Code)
	}
}
