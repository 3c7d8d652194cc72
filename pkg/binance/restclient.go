package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"klinefeed/internal/memorystore"
)

type RESTClient struct {
	baseURL    string
	quote      string
	httpClient *http.Client
}

func NewRESTClient(baseURL, quote string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		quote:      quote,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// GetKlines fetches the most recent limit bars for the subscription, oldest first.
// The last row is usually the still-open bar.
func (c *RESTClient) GetKlines(ctx context.Context, sub Subscription, limit int) ([]memorystore.Bar, error) {
	q := url.Values{}
	q.Set("symbol", sub.Pair(c.quote))
	q.Set("interval", string(sub.Interval))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/api/v3/klines?" + q.Encode()

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("binance error: status %d: %s", resp.StatusCode, body)
	}

	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return ParseKlineList(rows), nil
}
