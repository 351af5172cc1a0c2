package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrNoCandles = errors.New("no candles returned")

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
}

// WithLogger sets the logger used for recoverable response oddities.
func (c *RESTClient) WithLogger(logger *zap.Logger) *RESTClient {
	c.logger = logger
	return c
}

// GetPrice fetches the current price of symbol and measures the round trip.
func (c *RESTClient) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	endpoint := fmt.Sprintf("%s/api/market/price/%s", c.baseURL, url.PathEscape(symbol))

	start := time.Now()
	var body PriceResponse
	if err := c.getJSON(ctx, "price", endpoint, &body); err != nil {
		return Quote{}, err
	}
	latency := time.Since(start)

	if body.Timestamp.Unparsed != "" {
		c.logger.Debug("unrecognized price timestamp, treating as absent",
			zap.String("symbol", symbol), zap.String("timestamp", body.Timestamp.Unparsed))
	}

	if !body.Price.IsPositive() {
		return Quote{}, fmt.Errorf("invalid price for %s: %s", symbol, body.Price)
	}

	return Quote{
		Symbol:     symbol,
		Price:      body.Price,
		ServerTime: body.Timestamp.Time,
		Source:     body.Source,
		Latency:    latency,
	}, nil
}

// GetCandles fetches up to count candles, oldest first.
func (c *RESTClient) GetCandles(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error) {
	if !tf.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTimeframe, tf)
	}

	q := url.Values{}
	q.Set("timeframe", string(tf))
	q.Set("count", strconv.Itoa(count))
	endpoint := fmt.Sprintf("%s/api/market/candles/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	var body CandlesResponse
	if err := c.getJSON(ctx, "candles", endpoint, &body); err != nil {
		return nil, err
	}

	candles := CleanCandles(body.Candles)
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, tf, ErrNoCandles)
	}
	return candles, nil
}

func (c *RESTClient) getJSON(ctx context.Context, op, endpoint string, out any) error {
	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
