package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/rs/zerolog"

	"adaptive-trader/pkg/data"
	"adaptive-trader/pkg/types"
)

// Interval strings accepted by the Bybit v5 kline endpoint.
const (
	Interval1m  = "1"
	Interval5m  = "5"
	Interval15m = "15"
	Interval1h  = "60"
	Interval4h  = "240"
	Interval1d  = "D"
)

// Config holds the Bybit connection settings. Market data needs no keys;
// they are accepted for callers that reuse the client elsewhere.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Category  string // "spot", "linear", "inverse"
}

// Client is a thin market-data wrapper over the Bybit v5 REST API. It
// implements the engine's window contract: strictly increasing bars,
// ErrDataUnavailable when history is short.
type Client struct {
	httpClient *bybit_api.Client
	category   string
	log        zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	baseURL := bybit_api.MAINNET
	if cfg.Testnet {
		baseURL = bybit_api.TESTNET
	}
	if cfg.Category == "" {
		cfg.Category = "linear"
	}

	return &Client{
		httpClient: bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit_api.WithBaseURL(baseURL)),
		category:   cfg.Category,
		log:        log.With().Str("component", "bybit").Logger(),
	}
}

// GetWindow fetches length bars ending at endTime (zero means latest),
// oldest first.
func (c *Client) GetWindow(ctx context.Context, symbol, interval string, endTime time.Time, length int) ([]types.OHLCV, error) {
	if length <= 0 || length > 1000 {
		return nil, fmt.Errorf("window length %d outside [1,1000]", length)
	}

	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"interval": interval,
		"limit":    length,
	}
	if !endTime.IsZero() {
		params["end"] = endTime.UnixMilli()
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: kline request failed: %v", data.ErrDataUnavailable, err)
	}

	bars, err := parseKlineResponse(result)
	if err != nil {
		return nil, err
	}
	if len(bars) < length {
		return nil, fmt.Errorf("%w: got %d of %d bars for %s", data.ErrDataUnavailable, len(bars), length, symbol)
	}

	c.log.Debug().Str("symbol", symbol).Str("interval", interval).Int("bars", len(bars)).Msg("window fetched")
	return bars, nil
}

// GetLatestPrice returns the last traded price for symbol.
func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: ticker request failed: %v", data.ErrDataUnavailable, err)
	}
	return parseTickerResponse(result)
}

func parseKlineResponse(response interface{}) ([]types.OHLCV, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T", response)
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("%w: API error %s (code %d)", data.ErrDataUnavailable, serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal kline result: %w", err)
	}

	var klineResult struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &klineResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal kline result: %w", err)
	}

	// Bybit row: [startTime, open, high, low, close, volume, turnover],
	// newest first on the wire.
	bars := make([]types.OHLCV, 0, len(klineResult.List))
	for _, row := range klineResult.List {
		if len(row) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		bars = append(bars, types.OHLCV{
			Timestamp: time.UnixMilli(ms),
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func parseTickerResponse(response interface{}) (float64, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return 0, fmt.Errorf("unexpected response type %T", response)
	}
	if serverResp.RetCode != 0 {
		return 0, fmt.Errorf("%w: API error %s (code %d)", data.ErrDataUnavailable, serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal ticker result: %w", err)
	}

	var tickerResult struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &tickerResult); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ticker result: %w", err)
	}
	if len(tickerResult.List) == 0 {
		return 0, fmt.Errorf("%w: empty ticker list", data.ErrDataUnavailable)
	}
	return parseFloat(tickerResult.List[0].LastPrice), nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
