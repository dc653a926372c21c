package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-analyzer/internal/model"
)

const (
	binanceBaseURL   = "https://api.binance.com"
	binancePageLimit = 1000
)

// Binance fetches klines from the Binance spot REST API. Binance's
// interval notation matches ours directly (4h, 1d, 1w).
type Binance struct {
	client  *http.Client
	baseURL string
}

func NewBinance() *Binance {
	return &Binance{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: binanceBaseURL,
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) SymbolFor(instrument string) string {
	return strings.ToUpper(instrument) + "USDT"
}

func (b *Binance) PageLimit() int { return binancePageLimit }

func (b *Binance) Recent(ctx context.Context, instrument string, interval model.Interval, limit int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", b.SymbolFor(instrument))
	q.Set("interval", string(interval))
	q.Set("limit", strconv.Itoa(limit))
	return b.fetch(ctx, instrument, interval, q)
}

func (b *Binance) Range(ctx context.Context, instrument string, interval model.Interval, from, to time.Time) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", b.SymbolFor(instrument))
	q.Set("interval", string(interval))
	q.Set("startTime", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(to.UnixMilli()-1, 10))
	q.Set("limit", strconv.Itoa(binancePageLimit))
	return b.fetch(ctx, instrument, interval, q)
}

func (b *Binance) fetch(ctx context.Context, instrument string, interval model.Interval, q url.Values) ([]model.Candle, error) {
	body, err := getJSON(ctx, b.client, b.baseURL+"/api/v3/klines?"+q.Encode())
	if err != nil {
		return nil, &model.SourceError{Source: b.Name(), Err: err}
	}
	candles, err := parseBinanceKlines(body, instrument, interval)
	if err != nil {
		return nil, &model.SourceError{Source: b.Name(), Err: err}
	}
	return candles, nil
}

// parseBinanceKlines decodes the klines array-of-arrays payload:
// [openTime(ms), open, high, low, close, volume, closeTime, ...] with
// prices and volume as strings.
func parseBinanceKlines(body []byte, instrument string, interval model.Interval) ([]model.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row has %d fields, want at least 6", len(row))
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("kline open time: %w", err)
		}
		vals := make([]float64, 5)
		for i := 1; i <= 5; i++ {
			var s string
			if err := json.Unmarshal(row[i], &s); err != nil {
				return nil, fmt.Errorf("kline field %d: %w", i, err)
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("kline field %d: %w", i, err)
			}
			vals[i-1] = f
		}
		candles = append(candles, model.Candle{
			Instrument: instrument,
			Interval:   interval,
			OpenTime:   time.UnixMilli(openMs).UTC(),
			Open:       vals[0],
			High:       vals[1],
			Low:        vals[2],
			Close:      vals[3],
			Volume:     vals[4],
			Source:     "binance",
		})
	}
	return candles, nil
}

// getJSON performs a GET and returns the body, treating any non-200
// status as an error.
func getJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
