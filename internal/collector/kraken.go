package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"crypto-analyzer/internal/model"
)

const (
	krakenBaseURL   = "https://api.kraken.com"
	krakenPageLimit = 720
)

// krakenMinutes maps our intervals to Kraken's interval parameter, which
// is in minutes.
var krakenMinutes = map[model.Interval]int{
	model.Interval4h: 240,
	model.Interval1d: 1440,
	model.Interval1w: 10080,
}

// Kraken fetches OHLC data from the Kraken public REST API. Kraken
// names Bitcoin XBT and keys the result object by its own pair alias,
// so parsing walks the result map instead of a fixed field.
type Kraken struct {
	client  *http.Client
	baseURL string
}

func NewKraken() *Kraken {
	return &Kraken{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: krakenBaseURL,
	}
}

func (k *Kraken) Name() string { return "kraken" }

func (k *Kraken) SymbolFor(instrument string) string {
	sym := strings.ToUpper(instrument)
	if sym == "BTC" {
		sym = "XBT"
	}
	return sym + "USD"
}

func (k *Kraken) PageLimit() int { return krakenPageLimit }

func (k *Kraken) Recent(ctx context.Context, instrument string, interval model.Interval, limit int) ([]model.Candle, error) {
	since := time.Now().UTC().Add(-time.Duration(limit+1) * interval.Step())
	candles, err := k.fetch(ctx, instrument, interval, since)
	if err != nil {
		return nil, err
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (k *Kraken) Range(ctx context.Context, instrument string, interval model.Interval, from, to time.Time) ([]model.Candle, error) {
	candles, err := k.fetch(ctx, instrument, interval, from.Add(-interval.Step()))
	if err != nil {
		return nil, err
	}
	out := candles[:0]
	for _, c := range candles {
		if !c.OpenTime.Before(from) && c.OpenTime.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (k *Kraken) fetch(ctx context.Context, instrument string, interval model.Interval, since time.Time) ([]model.Candle, error) {
	minutes, ok := krakenMinutes[interval]
	if !ok {
		return nil, &model.SourceError{Source: k.Name(), Err: fmt.Errorf("unsupported interval %s", interval)}
	}
	q := url.Values{}
	q.Set("pair", k.SymbolFor(instrument))
	q.Set("interval", strconv.Itoa(minutes))
	q.Set("since", strconv.FormatInt(since.Unix(), 10))

	body, err := getJSON(ctx, k.client, k.baseURL+"/0/public/OHLC?"+q.Encode())
	if err != nil {
		return nil, &model.SourceError{Source: k.Name(), Err: err}
	}
	candles, err := parseKrakenOHLC(body, instrument, interval)
	if err != nil {
		return nil, &model.SourceError{Source: k.Name(), Err: err}
	}
	return candles, nil
}

// parseKrakenOHLC decodes the OHLC envelope. The result object holds
// one pair-keyed array of [ts(s), open, high, low, close, vwap, volume,
// count] rows plus a "last" cursor we skip.
func parseKrakenOHLC(body []byte, instrument string, interval model.Interval) ([]model.Candle, error) {
	var envelope struct {
		Error  []string                   `json:"error"`
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(envelope.Error) > 0 {
		return nil, fmt.Errorf("api error: %s", strings.Join(envelope.Error, "; "))
	}

	var candles []model.Candle
	for key, raw := range envelope.Result {
		if key == "last" {
			continue
		}
		var rows [][]json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decode pair %s: %w", key, err)
		}
		for _, row := range rows {
			if len(row) < 7 {
				return nil, fmt.Errorf("ohlc row has %d fields, want at least 7", len(row))
			}
			var sec int64
			if err := json.Unmarshal(row[0], &sec); err != nil {
				return nil, fmt.Errorf("ohlc timestamp: %w", err)
			}
			open, err := krakenFloat(row[1])
			if err != nil {
				return nil, err
			}
			high, err := krakenFloat(row[2])
			if err != nil {
				return nil, err
			}
			low, err := krakenFloat(row[3])
			if err != nil {
				return nil, err
			}
			closeP, err := krakenFloat(row[4])
			if err != nil {
				return nil, err
			}
			volume, err := krakenFloat(row[6])
			if err != nil {
				return nil, err
			}
			candles = append(candles, model.Candle{
				Instrument: instrument,
				Interval:   interval,
				OpenTime:   time.Unix(sec, 0).UTC(),
				Open:       open,
				High:       high,
				Low:        low,
				Close:      closeP,
				Volume:     volume,
				Source:     "kraken",
			})
		}
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, nil
}

// krakenFloat parses a price field Kraken sends as a JSON string.
func krakenFloat(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("ohlc price field: %w", err)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("ohlc price field: %w", err)
	}
	return f, nil
}
