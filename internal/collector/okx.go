package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-analyzer/internal/model"
)

const (
	okxBaseURL   = "https://www.okx.com"
	okxPageLimit = 100
)

// okxBars maps our intervals to OKX bar notation. Daily and weekly use
// the UTC-aligned variants so open times land on midnight UTC.
var okxBars = map[model.Interval]string{
	model.Interval4h: "4H",
	model.Interval1d: "1Dutc",
	model.Interval1w: "1Wutc",
}

// OKX fetches candles from the OKX v5 market API. OKX returns rows
// newest first, so every parse reverses into chronological order.
type OKX struct {
	client  *http.Client
	baseURL string
}

func NewOKX() *OKX {
	return &OKX{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: okxBaseURL,
	}
}

func (o *OKX) Name() string { return "okx" }

func (o *OKX) SymbolFor(instrument string) string {
	return strings.ToUpper(instrument) + "-USDT"
}

func (o *OKX) PageLimit() int { return okxPageLimit }

func (o *OKX) Recent(ctx context.Context, instrument string, interval model.Interval, limit int) ([]model.Candle, error) {
	bar, ok := okxBars[interval]
	if !ok {
		return nil, &model.SourceError{Source: o.Name(), Err: fmt.Errorf("unsupported interval %s", interval)}
	}
	if limit > okxPageLimit {
		limit = okxPageLimit
	}
	q := url.Values{}
	q.Set("instId", o.SymbolFor(instrument))
	q.Set("bar", bar)
	q.Set("limit", strconv.Itoa(limit))
	return o.fetch(ctx, "/api/v5/market/candles", q, instrument, interval)
}

func (o *OKX) Range(ctx context.Context, instrument string, interval model.Interval, from, to time.Time) ([]model.Candle, error) {
	bar, ok := okxBars[interval]
	if !ok {
		return nil, &model.SourceError{Source: o.Name(), Err: fmt.Errorf("unsupported interval %s", interval)}
	}
	q := url.Values{}
	q.Set("instId", o.SymbolFor(instrument))
	q.Set("bar", bar)
	// OKX pagination: "after" returns records strictly older than the
	// given millisecond timestamp.
	q.Set("after", strconv.FormatInt(to.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(okxPageLimit))

	candles, err := o.fetch(ctx, "/api/v5/market/history-candles", q, instrument, interval)
	if err != nil {
		return nil, err
	}
	out := candles[:0]
	for _, c := range candles {
		if !c.OpenTime.Before(from) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (o *OKX) fetch(ctx context.Context, path string, q url.Values, instrument string, interval model.Interval) ([]model.Candle, error) {
	body, err := getJSON(ctx, o.client, o.baseURL+path+"?"+q.Encode())
	if err != nil {
		return nil, &model.SourceError{Source: o.Name(), Err: err}
	}
	candles, err := parseOKXCandles(body, instrument, interval)
	if err != nil {
		return nil, &model.SourceError{Source: o.Name(), Err: err}
	}
	return candles, nil
}

// parseOKXCandles decodes the v5 envelope. Rows are string arrays
// [ts(ms), open, high, low, close, vol, ...] ordered newest first.
func parseOKXCandles(body []byte, instrument string, interval model.Interval) ([]model.Candle, error) {
	var envelope struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Code != "0" {
		return nil, fmt.Errorf("api code %s: %s", envelope.Code, envelope.Msg)
	}

	candles := make([]model.Candle, 0, len(envelope.Data))
	for i := len(envelope.Data) - 1; i >= 0; i-- {
		row := envelope.Data[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("candle row has %d fields, want at least 6", len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("candle timestamp: %w", err)
		}
		vals := make([]float64, 5)
		for j := 1; j <= 5; j++ {
			f, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, fmt.Errorf("candle field %d: %w", j, err)
			}
			vals[j-1] = f
		}
		candles = append(candles, model.Candle{
			Instrument: instrument,
			Interval:   interval,
			OpenTime:   time.UnixMilli(ms).UTC(),
			Open:       vals[0],
			High:       vals[1],
			Low:        vals[2],
			Close:      vals[3],
			Volume:     vals[4],
			Source:     "okx",
		})
	}
	return candles, nil
}
