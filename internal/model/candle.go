package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Candle is one OHLCV aggregate for an instrument at a fixed interval.
// Uniqueness key is (Instrument, Interval, OpenTime). A committed row is
// immutable, except that a provisional row (written by a fallback source)
// may be overwritten by a later non-provisional revision.
type Candle struct {
	Instrument  string    `json:"instrument"`
	Interval    Interval  `json:"interval"`
	OpenTime    time.Time `json:"open_time"` // bucket start (UTC, interval-aligned)
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	Source      string    `json:"source"`
	Provisional bool      `json:"provisional"`
}

// Key returns "instrument:interval:unix" for logging and dedup maps.
func (c *Candle) Key() string {
	return fmt.Sprintf("%s:%s:%d", c.Instrument, c.Interval, c.OpenTime.Unix())
}

// Validate checks OHLC sanity bounds and interval alignment.
func (c *Candle) Validate() error {
	if c.High < c.Low {
		return &IntegrityError{Candle: c.Key(), Reason: "high < low"}
	}
	if c.Open > c.High || c.Open < c.Low {
		return &IntegrityError{Candle: c.Key(), Reason: "open outside high-low range"}
	}
	if c.Close > c.High || c.Close < c.Low {
		return &IntegrityError{Candle: c.Key(), Reason: "close outside high-low range"}
	}
	if c.Volume < 0 {
		return &IntegrityError{Candle: c.Key(), Reason: "negative volume"}
	}
	if !c.Interval.Aligned(c.OpenTime) {
		return &IntegrityError{Candle: c.Key(), Reason: "open_time not aligned to interval"}
	}
	return nil
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
