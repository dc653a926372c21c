package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"crypto-analyzer/internal/model"
)

const (
	binanceStreamURL   = "wss://stream.binance.com:9443/stream"
	wsReconnectDelay   = 5 * time.Second
	wsMaxReconnectWait = time.Minute
	wsReadDeadline     = 3 * time.Minute
)

// LiveStream subscribes to Binance kline streams over websocket and
// upserts each candle as its interval closes. Stream data is primary,
// never provisional. Disconnects trigger reconnects with growing delay;
// the periodic sync covers whatever the outage missed.
type LiveStream struct {
	store       model.CandleStore
	instruments []string
	intervals   []model.Interval
	symbols     map[string]string // exchange symbol -> instrument

	// Optional hooks, wired to metrics by the daemon.
	OnReconnect func()
	OnCandle    func(instrument string, interval model.Interval)
}

func NewLiveStream(store model.CandleStore, instruments []string, intervals []model.Interval) *LiveStream {
	symbols := make(map[string]string, len(instruments))
	for _, inst := range instruments {
		symbols[strings.ToUpper(inst)+"USDT"] = inst
	}
	return &LiveStream{
		store:       store,
		instruments: instruments,
		intervals:   intervals,
		symbols:     symbols,
	}
}

// streamNames builds the combined-stream path segments, e.g.
// "btcusdt@kline_4h".
func (ls *LiveStream) streamNames() []string {
	names := make([]string, 0, len(ls.instruments)*len(ls.intervals))
	for _, inst := range ls.instruments {
		for _, iv := range ls.intervals {
			names = append(names, strings.ToLower(inst)+"usdt@kline_"+string(iv))
		}
	}
	return names
}

// Run connects and pumps klines until ctx is cancelled. Always returns
// ctx.Err() on exit.
func (ls *LiveStream) Run(ctx context.Context) error {
	url := binanceStreamURL + "?streams=" + strings.Join(ls.streamNames(), "/")
	delay := wsReconnectDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			log.Printf("[ws] dial failed: %v, retrying in %s", err, delay)
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			delay = growDelay(delay)
			continue
		}
		log.Printf("[ws] connected, %d streams", len(ls.streamNames()))
		delay = wsReconnectDelay

		err = ls.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[ws] connection lost: %v, reconnecting in %s", err, delay)
		if ls.OnReconnect != nil {
			ls.OnReconnect()
		}
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay = growDelay(delay)
	}
}

func (ls *LiveStream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage when the context dies.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		candle, closed, err := ls.parseKlineEvent(msg)
		if err != nil {
			log.Printf("[ws] parse error: %v", err)
			continue
		}
		if !closed {
			continue
		}
		if _, err := ls.store.UpsertCandles(ctx, []model.Candle{candle}); err != nil {
			log.Printf("[ws] upsert failed: %v", err)
			continue
		}
		if ls.OnCandle != nil {
			ls.OnCandle(candle.Instrument, candle.Interval)
		}
	}
}

// klineEvent is the combined-stream kline payload. The x flag marks the
// interval as closed; only closed klines are stored.
type klineEvent struct {
	Data struct {
		Symbol string `json:"s"`
		Kline  struct {
			OpenTime int64  `json:"t"`
			Interval string `json:"i"`
			Open     string `json:"o"`
			High     string `json:"h"`
			Low      string `json:"l"`
			Close    string `json:"c"`
			Volume   string `json:"v"`
			Closed   bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func (ls *LiveStream) parseKlineEvent(msg []byte) (model.Candle, bool, error) {
	var ev klineEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return model.Candle{}, false, fmt.Errorf("decode kline event: %w", err)
	}
	instrument, ok := ls.symbols[ev.Data.Symbol]
	if !ok {
		return model.Candle{}, false, fmt.Errorf("unexpected symbol %q", ev.Data.Symbol)
	}
	interval, err := model.ParseInterval(ev.Data.Kline.Interval)
	if err != nil {
		return model.Candle{}, false, err
	}

	k := ev.Data.Kline
	fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	var vals [5]float64
	for i, s := range fields {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, false, fmt.Errorf("kline price field: %w", err)
		}
		vals[i] = f
	}
	return model.Candle{
		Instrument: instrument,
		Interval:   interval,
		OpenTime:   time.UnixMilli(k.OpenTime).UTC(),
		Open:       vals[0],
		High:       vals[1],
		Low:        vals[2],
		Close:      vals[3],
		Volume:     vals[4],
		Source:     "binance",
	}, k.Closed, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func growDelay(d time.Duration) time.Duration {
	d *= 2
	if d > wsMaxReconnectWait {
		d = wsMaxReconnectWait
	}
	return d
}
