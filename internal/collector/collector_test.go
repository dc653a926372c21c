package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"crypto-analyzer/internal/model"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	name      string
	pageLimit int
	candles   []model.Candle
	err       error

	rangeCalls []struct{ from, to time.Time }
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) SymbolFor(instrument string) string { return instrument + "USDT" }
func (f *fakeSource) PageLimit() int {
	if f.pageLimit == 0 {
		return 100
	}
	return f.pageLimit
}

func (f *fakeSource) Recent(_ context.Context, _ string, _ model.Interval, limit int) ([]model.Candle, error) {
	if f.err != nil {
		return nil, &model.SourceError{Source: f.name, Err: f.err}
	}
	if len(f.candles) > limit {
		return f.candles[len(f.candles)-limit:], nil
	}
	return f.candles, nil
}

func (f *fakeSource) Range(_ context.Context, _ string, _ model.Interval, from, to time.Time) ([]model.Candle, error) {
	f.rangeCalls = append(f.rangeCalls, struct{ from, to time.Time }{from, to})
	if f.err != nil {
		return nil, &model.SourceError{Source: f.name, Err: f.err}
	}
	var out []model.Candle
	for _, c := range f.candles {
		if !c.OpenTime.Before(from) && c.OpenTime.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeStore struct {
	model.CandleStore
	gaps     []time.Time
	upserted []model.Candle
}

func (f *fakeStore) UpsertCandles(_ context.Context, candles []model.Candle) (int, error) {
	f.upserted = append(f.upserted, candles...)
	return len(candles), nil
}

func (f *fakeStore) FindGaps(_ context.Context, _ string, _ model.Interval, _, _ time.Time) ([]time.Time, error) {
	return f.gaps, nil
}

func dailyCandles(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{
			Instrument: "BTC",
			Interval:   model.Interval1d,
			OpenTime:   day0.AddDate(0, 0, i),
			Open:       100, High: 110, Low: 90, Close: 105, Volume: 1,
			Source: "binance",
		}
	}
	return out
}

func TestSyncPrimarySourceNotProvisional(t *testing.T) {
	store := &fakeStore{}
	primary := &fakeSource{name: "binance", candles: dailyCandles(5)}
	c, err := New(store, primary, &fakeSource{name: "okx", err: errors.New("unused")})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	n, err := c.Sync(context.Background(), "BTC", model.Interval1d)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 5 {
		t.Errorf("stored %d candles, want 5", n)
	}
	for _, cd := range store.upserted {
		if cd.Provisional {
			t.Errorf("primary-source candle at %s stored provisional", cd.OpenTime)
		}
	}
}

func TestSyncFallbackIsProvisional(t *testing.T) {
	store := &fakeStore{}
	primary := &fakeSource{name: "binance", err: errors.New("503")}
	fallback := &fakeSource{name: "okx", candles: dailyCandles(3)}
	c, _ := New(store, primary, fallback)

	failures := []string{}
	c.OnSourceFailure = func(s string) { failures = append(failures, s) }

	n, err := c.Sync(context.Background(), "BTC", model.Interval1d)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 3 {
		t.Errorf("stored %d candles, want 3", n)
	}
	for _, cd := range store.upserted {
		if !cd.Provisional {
			t.Errorf("fallback candle at %s not marked provisional", cd.OpenTime)
		}
	}
	if len(failures) != 1 || failures[0] != "binance" {
		t.Errorf("expected one binance failure hook, got %v", failures)
	}
}

func TestSyncExcludesInProgressCandle(t *testing.T) {
	// The latest REST page includes the currently-open bucket. Storing it
	// would commit a mid-period price as the final close, and committed
	// rows never get revised.
	store := &fakeStore{}
	open := dailyCandles(6) // day 5 has not closed yet
	open[5].Close = 101
	primary := &fakeSource{name: "binance", candles: open}
	c, _ := New(store, primary)
	c.now = func() time.Time { return day0.AddDate(0, 0, 5).Add(12 * time.Hour) }

	n, err := c.Sync(context.Background(), "BTC", model.Interval1d)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 5 {
		t.Errorf("stored %d candles, want 5 closed ones", n)
	}
	for _, cd := range store.upserted {
		if cd.OpenTime.Equal(day0.AddDate(0, 0, 5)) {
			t.Fatalf("in-progress candle stored with close %f", cd.Close)
		}
	}

	// After the period closes the next sync stores the true close.
	closed := dailyCandles(6)
	closed[5].Close = 150
	primary.candles = closed
	c.now = func() time.Time { return day0.AddDate(0, 0, 6).Add(time.Hour) }

	if _, err := c.Sync(context.Background(), "BTC", model.Interval1d); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	found := false
	for _, cd := range store.upserted {
		if cd.OpenTime.Equal(day0.AddDate(0, 0, 5)) {
			found = true
			if cd.Close != 150 || cd.Provisional {
				t.Errorf("closed revision stored as %+v", cd)
			}
		}
	}
	if !found {
		t.Error("closed day-5 candle never stored")
	}
}

func TestSyncAllSourcesFail(t *testing.T) {
	c, _ := New(&fakeStore{},
		&fakeSource{name: "binance", err: errors.New("timeout")},
		&fakeSource{name: "okx", err: errors.New("502")},
		&fakeSource{name: "kraken", err: errors.New("rate limit")},
	)

	_, err := c.Sync(context.Background(), "BTC", model.Interval1d)
	var all *model.AllSourcesError
	if !errors.As(err, &all) {
		t.Fatalf("expected AllSourcesError, got %v", err)
	}
	if len(all.Attempts) != 3 {
		t.Errorf("expected 3 recorded attempts, got %d", len(all.Attempts))
	}
}

func TestChunkGaps(t *testing.T) {
	step := 24 * time.Hour
	// Two contiguous runs separated by a present candle.
	gaps := []time.Time{
		day0, day0.Add(step), day0.Add(2 * step),
		day0.Add(5 * step), day0.Add(6 * step),
	}
	chunks := chunkGaps(gaps, step, 100)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !chunks[0].from.Equal(day0) || !chunks[0].to.Equal(day0.Add(3*step)) {
		t.Errorf("first chunk [%s, %s)", chunks[0].from, chunks[0].to)
	}
	if !chunks[1].from.Equal(day0.Add(5*step)) || !chunks[1].to.Equal(day0.Add(7*step)) {
		t.Errorf("second chunk [%s, %s)", chunks[1].from, chunks[1].to)
	}

	// A long contiguous run splits at the page limit.
	long := make([]time.Time, 10)
	for i := range long {
		long[i] = day0.Add(time.Duration(i) * step)
	}
	chunks = chunkGaps(long, step, 4)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 capped chunks, got %d", len(chunks))
	}
	for i, ch := range chunks[:2] {
		if got := int(ch.to.Sub(ch.from) / step); got != 4 {
			t.Errorf("chunk %d spans %d candles, want 4", i, got)
		}
	}
}

func TestBackfillFillsGapsFromFallback(t *testing.T) {
	gaps := []time.Time{day0.AddDate(0, 0, 2), day0.AddDate(0, 0, 3)}
	store := &fakeStore{gaps: gaps}
	primary := &fakeSource{name: "binance", err: errors.New("down")}
	fallback := &fakeSource{name: "okx", candles: dailyCandles(10)}
	c, _ := New(store, primary, fallback)

	n, err := c.Backfill(context.Background(), "BTC", model.Interval1d, day0, day0.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != 2 {
		t.Errorf("filled %d candles, want 2", n)
	}
	for _, cd := range store.upserted {
		if !cd.Provisional {
			t.Errorf("fallback backfill candle at %s not provisional", cd.OpenTime)
		}
	}
}

func TestBackfillEmptyResultFallsThrough(t *testing.T) {
	// A source can answer 200 with zero rows for a range it never listed.
	// That must count as a failed attempt, not a filled chunk.
	gaps := []time.Time{day0.AddDate(0, 0, 2), day0.AddDate(0, 0, 3)}
	store := &fakeStore{gaps: gaps}
	empty := &fakeSource{name: "binance"}
	fallback := &fakeSource{name: "okx", candles: dailyCandles(10)}
	c, _ := New(store, empty, fallback)

	n, err := c.Backfill(context.Background(), "BTC", model.Interval1d, day0, day0.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != 2 {
		t.Errorf("filled %d candles, want 2 from the fallback", n)
	}
	if len(empty.rangeCalls) != 1 {
		t.Errorf("empty source tried %d times, want 1", len(empty.rangeCalls))
	}
	for _, cd := range store.upserted {
		if !cd.Provisional {
			t.Errorf("fallback candle at %s not provisional", cd.OpenTime)
		}
	}
}

func TestBackfillBudgetExhaustionIsNotAnError(t *testing.T) {
	// Many isolated gaps, every source down: the retry budget runs out
	// and Backfill defers the rest without failing the job.
	var gaps []time.Time
	for i := 0; i < 20; i += 2 {
		gaps = append(gaps, day0.AddDate(0, 0, i))
	}
	store := &fakeStore{gaps: gaps}
	broken := &fakeSource{name: "binance", err: errors.New("down")}
	c, _ := New(store, broken)

	n, err := c.Backfill(context.Background(), "BTC", model.Interval1d, day0, day0.AddDate(0, 0, 20))
	if err != nil {
		t.Fatalf("budget exhaustion should not error: %v", err)
	}
	if n != 0 {
		t.Errorf("filled %d candles with all sources down", n)
	}
	if len(broken.rangeCalls) != backfillRetryBudget {
		t.Errorf("made %d attempts, want %d", len(broken.rangeCalls), backfillRetryBudget)
	}
}

func TestBackfillNoGapsNoFetch(t *testing.T) {
	primary := &fakeSource{name: "binance", candles: dailyCandles(5)}
	c, _ := New(&fakeStore{}, primary)

	n, err := c.Backfill(context.Background(), "BTC", model.Interval1d, day0, day0.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != 0 || len(primary.rangeCalls) != 0 {
		t.Errorf("expected no fetches on a gapless range, got %d calls", len(primary.rangeCalls))
	}
}

func TestParseBinanceKlines(t *testing.T) {
	body := []byte(`[
		[1704067200000,"42000.1","42500.9","41800.0","42300.5","1234.56",1704081599999,"0","0","0","0","0"],
		[1704081600000,"42300.5","42700.0","42100.0","42650.0","987.65",1704095999999,"0","0","0","0","0"]
	]`)
	candles, err := parseBinanceKlines(body, "BTC", model.Interval4h)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	first := candles[0]
	if !first.OpenTime.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("open time %s", first.OpenTime)
	}
	if first.Open != 42000.1 || first.High != 42500.9 || first.Low != 41800.0 ||
		first.Close != 42300.5 || first.Volume != 1234.56 {
		t.Errorf("parsed candle %+v", first)
	}
	if first.Source != "binance" {
		t.Errorf("source %q", first.Source)
	}
}

func TestParseOKXReversesToChronological(t *testing.T) {
	// OKX sends newest first.
	body := []byte(`{"code":"0","msg":"","data":[
		["1704153600000","42650","42900","42500","42800","500","0","0","1"],
		["1704067200000","42000","42500","41800","42650","600","0","0","1"]
	]}`)
	candles, err := parseOKXCandles(body, "BTC", model.Interval1d)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	if !candles[0].OpenTime.Before(candles[1].OpenTime) {
		t.Errorf("candles not chronological: %s then %s", candles[0].OpenTime, candles[1].OpenTime)
	}
	if candles[0].Close != 42650 {
		t.Errorf("oldest close %f", candles[0].Close)
	}

	if _, err := parseOKXCandles([]byte(`{"code":"51001","msg":"Instrument ID does not exist"}`), "BTC", model.Interval1d); err == nil {
		t.Error("expected error on non-zero api code")
	}
}

func TestParseKrakenSkipsLastCursor(t *testing.T) {
	body := []byte(`{"error":[],"result":{
		"XXBTZUSD":[
			[1704067200,"42000.0","42500.0","41800.0","42300.0","42100.0","1234.5",100],
			[1704153600,"42300.0","42700.0","42100.0","42650.0","42400.0","987.6",90]
		],
		"last":1704153600
	}}`)
	candles, err := parseKrakenOHLC(body, "BTC", model.Interval1d)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	if candles[0].Volume != 1234.5 {
		t.Errorf("volume %f, want the 7th field not vwap", candles[0].Volume)
	}

	if _, err := parseKrakenOHLC([]byte(`{"error":["EQuery:Unknown asset pair"],"result":{}}`), "BTC", model.Interval1d); err == nil {
		t.Error("expected error on api error array")
	}
}

func TestParseKlineEventOnlyClosedStored(t *testing.T) {
	ls := NewLiveStream(&fakeStore{}, []string{"BTC"}, []model.Interval{model.Interval4h})

	msg := func(closed bool) []byte {
		return []byte(fmt.Sprintf(`{"stream":"btcusdt@kline_4h","data":{"e":"kline","s":"BTCUSDT",
			"k":{"t":1704067200000,"i":"4h","o":"42000","h":"42500","l":"41800","c":"42300","v":"10.5","x":%v}}}`, closed))
	}

	candle, closed, err := ls.parseKlineEvent(msg(true))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !closed {
		t.Error("closed kline not reported closed")
	}
	if candle.Instrument != "BTC" || candle.Interval != model.Interval4h || candle.Close != 42300 {
		t.Errorf("parsed candle %+v", candle)
	}
	if candle.Provisional {
		t.Error("stream candle must not be provisional")
	}

	if _, closed, _ := ls.parseKlineEvent(msg(false)); closed {
		t.Error("open kline reported closed")
	}

	if _, _, err := ls.parseKlineEvent([]byte(`{"data":{"s":"DOGEUSDT","k":{"t":0,"i":"4h","o":"1","h":"1","l":"1","c":"1","v":"1","x":true}}}`)); err == nil {
		t.Error("expected error on unsubscribed symbol")
	}
}
