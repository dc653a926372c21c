// cmd/backtest replays stored daily candles through the accumulation
// strategies and prints a side-by-side comparison.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=BTC --years=2 --amount=100 --cadence=7
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crypto-analyzer/internal/backtest"
	"crypto-analyzer/internal/model"
	sqlitestore "crypto-analyzer/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	dbPath := flag.String("db", "data/candles.db", "Path to SQLite database")
	symbol := flag.String("symbol", "BTC", "Instrument symbol")
	years := flag.Int("years", 2, "Lookback in years")
	amount := flag.Float64("amount", 100, "Base buy amount per cadence")
	cadence := flag.Int("cadence", 7, "Daily candles between buys")
	flag.Parse()

	if *years <= 0 || *amount <= 0 || *cadence <= 0 {
		log.Fatal("[backtest] years, amount, and cadence must be positive")
	}

	store, err := sqlitestore.Open(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	now := time.Now().UTC()
	from := now.AddDate(-*years, 0, 0)
	candles, err := store.ReadRange(ctx, *symbol, model.Interval1d, from, now)
	if err != nil {
		log.Fatalf("[backtest] read candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("[backtest] no daily candles stored for %s; run analyticsd first", *symbol)
	}

	results, err := backtest.Compare(*symbol, candles, *amount, *cadence, nil)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	fmt.Printf("\n%s: %d daily candles, %s to %s\n\n",
		*symbol, len(candles),
		candles[0].OpenTime.Format("2006-01-02"),
		candles[len(candles)-1].OpenTime.Format("2006-01-02"))

	header := fmt.Sprintf("%-12s %10s %12s %5s %8s %8s %8s %7s %7s %7s",
		"strategy", "invested", "final", "buys", "roi%", "annual%", "maxdd%", "sharpe", "sortino", "var95")
	fmt.Println(header)
	fmt.Println(strings.Repeat("-", len(header)))
	for _, r := range results {
		fmt.Printf("%-12s %10.2f %12.2f %5d %8.2f %8.2f %8.2f %7.2f %7.2f %7.2f\n",
			r.Strategy, r.Invested, r.FinalValue, r.Buys,
			r.ROI, r.AnnualizedROI, r.MaxDrawdown, r.Sharpe, r.Sortino, r.VaR95)
	}
	fmt.Println()
}
