package exchange

import (
	"context"
	"time"

	"github.com/uhyunpark/simex/pkg/util"
)

// FeederConfig controls simulated order flow
type FeederConfig struct {
	Traders        int
	BatchSize      int           // orders per tick
	Interval       time.Duration // time between batches
	Symbols        []string
	StartingCash   int64
	StartingShares int64 // per symbol
	BasePrice      int64
	Spread         int64
	Seed           int64 // 0 picks a time-based seed
}

// DefaultFeederConfig returns modest load suitable for a local devnet
func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		Traders:        20,
		BatchSize:      5,
		Interval:       200 * time.Millisecond,
		Symbols:        []string{"AAPL"},
		StartingCash:   1_000_000,
		StartingShares: 1_000,
		BasePrice:      100,
		Spread:         5,
	}
}

// HighLoadFeederConfig returns config for stress testing
func HighLoadFeederConfig() FeederConfig {
	cfg := DefaultFeederConfig()
	cfg.Traders = 200
	cfg.BatchSize = 100
	cfg.Interval = 50 * time.Millisecond
	cfg.Symbols = []string{"AAPL", "MSFT", "GOOG"}
	return cfg
}

// StartFeeder registers and funds the simulated traders, then places a batch
// of random orders every interval in the background.
// Returns a cancel function to stop the feeder.
func (e *Exchange) StartFeeder(ctx context.Context, cfg FeederConfig, clock util.Clock) context.CancelFunc {
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"AAPL"}
	}
	if cfg.Traders <= 0 {
		cfg.Traders = 1
	}
	if clock == nil {
		clock = util.RealClock{}
	}

	gen := NewOrderGenerator(cfg.Traders, cfg.Symbols, cfg.BasePrice, cfg.Spread, cfg.Seed)
	for _, trader := range gen.Traders() {
		e.RegisterUser(trader)
		if _, err := e.Deposit(trader, cfg.StartingCash); err != nil {
			e.logger.Warnw("feeder_fund_failed", "trader", trader, "err", err)
		}
		for _, sym := range cfg.Symbols {
			if _, err := e.CreditAsset(trader, sym, cfg.StartingShares); err != nil {
				e.logger.Warnw("feeder_fund_failed", "trader", trader, "symbol", sym, "err", err)
			}
		}
	}

	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		startTime := clock.Now()
		lastStats := startTime
		placed, cancelled := 0, 0

		e.logger.Infow("feeder_started",
			"traders", cfg.Traders, "batch", cfg.BatchSize,
			"interval", cfg.Interval, "symbols", cfg.Symbols)

		for {
			select {
			case <-feedCtx.Done():
				e.logger.Infow("feeder_stopped",
					"placed", placed, "cancelled", cancelled,
					"elapsed", clock.Now().Sub(startTime).Round(time.Millisecond))
				return

			case <-clock.After(cfg.Interval):
				if id, ok := gen.PickCancel(e.OpenOrders()); ok {
					if e.CancelOrder(id) {
						cancelled++
					}
				}
				for _, o := range gen.GenerateBatch(cfg.BatchSize) {
					e.PlaceOrder(o)
					placed++
				}

				if now := clock.Now(); now.Sub(lastStats) >= 10*time.Second {
					lastStats = now
					e.logger.Infow("feeder_stats",
						"placed", placed, "cancelled", cancelled,
						"open_orders", len(e.OpenOrders()))
				}
			}
		}
	}()

	return cancel
}
