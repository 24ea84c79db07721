package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/uhyunpark/simex/params"
	"github.com/uhyunpark/simex/pkg/api"
	"github.com/uhyunpark/simex/pkg/app/exchange"
	"github.com/uhyunpark/simex/pkg/metrics"
	"github.com/uhyunpark/simex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	level, err := util.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	var logger *zap.Logger
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, level)
	} else {
		logger, err = util.NewLogger(level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", level.String())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ex := exchange.New(sugar, metrics.New(reg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Background matcher ----
	if cfg.Matcher.Interval > 0 {
		go func() {
			if err := ex.RunMatcher(ctx, cfg.Matcher.Interval, util.RealClock{}); err != nil && ctx.Err() == nil {
				sugar.Fatalw("matcher_failed", "err", err)
			}
		}()
	} else {
		sugar.Info("matcher_disabled - orders match only on placement")
	}

	// ---- API Server ----
	apiServer := api.NewServer(ex, api.Config{
		CORSOrigins:      cfg.API.CORSOrigins,
		DepositIncrement: cfg.API.DepositIncrement,
	}, reg, sugar)

	// ---- Order Feeder (optional) ----
	// Enable with: ENABLE_TXGEN=true TXGEN_MODE=default|high
	if cfg.Feeder.Enabled {
		var feedCfg exchange.FeederConfig
		switch cfg.Feeder.Mode {
		case "high":
			feedCfg = exchange.HighLoadFeederConfig()
		default:
			feedCfg = exchange.DefaultFeederConfig()
		}
		if cfg.Feeder.Traders > 0 {
			feedCfg.Traders = cfg.Feeder.Traders
		}
		if cfg.Feeder.Interval > 0 {
			feedCfg.Interval = cfg.Feeder.Interval
		}
		if len(cfg.Feeder.Symbols) > 0 {
			feedCfg.Symbols = cfg.Feeder.Symbols
		}
		sugar.Infow("txgen_enabled", "mode", cfg.Feeder.Mode, "traders", feedCfg.Traders, "symbols", feedCfg.Symbols)

		cancelFeeder := ex.StartFeeder(ctx, feedCfg, util.RealClock{})
		defer cancelFeeder()
	}

	sugar.Infow("exchange_starting",
		"api_addr", cfg.API.Addr,
		"match_interval_ms", cfg.Matcher.Interval.Milliseconds(),
		"deposit_increment", cfg.API.DepositIncrement)

	if err := apiServer.Start(ctx, cfg.API.Addr); err != nil {
		sugar.Errorw("api_server_failed", "err", err)
		return
	}

	stats := ex.Stats()
	sugar.Infow("exchange_stopped",
		"users", stats.Users,
		"open_orders", stats.OpenOrders,
		"trades", stats.Trades,
		"digest", ex.StateDigest().Hex())
}
