package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"adaptive-trader/internal/config"
	"adaptive-trader/internal/engine"
	"adaptive-trader/internal/exchange/bybit"
	"adaptive-trader/internal/features"
	"adaptive-trader/internal/ml"
	"adaptive-trader/internal/monitoring"
	"adaptive-trader/internal/position"
	"adaptive-trader/internal/regime"
	"adaptive-trader/internal/strategy"
)

// paperBalance is the simulated account used for sizing; scan never routes
// orders anywhere.
const paperBalance = 10000.0

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	weights := strategy.DefaultWeights()
	profiles := strategy.DefaultRiskProfiles()
	if cfg.ProfileFile != "" {
		weights, profiles, err = strategy.LoadProfiles(cfg.ProfileFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load profile file")
		}
	}

	extractor := features.NewExtractor(features.DefaultConfig())
	detectorOpts := []regime.Option{regime.WithLogger(log)}
	if cfg.ModelPath != "" {
		classifier, err := ml.LoadClassifier(cfg.ModelPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load regime model")
		}
		defer classifier.Close()
		detectorOpts = append(detectorOpts, regime.WithClassifier(classifier))
	}
	detector := regime.NewDetector(regime.DefaultConfig(), extractor, detectorOpts...)
	composite := strategy.NewComposite(strategy.DefaultRegistry(), weights, strategy.DefaultCompositeConfig(), log)

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)
	go serveMetrics(cfg.Monitoring.PrometheusPort, registry, log)

	client := bybit.NewClient(bybit.Config{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Testnet:   cfg.Exchange.Testnet,
		Category:  cfg.Exchange.Category,
	}, log)

	eng := engine.New(cfg.Trading.Symbol, cfg.Trading.Leverage, detector, composite, profiles, metrics, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("symbol", cfg.Trading.Symbol).Str("interval", cfg.Trading.Interval).Msg("scanner started")
	run(ctx, cfg, client, eng, log)

	// Flush open paper positions before reporting.
	if price, err := client.GetLatestPrice(context.Background(), cfg.Trading.Symbol); err == nil {
		eng.CloseAll(price, position.ReasonEndOfData, time.Now())
	}
	printSnapshot(eng.Snapshot())
}

func run(ctx context.Context, cfg *config.Config, client *bybit.Client, eng *engine.Engine, log zerolog.Logger) {
	ticker := time.NewTicker(pollInterval(cfg.Trading.Interval))
	defer ticker.Stop()

	for {
		scanOnce(ctx, cfg, client, eng, log)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func scanOnce(ctx context.Context, cfg *config.Config, client *bybit.Client, eng *engine.Engine, log zerolog.Logger) {
	window, err := client.GetWindow(ctx, cfg.Trading.Symbol, cfg.Trading.Interval, time.Time{}, cfg.Trading.WindowSize+1)
	if err != nil {
		// Recoverable: skip the tick, touch nothing.
		log.Warn().Err(err).Msg("window unavailable, skipping tick")
		return
	}

	tick := window[len(window)-1]
	report := eng.OnTick(window, tick.Close, paperBalance, tick.Timestamp)

	log.Info().
		Str("regime", report.Regime.String()).
		Str("action", report.Result.Action.String()).
		Float64("score", report.Result.Score).
		Float64("confidence", report.Result.Confidence).
		Float64("price", tick.Close).
		Msg("tick evaluated")
}

func printSnapshot(snap engine.Snapshot) {
	fmt.Printf("\n%s: %d closed trades, win rate %.1f%%\n", snap.Symbol, snap.Summary.TotalTrades, snap.Summary.WinRate)
	for label, n := range snap.RegimeCounts {
		fmt.Printf("  regime %-13s %d ticks\n", label.String(), n)
	}
}

func serveMetrics(port int, registry *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

// pollInterval maps a Bybit kline interval to a polling cadence. Sub-minute
// polling is pointless for the shortest supported interval.
func pollInterval(interval string) time.Duration {
	switch interval {
	case bybit.Interval1m:
		return time.Minute
	case bybit.Interval5m:
		return 5 * time.Minute
	case bybit.Interval15m:
		return 15 * time.Minute
	case bybit.Interval4h:
		return 4 * time.Hour
	case bybit.Interval1d:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}
