package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"adaptive-trader/internal/backtest"
	"adaptive-trader/internal/features"
	"adaptive-trader/internal/ml"
	"adaptive-trader/internal/regime"
	"adaptive-trader/internal/strategy"
	"adaptive-trader/pkg/data"
	"adaptive-trader/pkg/reporting"
)

func main() {
	var (
		dataFile    = flag.String("data", "", "CSV file with historical bars (required)")
		symbol      = flag.String("symbol", "BTCUSDT", "symbol the data belongs to")
		windowSize  = flag.Int("window", 50, "trailing window length in bars")
		balance     = flag.Float64("balance", 10000, "initial balance")
		leverage    = flag.Float64("leverage", 1, "leverage for every position")
		profileFile = flag.String("profile", "", "JSON file with strategy weights and risk profiles")
		modelPath   = flag.String("model", "", "optional ONNX regime model")
		adaptive    = flag.Bool("adaptive", false, "adapt strategy weights from recent performance")
		excelOut    = flag.String("excel", "", "write an xlsx report to this path")
		logLevel    = flag.String("log-level", "info", "zerolog level")
	)
	flag.Parse()

	log := newLogger(*logLevel)

	if *dataFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	provider := data.NewCachedProvider(data.NewCSVProvider(log), data.NewTTLCache(0), log)
	bars, err := provider.LoadData(*dataFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load data")
	}
	if err := provider.ValidateData(bars); err != nil {
		log.Fatal().Err(err).Msg("data validation failed")
	}

	weights := strategy.DefaultWeights()
	profiles := strategy.DefaultRiskProfiles()
	if *profileFile != "" {
		weights, profiles, err = strategy.LoadProfiles(*profileFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load profile file")
		}
	}

	extractor := features.NewExtractor(features.DefaultConfig())
	detectorOpts := []regime.Option{regime.WithLogger(log)}
	if *modelPath != "" {
		classifier, err := ml.LoadClassifier(*modelPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load regime model")
		}
		defer classifier.Close()
		detectorOpts = append(detectorOpts, regime.WithClassifier(classifier))
	}
	detector := regime.NewDetector(regime.DefaultConfig(), extractor, detectorOpts...)

	compositeCfg := strategy.DefaultCompositeConfig()
	compositeCfg.Adaptive = *adaptive
	composite := strategy.NewComposite(strategy.DefaultRegistry(), weights, compositeCfg, log)

	sim, err := backtest.NewSimulator(backtest.Config{
		Symbol:         *symbol,
		InitialBalance: *balance,
		WindowSize:     *windowSize,
		Leverage:       *leverage,
	}, detector, composite, profiles, log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid simulator configuration")
	}

	log.Info().Str("symbol", *symbol).Int("bars", len(bars)).Msg("starting backtest")
	results, err := sim.Run(bars)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	reporting.NewConsoleReporter().OutputResults(results)

	if *excelOut != "" {
		if err := reporting.NewExcelReporter().WriteResults(results, *excelOut); err != nil {
			log.Fatal().Err(err).Msg("failed to write xlsx report")
		}
		fmt.Printf("Report written to %s\n", *excelOut)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}
