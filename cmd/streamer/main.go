package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"klinefeed/config"
	"klinefeed/internal/app"
	"klinefeed/logger"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config.yaml (default: search ., ./config, <exe>/../config)")
	symbol := pflag.StringP("symbol", "s", "", "initial symbol, overrides session.symbol")
	interval := pflag.StringP("interval", "i", "", "initial interval, overrides session.interval")
	pflag.Parse()

	// viper config
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if *symbol != "" {
		cfg.Session.Symbol = *symbol
	}
	if *interval != "" {
		cfg.Session.Interval = *interval
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting streamer",
		zap.String("symbol", cfg.Session.Symbol),
		zap.String("interval", cfg.Session.Interval),
		zap.String("store", cfg.Store.Backend),
		zap.Strings("sinks", cfg.Sink.Backends),
	)

	// parameter changes arrive on stdin as "SYMBOL [INTERVAL]"
	if err := app.Run(ctx, cfg, log, os.Stdin); err != nil {
		log.Fatal("streamer failed", zap.Error(err))
	}
	log.Info("streamer stopped")
}
