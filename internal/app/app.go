// Package app wires the configured store, sinks and feed into a session
// controller and drives it from a line-oriented parameter source.
package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"klinefeed/config"
	"klinefeed/internal/session"
	"klinefeed/internal/snapshot"
	"klinefeed/pkg/binance"

	"go.uber.org/zap"
)

const stopTimeout = 5 * time.Second

// Request is one parameter change read from the input.
type Request struct {
	Symbol   string
	Interval string // empty keeps the current interval
}

// ParseRequest reads "SYMBOL [INTERVAL]". ok is false for blank lines and comments.
func ParseRequest(line string) (Request, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Request{}, false
	}
	fields := strings.Fields(line)
	req := Request{Symbol: fields[0]}
	if len(fields) > 1 {
		req.Interval = fields[1]
	}
	return req, true
}

// Run activates the configured subscription and then one subscription per
// input line until ctx is done.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger, input io.Reader) error {
	res := &resources{}
	defer res.Close(logger)

	store, err := res.openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	sink, err := res.buildSink(ctx, cfg, logger)
	if err != nil {
		return err
	}

	loader := &snapshot.HistoryLoader{
		Store:   store,
		Limit:   cfg.Session.MaxBars,
		Timeout: cfg.Store.Timeout,
		Logger:  logger,
	}
	if cfg.Binance.REST.Backfill {
		loader.Fetcher = binance.NewRESTClient(cfg.Binance.REST.BaseURL, cfg.Binance.WS.Quote, cfg.Binance.REST.Timeout)
	}

	wsOpts := binance.WSOptions{
		URL:              cfg.Binance.WS.URL,
		Quote:            cfg.Binance.WS.Quote,
		HandshakeTimeout: cfg.Binance.WS.HandshakeTimeout,
		ReadTimeout:      cfg.Binance.WS.ReadTimeout,
	}
	dial := func(sub binance.Subscription, gen uint64) session.Connection {
		return binance.NewWSClient(wsOpts, sub, gen, logger)
	}

	ctrl := session.NewController(dial, loader, store, sink, session.Options{
		MaxBars:      cfg.Session.MaxBars,
		CloseTimeout: cfg.Session.CloseTimeout,
		SaveTimeout:  cfg.Store.Timeout,
	}, logger)

	return drive(ctx, ctrl, cfg.Session, logger, readRequests(input, logger))
}

// drive runs the parameter loop: activations, optional retry after a
// failure, and the periodic stats log.
func drive(ctx context.Context, ctrl *session.Controller, cfg config.SessionConfig, logger *zap.Logger, requests <-chan Request) error {
	interval := cfg.Interval

	var retryC <-chan time.Time
	activate := func(symbol, iv string) {
		err := ctrl.Activate(ctx, symbol, iv)
		if err == nil {
			interval = iv
			retryC = nil
			return
		}
		logger.Error("failed to activate subscription", zap.String("symbol", symbol), zap.String("interval", iv), zap.Error(err))
		if errors.Is(err, session.ErrHandshake) && cfg.RetryDelay > 0 {
			interval = iv
			retryC = time.After(cfg.RetryDelay)
		}
	}

	activate(cfg.Symbol, cfg.Interval)

	var statsC <-chan time.Time
	if cfg.StatsEvery > 0 {
		ticker := time.NewTicker(cfg.StatsEvery)
		defer ticker.Stop()
		statsC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			ctrl.Stop(stopCtx)
			cancel()
			logStats(logger, ctrl)
			return nil

		case req, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			iv := req.Interval
			if iv == "" {
				iv = interval
			}
			activate(req.Symbol, iv)

		case term := <-ctrl.Terminations():
			logger.Warn("stream terminated",
				zap.Stringer("subscription", term.Subscription),
				zap.Stringer("reason", term.Closed.Reason),
				zap.Error(term.Closed.Err),
			)
			if cfg.RetryDelay > 0 {
				retryC = time.After(cfg.RetryDelay)
			}

		case <-retryC:
			retryC = nil
			if sub, ok := ctrl.Subscription(); ok {
				logger.Info("retrying subscription", zap.Stringer("subscription", sub))
				activate(sub.Symbol, string(sub.Interval))
			}

		case <-statsC:
			logStats(logger, ctrl)
		}
	}
}

func logStats(logger *zap.Logger, ctrl *session.Controller) {
	s := ctrl.Stats()
	logger.Info("session stats",
		zap.Uint64("generation", ctrl.Generation()),
		zap.Int("bars", len(ctrl.Bars())),
		zap.Uint64("applied", s.Applied),
		zap.Uint64("ignored", s.Ignored),
		zap.Uint64("rejected", s.Rejected),
		zap.Uint64("malformed", s.Malformed),
		zap.Uint64("stale", s.Stale),
		zap.Uint64("persist_failures", s.PersistFailures),
	)
}

// readRequests forwards parsed input lines until EOF.
func readRequests(input io.Reader, logger *zap.Logger) <-chan Request {
	ch := make(chan Request)
	if input == nil {
		close(ch)
		return ch
	}
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			if req, ok := ParseRequest(scanner.Text()); ok {
				ch <- req
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("failed to read parameter input", zap.Error(err))
		}
	}()
	return ch
}
