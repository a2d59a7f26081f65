package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dinahmaccodes/pifp-stellar/internal/api"
	"github.com/dinahmaccodes/pifp-stellar/internal/config"
	"github.com/dinahmaccodes/pifp-stellar/internal/database"
	"github.com/dinahmaccodes/pifp-stellar/internal/ingestor"
	"github.com/dinahmaccodes/pifp-stellar/internal/monitor"
	"github.com/dinahmaccodes/pifp-stellar/internal/rpc"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("pifp indexer starting",
		zap.String("network", cfg.Network),
		zap.String("contract_id", cfg.ContractID),
		zap.String("database", cfg.DatabasePath),
		zap.Int("port", cfg.Port))

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	client := rpc.NewClient(cfg.StellarRPCURL(), cfg.ContractID, cfg.FetchTimeout, logger)
	defer client.Close()

	ing := ingestor.New(cfg, db, client, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
		cancel()
	}()

	// Fatal ingestion errors (invalid cursor, cursor regression) stop the
	// whole process rather than leaving a serving API over a stalled store.
	ingDone := make(chan error, 1)
	go func() { ingDone <- ing.Run(ctx) }()

	mon := monitor.New(client, ing, cfg.PollInterval*6, logger)
	go mon.Run(ctx)

	server := api.NewServer(cfg, db, ing, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Handler(),
	}

	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-ingDone:
		if err != nil && ctx.Err() == nil {
			logger.Error("ingestor stopped", zap.Error(err))
			cancel()
			httpServer.Shutdown(context.Background())
			logger.Sync()
			os.Exit(1)
		}
	}

	logger.Info("shutting down http server")
	httpServer.Shutdown(context.Background())
	logger.Info("shutdown complete")
}
