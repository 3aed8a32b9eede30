package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CFabianPBB/budget-allocation-app/internal/api"
	"github.com/CFabianPBB/budget-allocation-app/internal/config"
	"github.com/CFabianPBB/budget-allocation-app/internal/llm"
	"github.com/CFabianPBB/budget-allocation-app/internal/logging"
	"github.com/CFabianPBB/budget-allocation-app/internal/metrics"
	"github.com/CFabianPBB/budget-allocation-app/internal/service"
	"github.com/CFabianPBB/budget-allocation-app/internal/store"
	"github.com/CFabianPBB/budget-allocation-app/internal/ws"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("port", cfg.Port), zap.Error(err))
	}

	if err := run(ctx, cfg, logger, listener); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newHandler(ctx context.Context, cfg config.Config, logger *zap.Logger, hub *ws.Hub) (http.Handler, error) {
	oracle, err := service.NewOracle(ctx, cfg.Allocation, service.Options{}, logger)
	if err != nil {
		return nil, err
	}
	results, err := store.NewResultStore(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	var usage metrics.UsageSource
	if anthropicOracle, ok := oracle.(*llm.Oracle); ok {
		usage = anthropicOracle.Usage()
	}

	return api.NewRouter(api.RouterConfig{
		Pipeline:           service.NewPipeline(oracle, cfg.Allocation, logger),
		Store:              results,
		Hub:                hub,
		Metrics:            metrics.New(usage),
		Logger:             logger.Named("http"),
		MaxUploadBytes:     cfg.MaxUploadBytes,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WSAllowedOrigins:   cfg.WSAllowedOrigins,
	}), nil
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger, listener net.Listener) error {
	hub := ws.NewHub()
	handler, err := newHandler(ctx, cfg, logger, hub)
	if err != nil {
		_ = listener.Close()
		return err
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		logger.Info("budget allocation service starting",
			zap.String("addr", listener.Addr().String()),
			zap.String("environment", cfg.Environment),
			zap.String("output_dir", cfg.OutputDir),
		)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		hub.Close()
		return err
	})

	return g.Wait()
}
