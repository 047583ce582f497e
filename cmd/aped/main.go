package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/ape/internal/app"
	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/server"
)

func main() {
	cfg := common.LoadConfig()
	logger, closeLog := common.NewLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, app.Options{RequireLLM: true})
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.DB.HealthCheck(ctx, cfg.Database.DialTimeout); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	a.Pool.Start(ctx)

	srv := server.New(server.Config{
		CORSOrigins: cfg.Server.CORSOrigins,
		Debug:       cfg.Server.Debug,
		TempDir:     cfg.Extraction.TempDir,
		Lenient:     cfg.LLM.LenientSchema,
	}, a.ServerDeps(), logger)
	httpServer := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: srv.Handler()}

	health := server.NewHealthServer()
	lis, err := net.Listen("tcp", cfg.Server.GRPCHealthAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCHealthAddr, "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ape listening", "addr", cfg.Server.HTTPAddr, "providers", a.Registry.Providers())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc health listening", "addr", cfg.Server.GRPCHealthAddr)
		return health.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		health.SetServing(false)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		a.Pool.Shutdown(shutdownCtx)
		health.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
