package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/signflow/signflow/internal/metrics"
	"github.com/signflow/signflow/internal/server"
	"github.com/signflow/signflow/internal/store"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recognition sessions over websocket",
	Long: `Serve starts the HTTP server. A websocket client connecting at / or /ws
gets a recognition session for the default language; only one session runs at
a time. Health, metrics, language and session history endpoints live under
/api and /metrics.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	emit := buildEmitter(ctx, cfg, st, logger)
	defer func() {
		if err := emit.Close(); err != nil {
			logger.Warn("emitter close", "error", err)
		}
	}()

	webDir := findWebDir(cfg)
	if webDir != "" {
		logger.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir:       webDir,
		Store:           st,
		Registry:        metrics.NewRegistry(),
		Session:         sessionOptions(cfg, emit, logger),
		DefaultLanguage: cfg.DefaultLanguage,
		Logger:          logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.Addr, "default_language", cfg.DefaultLanguage, "languages", cfg.Languages)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		srv.Sessions().Wait()
		return err
	})

	return g.Wait()
}
