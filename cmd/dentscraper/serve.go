package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bradykim7/dentscraper/internal/api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (default HTTP_ADDR)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.ValidateServe(); err != nil {
		return err
	}

	addr := a.cfg.HTTPAddr
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		addr = v
	}

	handler := api.NewHandler(a.crawler, a.prefs, a.defaultPref, a.cfg.StaticToken, a.log)
	// Responses for POST /api/scrape are written after the run finishes
	writeTimeout := a.crawler.MaxRunDuration(a.crawler.MaxPageLimit()) + time.Minute
	srv := api.NewServer(addr, handler, writeTimeout, a.log)
	a.log.Debug("HTTP write timeout", zap.Duration("write_timeout", srv.WriteTimeout()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.log.Info("Received shutdown signal, gracefully shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("Server shutdown failed", zap.Error(err))
		return err
	}
	return <-errCh
}
