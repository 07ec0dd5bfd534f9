package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/xraph/iap/api"
	"github.com/xraph/iap/observability"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Listen address")
}

var serveCmd = &cobra.Command{
	Use:   "serve SCENARIO.toml",
	Short: "Serve the HTTP API over a simulated marketplace",
	Long: `Initialize the orchestrator from a scenario and serve the purchase API.
Scripted steps answer purchases made over HTTP. Metrics are exposed on /metrics.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc, err := loadScenario(args[0])
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	logger := newLogger(cmd)
	s, err := newSession(ctx, sc, logger, metrics)
	if err != nil {
		return err
	}
	defer s.o.Stop() //nolint:errcheck // memory store

	server := api.NewServer(s.o)
	server.EnableMetrics(reg)

	addr, _ := cmd.Flags().GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("iapsim: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
