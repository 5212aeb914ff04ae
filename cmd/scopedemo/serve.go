package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/itsneelabh/perfscope"
	"github.com/itsneelabh/perfscope/otelexport"
	"github.com/itsneelabh/perfscope/scopehttp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve HTTP requests, one scope tree per request",
	Long:  `Start an HTTP server whose requests are recorded as scope trees and exported when each request finishes.`,
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
}

func runServer(cmd *cobra.Command, _ []string) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return fmt.Errorf("failed to get addr flag: %w", err)
	}

	cfg, pipeline, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	otel.SetTracerProvider(pipeline.TracerProvider())

	server := &http.Server{
		Addr:              addr,
		Handler:           newHandler(cfg.ServiceName, pipeline),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger := perfscope.GetLogger()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", map[string]interface{}{"addr": addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = pipeline.Shutdown(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	case <-cmd.Context().Done():
	}

	logger.Info("Shutting down HTTP server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return errors.Join(server.Shutdown(shutdownCtx), pipeline.Shutdown(shutdownCtx))
}

// newHandler serves /work and /health; every /work request is exported
// once its scope ends.
func newHandler(serviceName string, pipeline *otelexport.Pipeline) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/work", handleWork)

	return scopehttp.Instrument(serviceName,
		scopehttp.WithExcludedPaths("/health"),
		scopehttp.WithFinisher(func(n *perfscope.Node, r *http.Request) {
			pipeline.Export(r.Context(), n)
		}),
	)(mux)
}

func handleWork(w http.ResponseWriter, r *http.Request) {
	if err := processItem(r.Context(), 0, 10*time.Millisecond); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("done"))
}
