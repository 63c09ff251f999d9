package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/hyperstructure/ingestor/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP/SSE ingestion and query API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.graphClient.Close(ctx)

	server := httpapi.New(
		svc.orchestrator,
		svc.graphClient,
		svc.writer,
		svc.geocoder,
		svc.qaLoop,
		cfg.HTTP.FrontendOrigin,
		cfg.Pipeline.UpstreamTimeout,
		cfg.Pipeline.SSEPollInterval,
	)

	logger.WithField("addr", cfg.HTTP.Addr).Info("hyperctl serve listening")
	if err := http.ListenAndServe(cfg.HTTP.Addr, server.Handler()); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
