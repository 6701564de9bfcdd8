package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"resumeforge/internal/ai"
	"resumeforge/internal/ingest"
	"resumeforge/internal/jobdesc"
	"resumeforge/internal/observability"
	"resumeforge/internal/prompt"
	"resumeforge/internal/server"
)

// multipartOverhead is added to the upload limit for form boundaries and headers
const multipartOverhead = 64 << 10

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for resume generation and analysis",
	Long: `Start an HTTP server exposing the generate and analyze workflows.

Each client creates a session; every session holds one independent workflow
per task kind that can be started, polled and watched.

Available endpoints:
- POST /api/sessions: Create a session
- GET  /api/sessions/{id}: Session state
- POST /api/sessions/{id}/generate: Start resume generation (JSON body)
- POST /api/sessions/{id}/analyze: Start resume analysis (multipart 'file')
- GET  /api/sessions/{id}/{kind}: Task state
- GET  /api/sessions/{id}/{kind}/watch: Task state stream (websocket)
- GET  /api/sessions/{id}/generate/export: Plain-text resume download
- GET  /health: Health check endpoint
- GET  /stats: Server statistics and rate limiting info`,
	RunE: runServe,
}

var (
	serveHost string
	servePort string
)

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	if err := cfg.RequireAPIKeys(); err != nil {
		return err
	}

	om, err := observability.NewObservabilityManager(observability.GetObservabilityConfig(cfg, Version))
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}

	templates, err := cfg.PromptTemplates()
	if err != nil {
		return err
	}
	builder, err := prompt.NewBuilder(templates)
	if err != nil {
		return err
	}

	router, err := ai.NewRouter(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI clients: %w", err)
	}

	serverCfg := server.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Version:        Version,
		APIKeys:        cfg.Server.APIKeys,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxRequestSize: cfg.App.MaxFileSize + multipartOverhead,
		SessionTTL:     cfg.Server.SessionTTL,
		RateLimit:      &cfg.Server.RateLimit,
	}
	deps := server.Dependencies{
		Builder:       builder,
		Client:        router,
		Ingestor:      ingest.New(cfg.App.MaxFileSize, logger),
		Fetcher:       jobdesc.New(cfg.JobFetch, logger, jobdesc.WithMetrics(om.GetMetrics())),
		Observability: om,
	}
	return server.NewServer(cfg, serverCfg, deps, logger).Start(ctx)
}
