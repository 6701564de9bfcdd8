package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"resumeforge/internal/config"
)

const shutdownTimeout = 30 * time.Second

// Start serves until ctx is cancelled or a component fails. The metrics
// server, prompt watcher and Vault key watcher run alongside when configured.
func (s *Server) Start(ctx context.Context) error {
	defer s.shutdownObservability()

	g, gCtx := errgroup.WithContext(ctx)

	httpServer := s.setupHTTPServer(gCtx)
	var metricsServer *http.Server
	if s.om != nil {
		metricsServer = s.om.PrometheusServer()
	}

	promptWatcher, err := s.newPromptWatcher()
	if err != nil {
		return err
	}
	keyWatcher, err := s.newAPIKeyWatcher()
	if err != nil {
		return err
	}
	s.keyWatcher = keyWatcher

	s.displayServerInfo()

	g.Go(func() error {
		s.Logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			s.Logger.Info("Starting metrics server", "address", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed to start: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error { return s.sessions.Run(gCtx) })
	if s.limiter != nil {
		g.Go(func() error { return s.limiter.Run(gCtx) })
	}

	if promptWatcher != nil {
		g.Go(func() error { return promptWatcher.Run(gCtx) })
	}
	if keyWatcher != nil {
		g.Go(func() error { return keyWatcher.Run(gCtx) })
	}

	g.Go(func() error {
		<-gCtx.Done()
		s.Logger.Info("Shutdown requested, starting graceful shutdown")
		return s.performGracefulShutdown(httpServer, metricsServer)
	})

	return g.Wait()
}

// setupHTTPServer creates and configures the HTTP server. Request contexts
// derive from base so open watch streams end on shutdown.
func (s *Server) setupHTTPServer(base context.Context) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(s.Host, s.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  s.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return base },
	}
}

// newPromptWatcher reloads the live templates when prompt files change
func (s *Server) newPromptWatcher() (*config.PromptWatcher, error) {
	files := s.AppConfig.PromptFilePaths()
	if !s.AppConfig.PromptFiles.Watch || len(files) == 0 || s.builder == nil {
		return nil, nil
	}

	return config.NewPromptWatcher(files, s.AppConfig.PromptFiles.DebounceDelay, s.reloadPrompts, s.Logger)
}

func (s *Server) reloadPrompts() {
	ctx := context.Background()

	templates, err := s.AppConfig.PromptTemplates()
	if err == nil {
		err = s.builder.Reload(templates)
	}
	s.metrics.RecordPromptReload(ctx, err == nil)
	if err != nil {
		s.Logger.LogError(err, "Prompt reload failed, keeping previous templates")
		return
	}
	s.Logger.Info("Prompt templates reloaded")
}

// newAPIKeyWatcher rotates the accepted API keys from Vault
func (s *Server) newAPIKeyWatcher() (*APIKeyWatcher, error) {
	vaultCfg := s.AppConfig.Vault
	if !vaultCfg.Enabled || vaultCfg.WatchInterval <= 0 || vaultCfg.Secrets.APIKeys == "" {
		return nil, nil
	}

	client, err := config.NewVaultClient(vaultCfg, s.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault client: %w", err)
	}
	return NewAPIKeyWatcher(client, vaultCfg.Secrets.APIKeys, vaultCfg.WatchInterval, s.SetAPIKeys, s.Logger), nil
}

// performGracefulShutdown handles the graceful shutdown process
func (s *Server) performGracefulShutdown(servers ...*http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var firstErr error
	for _, server := range servers {
		if server == nil {
			continue
		}
		s.Logger.Info("Shutting down server...", "address", server.Addr)
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.Logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
			if err := server.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.Logger.LogError(err, "Failed to close generation client")
		}
	}

	if firstErr == nil {
		s.Logger.Info("Server shutdown completed successfully")
	}
	return firstErr
}

// shutdownObservability handles observability cleanup
func (s *Server) shutdownObservability() {
	if s.om == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.om.Shutdown(ctx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown observability")
	}
}
