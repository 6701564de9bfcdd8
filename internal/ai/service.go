package ai

import (
	"context"
	"fmt"

	"resumeforge/internal/config"
	"resumeforge/internal/errors"
	"resumeforge/internal/types"
)

// NewClient creates the provider configured for one task kind
func NewClient(ctx context.Context, cfg *config.OperationAIConfig, kind types.TaskKind, logger *errors.Logger) (Client, error) {
	logger.Debug("Initializing AI client",
		"provider", cfg.Provider,
		"kind", kind,
		"model", cfg.Model,
		"max_tokens", cfg.MaxTokens,
		"timeout", cfg.Timeout)

	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg, string(kind), logger)
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, cfg, string(kind), logger)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", cfg.Provider), nil)
	}
}

// Router dispatches each request to the client configured for its kind
type Router struct {
	clients map[types.TaskKind]Client
}

var _ Client = (*Router)(nil)

// NewRouter builds one client per task kind from cfg
func NewRouter(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*Router, error) {
	clients := make(map[types.TaskKind]Client, 2)
	for _, kind := range []types.TaskKind{types.TaskGenerate, types.TaskAnalyze} {
		opCfg := cfg.OperationConfig(kind)
		client, err := NewClient(ctx, &opCfg, kind, logger)
		if err != nil {
			return nil, err
		}
		clients[kind] = client
	}
	return &Router{clients: clients}, nil
}

// NewRouterFrom wraps already constructed clients
func NewRouterFrom(clients map[types.TaskKind]Client) *Router {
	return &Router{clients: clients}
}

// Generate implements Client
func (r *Router) Generate(ctx context.Context, req Request) (*Reply, error) {
	client, ok := r.clients[req.Kind]
	if !ok {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("no client configured for task kind %q", req.Kind), nil)
	}
	return client.Generate(ctx, req)
}

// Health reports model availability and breaker state per kind
func (r *Router) Health(ctx context.Context) map[types.TaskKind]map[string]any {
	health := make(map[types.TaskKind]map[string]any, len(r.clients))
	for kind, client := range r.clients {
		reporter, ok := client.(HealthReporter)
		if !ok {
			continue
		}
		health[kind] = map[string]any{
			"model":          reporter.ModelInfo(ctx),
			"circuitBreaker": reporter.Stats(),
		}
	}
	return health
}

// Stats reports breaker state per kind without contacting upstream
func (r *Router) Stats() map[types.TaskKind]map[string]any {
	stats := make(map[types.TaskKind]map[string]any, len(r.clients))
	for kind, client := range r.clients {
		if reporter, ok := client.(HealthReporter); ok {
			stats[kind] = reporter.Stats()
		}
	}
	return stats
}

// Close closes every client
func (r *Router) Close() error {
	var firstErr error
	for _, client := range r.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
