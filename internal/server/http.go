package server

import (
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"resumeforge/internal/ai"
	"resumeforge/internal/config"
	resumeforgeErrors "resumeforge/internal/errors"
	"resumeforge/internal/ingest"
	"resumeforge/internal/jobdesc"
	"resumeforge/internal/observability"
	"resumeforge/internal/pipeline"
	"resumeforge/internal/prompt"
	"resumeforge/internal/types"
)

// GenerateRequest is the body of POST /api/sessions/{id}/generate. JobURL is
// fetched into JobDescription when the latter is empty.
type GenerateRequest struct {
	types.GenerateFields
	JobURL string `json:"jobUrl,omitempty" validate:"omitempty,url,max=2048"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Code    string         `json:"code,omitempty"`
	Kind    string         `json:"kind,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// Full application configuration
	AppConfig *config.Config

	// API Authentication, replaced when Vault publishes new keys
	keysMu  sync.RWMutex
	apiKeys map[string]bool

	// Timeout configurations
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Request size limit
	MaxRequestSize int64

	// Rate limiting
	RateLimit *config.RateLimitConfig
	limiter   *ClientLimiter

	Logger *resumeforgeErrors.Logger

	builder  *prompt.Builder
	client   ai.Client
	pipeline *pipeline.Pipeline
	ingestor *ingest.Ingestor
	fetcher  *jobdesc.Fetcher
	sessions *SessionStore

	keyWatcher *APIKeyWatcher

	om      *observability.ObservabilityManager
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// ServerConfig holds configuration for creating a Server instance
type ServerConfig struct {
	Host           string
	Port           string
	Version        string
	APIKeys        []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	SessionTTL     time.Duration
	RateLimit      *config.RateLimitConfig
}

// Dependencies are the pipeline components the server drives.
// Observability may be nil.
type Dependencies struct {
	Builder       *prompt.Builder
	Client        ai.Client
	Ingestor      *ingest.Ingestor
	Fetcher       *jobdesc.Fetcher
	Observability *observability.ObservabilityManager
}

// NewServer creates a new Server instance from a ServerConfig struct
func NewServer(appCfg *config.Config, cfg ServerConfig, deps Dependencies, logger *resumeforgeErrors.Logger) *Server {
	var limiter *ClientLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		limiter = NewClientLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstCapacity, logger)
	}

	metrics := &observability.Metrics{}
	var tracer, pipelineTracer trace.Tracer = noop.NewTracerProvider().Tracer("resumeforge.api"),
		noop.NewTracerProvider().Tracer("resumeforge.pipeline")
	if deps.Observability != nil {
		metrics = deps.Observability.GetMetrics()
		tracer = deps.Observability.Tracer("resumeforge.api")
		pipelineTracer = deps.Observability.Tracer("resumeforge.pipeline")
	}

	s := &Server{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Version:        cfg.Version,
		AppConfig:      appCfg,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxRequestSize: cfg.MaxRequestSize,
		RateLimit:      cfg.RateLimit,
		limiter:        limiter,
		Logger:         logger,
		builder:        deps.Builder,
		client:         deps.Client,
		ingestor:       deps.Ingestor,
		fetcher:        deps.Fetcher,
		sessions:       NewSessionStore(cfg.SessionTTL, logger),
		om:             deps.Observability,
		metrics:        metrics,
		tracer:         tracer,
	}
	s.pipeline = pipeline.New(deps.Builder, deps.Client, logger,
		pipeline.WithMetrics(metrics),
		pipeline.WithTracer(pipelineTracer))
	s.SetAPIKeys(cfg.APIKeys)
	return s
}

// SetAPIKeys replaces the accepted API keys. An empty set disables authentication.
func (s *Server) SetAPIKeys(keys []string) {
	// Convert API keys slice to map for O(1) lookup
	apiKeyMap := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			apiKeyMap[key] = true
		}
	}

	s.keysMu.Lock()
	s.apiKeys = apiKeyMap
	s.keysMu.Unlock()
}

func (s *Server) apiKeyCount() int {
	s.keysMu.RLock()
	defer s.keysMu.RUnlock()
	return len(s.apiKeys)
}

func (s *Server) validAPIKey(key string) bool {
	s.keysMu.RLock()
	defer s.keysMu.RUnlock()
	return s.apiKeys[key]
}
