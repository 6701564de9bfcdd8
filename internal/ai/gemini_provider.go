package ai

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"resumeforge/internal/config"
	"resumeforge/internal/errors"
	"resumeforge/internal/ingest"
	"resumeforge/internal/types"
)

// GeminiProvider implements Client for Google Gemini
type GeminiProvider struct {
	client         *genai.Client
	config         *config.OperationAIConfig
	circuitBreaker *CircuitBreaker
	logger         *errors.Logger
}

var (
	_ Client         = (*GeminiProvider)(nil)
	_ HealthReporter = (*GeminiProvider)(nil)
)

// NewGeminiProvider creates a new Gemini provider instance for one task kind
func NewGeminiProvider(ctx context.Context, cfg *config.OperationAIConfig, operation string, logger *errors.Logger, httpOptions ...genai.HTTPOptions) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewConfigError(errors.ErrCodeMissingAPIKey,
			"Gemini API key is not configured", nil)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if len(httpOptions) > 0 {
		clientConfig.HTTPOptions = httpOptions[0]
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			"Failed to create Gemini client", err)
	}

	return &GeminiProvider{
		client:         client,
		config:         cfg,
		circuitBreaker: NewCircuitBreaker(operation, cfg.CircuitBreaker, logger),
		logger:         logger,
	}, nil
}

// Generate sends the attachment, when present, followed by the instruction
func (g *GeminiProvider) Generate(ctx context.Context, req Request) (*Reply, error) {
	parts, err := geminiParts(req)
	if err != nil {
		return nil, err
	}

	genConfig := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(g.config.MaxTokens),
	}
	if g.config.Temperature != nil {
		genConfig.Temperature = genai.Ptr(*g.config.Temperature)
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	g.logger.Debug("Sending generation request",
		"provider", config.ProviderGemini,
		"kind", req.Kind,
		"model", g.config.Model,
		"max_tokens", g.config.MaxTokens)

	return executeGeneration(ctx, config.ProviderGemini, g.config, g.circuitBreaker, req,
		func(ctx context.Context) (*Reply, error) {
			resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, genConfig)
			if err != nil {
				return nil, err
			}
			return geminiReply(resp), nil
		})
}

func geminiParts(req Request) ([]*genai.Part, error) {
	var parts []*genai.Part
	if doc := req.Attachment; doc != nil {
		switch doc.MediaType {
		case types.MediaTypePDF:
			data, err := ingest.Decode(*doc)
			if err != nil {
				return nil, err
			}
			parts = append(parts, genai.NewPartFromBytes(data, doc.MediaType))
		case types.MediaTypeDOCX:
			text, err := ingest.ExtractText(*doc)
			if err != nil {
				return nil, err
			}
			parts = append(parts, genai.NewPartFromText(text))
		default:
			return nil, errors.NewIngestionError(errors.ErrCodeUnsupportedMediaType,
				fmt.Sprintf("unsupported media type %q", doc.MediaType), nil)
		}
	}
	return append(parts, genai.NewPartFromText(req.Instruction)), nil
}

// geminiReply converts the first candidate into a Reply
func geminiReply(resp *genai.GenerateContentResponse) *Reply {
	reply := &Reply{Model: resp.ModelVersion, Usage: extractTokenUsage(resp)}
	if len(resp.Candidates) == 0 {
		return reply
	}

	candidate := resp.Candidates[0]
	reply.StopReason = string(candidate.FinishReason)
	if candidate.Content == nil {
		return reply
	}
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			reply.Blocks = append(reply.Blocks, Block{Type: BlockText, Text: part.Text})
			continue
		}
		reply.Blocks = append(reply.Blocks, Block{Type: BlockOther})
	}
	return reply
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}

// ModelInfo checks the readiness and availability of the configured model
func (g *GeminiProvider) ModelInfo(ctx context.Context) *ModelInfo {
	info := &ModelInfo{Provider: config.ProviderGemini, Name: g.config.Model}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	model, err := g.client.Models.Get(checkCtx, g.config.Model, &genai.GetModelConfig{})
	if err != nil {
		info.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"model", g.config.Model,
			"provider", config.ProviderGemini,
			"error", err.Error())
		return info
	}

	info.Available = true
	info.DisplayName = model.DisplayName
	info.Version = model.Version
	return info
}

// Stats returns circuit breaker statistics
func (g *GeminiProvider) Stats() map[string]any {
	return g.circuitBreaker.Stats()
}

// Close releases provider resources
func (g *GeminiProvider) Close() error {
	return nil
}
