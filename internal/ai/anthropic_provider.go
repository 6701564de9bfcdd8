package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"resumeforge/internal/config"
	"resumeforge/internal/errors"
	"resumeforge/internal/ingest"
	"resumeforge/internal/types"
)

// AnthropicProvider implements Client with the Anthropic Messages API
type AnthropicProvider struct {
	client         anthropic.Client
	config         *config.OperationAIConfig
	circuitBreaker *CircuitBreaker
	logger         *errors.Logger
}

var (
	_ Client         = (*AnthropicProvider)(nil)
	_ HealthReporter = (*AnthropicProvider)(nil)
)

// NewAnthropicProvider creates a provider for one task kind. opts are appended
// to the defaults, which disable the SDK's own retries.
func NewAnthropicProvider(cfg *config.OperationAIConfig, operation string, logger *errors.Logger, opts ...option.RequestOption) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewConfigError(errors.ErrCodeMissingAPIKey,
			"Anthropic API key is not configured", nil)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	clientOpts = append(clientOpts, opts...)

	return &AnthropicProvider{
		client:         anthropic.NewClient(clientOpts...),
		config:         cfg,
		circuitBreaker: NewCircuitBreaker(operation, cfg.CircuitBreaker, logger),
		logger:         logger,
	}, nil
}

// Generate sends the instruction, preceded by the attachment when present
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Reply, error) {
	blocks, err := anthropicContent(req)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(p.config.MaxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if p.config.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*p.config.Temperature))
	}

	p.logger.Debug("Sending generation request",
		"provider", config.ProviderAnthropic,
		"kind", req.Kind,
		"model", p.config.Model,
		"max_tokens", p.config.MaxTokens)

	return executeGeneration(ctx, config.ProviderAnthropic, p.config, p.circuitBreaker, req,
		func(ctx context.Context) (*Reply, error) {
			msg, err := p.client.Messages.New(ctx, params)
			if err != nil {
				return nil, err
			}
			return anthropicReply(msg), nil
		})
}

// anthropicContent builds the user turn. PDFs travel as base64 documents;
// the API takes no Word documents, so a DOCX is reduced to its text first.
func anthropicContent(req Request) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	if doc := req.Attachment; doc != nil {
		switch doc.MediaType {
		case types.MediaTypePDF:
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: doc.Data}))
		case types.MediaTypeDOCX:
			text, err := ingest.ExtractText(*doc)
			if err != nil {
				return nil, err
			}
			block := anthropic.NewDocumentBlock(anthropic.PlainTextSourceParam{Data: text})
			if doc.Name != "" {
				block.OfDocument.Title = anthropic.String(doc.Name)
			}
			blocks = append(blocks, block)
		default:
			return nil, errors.NewIngestionError(errors.ErrCodeUnsupportedMediaType,
				fmt.Sprintf("unsupported media type %q", doc.MediaType), nil)
		}
	}
	return append(blocks, anthropic.NewTextBlock(req.Instruction)), nil
}

func anthropicReply(msg *anthropic.Message) *Reply {
	reply := &Reply{
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: &TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
			TotalTokens:  msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
	}
	for _, c := range msg.Content {
		if c.Type == BlockText {
			reply.Blocks = append(reply.Blocks, Block{Type: BlockText, Text: c.Text})
			continue
		}
		reply.Blocks = append(reply.Blocks, Block{Type: BlockOther})
	}
	return reply
}

// ModelInfo checks the readiness and availability of the configured model
func (p *AnthropicProvider) ModelInfo(ctx context.Context) *ModelInfo {
	info := &ModelInfo{Provider: config.ProviderAnthropic, Name: p.config.Model}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	model, err := p.client.Models.Get(checkCtx, p.config.Model, anthropic.ModelGetParams{})
	if err != nil {
		info.Error = fmt.Sprintf("Failed to get model info: %v", err)
		p.logger.Warn("Model availability check failed",
			"model", p.config.Model,
			"provider", config.ProviderAnthropic,
			"error", err.Error())
		return info
	}

	info.Available = true
	info.DisplayName = model.DisplayName
	return info
}

// Stats returns circuit breaker statistics
func (p *AnthropicProvider) Stats() map[string]any {
	return p.circuitBreaker.Stats()
}

// Close releases provider resources
func (p *AnthropicProvider) Close() error {
	return nil
}
