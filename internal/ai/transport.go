package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"resumeforge/internal/config"
	"resumeforge/internal/errors"
)

// executeGeneration runs one provider call with tracing, the operation
// timeout, and circuit breaker protection. Errors come back as TransportFailed.
func executeGeneration(
	ctx context.Context,
	provider string,
	cfg *config.OperationAIConfig,
	cb *CircuitBreaker,
	req Request,
	call func(ctx context.Context) (*Reply, error),
) (*Reply, error) {
	tracer := otel.Tracer("resumeforge.ai." + provider)
	ctx, span := tracer.Start(ctx, provider+"."+string(req.Kind))
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", provider),
		attribute.String("ai.model", cfg.Model),
		attribute.Int("ai.max_tokens", cfg.MaxTokens),
		attribute.Int("input.instruction_length", len(req.Instruction)),
		attribute.Bool("input.has_attachment", req.Attachment != nil),
	)
	if cfg.Temperature != nil {
		span.SetAttributes(attribute.Float64("ai.temperature", float64(*cfg.Temperature)))
	}

	if cfg.Timeout != nil && *cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *cfg.Timeout)
		defer cancel()
	}

	reply, err := cb.Execute(func() (*Reply, error) {
		return call(ctx)
	})
	if err != nil {
		err = classifyTransportError(provider, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	if reply.Usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", reply.Usage.InputTokens),
			attribute.Int64("ai.tokens.output", reply.Usage.OutputTokens),
			attribute.Int64("ai.tokens.total", reply.Usage.TotalTokens),
		)
	}
	span.SetAttributes(
		attribute.Int("output.blocks", len(reply.Blocks)),
		attribute.Bool("success", true),
	)
	return reply, nil
}

// classifyTransportError maps SDK, network, and breaker errors onto
// TransportFailed. A non-success upstream status reads "API error: <status>".
func classifyTransportError(provider string, err error) error {
	if appErr, ok := errors.As(err); ok {
		return appErr
	}

	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.NewTransportError(errors.ErrCodeCircuitOpen,
			fmt.Sprintf("%s circuit breaker is open, request not sent", provider), err)
	}

	if status, ok := upstreamStatus(err); ok {
		return errors.NewTransportError(errors.ErrCodeUpstreamStatus,
			fmt.Sprintf("API error: %d", status), err).
			WithContext("status", status).
			WithContext("retryable", isRetryableStatus(status))
	}

	var netErr net.Error
	timeout := stderrors.As(err, &netErr) && netErr.Timeout()
	if stderrors.Is(err, context.DeadlineExceeded) {
		timeout = true
	}
	return errors.NewTransportError(errors.ErrCodeTransportFailed,
		fmt.Sprintf("%s request failed", provider), err).
		WithContext("timeout", timeout)
}

// upstreamStatus extracts the HTTP status carried by a provider SDK error
func upstreamStatus(err error) (int, bool) {
	var anthropicErr *anthropic.Error
	if stderrors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode, true
	}

	var genaiErr genai.APIError
	if stderrors.As(err, &genaiErr) {
		return genaiErr.Code, true
	}
	var genaiErrPtr *genai.APIError
	if stderrors.As(err, &genaiErrPtr) && genaiErrPtr != nil {
		return genaiErrPtr.Code, true
	}

	var googleErr *googleapi.Error
	if stderrors.As(err, &googleErr) {
		return googleErr.Code, true
	}

	return 0, false
}

// isRetryableStatus reports statuses a caller may reasonably try again later
func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
