package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all custom metrics for resumeforge. A zero Metrics records nothing.
type Metrics struct {
	// Pipeline metrics
	RunDuration   metric.Float64Histogram
	RunCount      metric.Int64Counter
	StageFailures metric.Int64Counter
	TokenUsage    metric.Int64Histogram

	// Supporting components
	JobFetches    metric.Int64Counter
	PromptReloads metric.Int64Counter
	RateLimitHits metric.Int64Counter
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// NewMetrics creates every instrument on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RunDuration, err = meter.Float64Histogram(
		"resumeforge_pipeline_run_duration_seconds",
		metric.WithDescription("Time spent on a full build, send, extract and validate run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run duration metric: %w", err)
	}

	m.RunCount, err = meter.Int64Counter(
		"resumeforge_pipeline_runs_total",
		metric.WithDescription("Total number of pipeline runs by kind and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run count metric: %w", err)
	}

	m.StageFailures, err = meter.Int64Counter(
		"resumeforge_pipeline_stage_failures_total",
		metric.WithDescription("Pipeline failures by stage and error kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage failure metric: %w", err)
	}

	m.TokenUsage, err = meter.Int64Histogram(
		"resumeforge_ai_token_usage",
		metric.WithDescription("Token usage for AI requests (input, output, total)"),
		metric.WithUnit("tokens"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI token usage metric: %w", err)
	}

	m.JobFetches, err = meter.Int64Counter(
		"resumeforge_job_fetches_total",
		metric.WithDescription("Total number of job posting fetches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job fetch metric: %w", err)
	}

	m.PromptReloads, err = meter.Int64Counter(
		"resumeforge_prompt_reloads_total",
		metric.WithDescription("Total number of prompt template reloads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt reload metric: %w", err)
	}

	m.RateLimitHits, err = meter.Int64Counter(
		"resumeforge_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	return m, nil
}

// RecordRun records the outcome of one pipeline run. errorKind is empty on success.
func (m *Metrics) RecordRun(ctx context.Context, kind string, duration time.Duration, errorKind string) {
	if m == nil || m.RunCount == nil {
		return
	}

	outcome := "success"
	if errorKind != "" {
		outcome = "failed"
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
		attribute.String("error_kind", errorKind),
	)
	m.RunCount.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStageFailure counts a failure in one named pipeline stage
func (m *Metrics) RecordStageFailure(ctx context.Context, kind, stage, errorKind string) {
	if m == nil || m.StageFailures == nil {
		return
	}
	m.StageFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("stage", stage),
		attribute.String("error_kind", errorKind),
	))
}

// RecordTokenUsage records input, output and total tokens for one generation call
func (m *Metrics) RecordTokenUsage(ctx context.Context, kind string, usage *TokenUsage) {
	if m == nil || m.TokenUsage == nil || usage == nil {
		return
	}

	tokenTypes := []struct {
		tokenType string
		value     int64
	}{
		{"input", usage.InputTokens},
		{"output", usage.OutputTokens},
		{"total", usage.TotalTokens},
	}
	for _, tt := range tokenTypes {
		m.TokenUsage.Record(ctx, tt.value, metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("token_type", tt.tokenType),
		))
	}
}

// RecordJobFetch counts a job posting fetch
func (m *Metrics) RecordJobFetch(ctx context.Context, success bool) {
	if m == nil || m.JobFetches == nil {
		return
	}
	m.JobFetches.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordPromptReload counts a prompt template reload attempt
func (m *Metrics) RecordPromptReload(ctx context.Context, success bool) {
	if m == nil || m.PromptReloads == nil {
		return
	}
	m.PromptReloads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordRateLimitHit counts a rejected request
func (m *Metrics) RecordRateLimitHit(ctx context.Context, attributes ...attribute.KeyValue) {
	if m == nil || m.RateLimitHits == nil {
		return
	}
	m.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attributes...))
}
