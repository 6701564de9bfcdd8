// Package pipeline turns a task request into a validated result: the prompt is
// built, sent to the generation service, and the reply is extracted and
// checked against the schema of its task kind.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resumeforge/internal/ai"
	"resumeforge/internal/errors"
	"resumeforge/internal/extract"
	"resumeforge/internal/observability"
	"resumeforge/internal/prompt"
	"resumeforge/internal/schema"
	"resumeforge/internal/types"
	"resumeforge/internal/workflow"
)

// Stage names used in logs, spans and the stage failure metric
const (
	StageBuild    = "build"
	StageSend     = "send"
	StageExtract  = "extract"
	StageValidate = "validate"
)

// Pipeline runs requests through one prompt builder and one generation client
type Pipeline struct {
	builder *prompt.Builder
	client  ai.Client
	logger  *errors.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithMetrics records run, stage failure and token metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer overrides the global tracer
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// New creates a pipeline
func New(builder *prompt.Builder, client ai.Client, logger *errors.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		builder: builder,
		client:  client,
		logger:  logger,
		tracer:  otel.Tracer("resumeforge.pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every stage for req. Each stage failure is returned as an
// AppError whose kind names the stage family; nothing is retried.
func (p *Pipeline) Run(ctx context.Context, req types.TaskRequest) (types.ValidatedResult, error) {
	runID := uuid.NewString()
	log := p.logger.With("run_id", runID, "kind", req.Kind)
	kind := string(req.Kind)

	ctx, span := p.tracer.Start(ctx, "pipeline."+kind)
	defer span.End()
	span.SetAttributes(
		attribute.String("pipeline.run_id", runID),
		attribute.String("pipeline.kind", kind),
	)

	start := time.Now()
	result, stage, err := p.run(ctx, log, req)
	duration := time.Since(start)

	if err != nil {
		errKind := string(errors.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String("pipeline.failed_stage", stage),
			attribute.String("pipeline.error_kind", errKind),
		)
		p.metrics.RecordStageFailure(ctx, kind, stage, errKind)
		p.metrics.RecordRun(ctx, kind, duration, errKind)
		log.LogError(err, "Pipeline run failed", "stage", stage, "duration", duration)
		return types.ValidatedResult{}, err
	}

	p.metrics.RecordRun(ctx, kind, duration, "")
	log.Debug("Pipeline run succeeded", "duration", duration)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, log *errors.Logger, req types.TaskRequest) (types.ValidatedResult, string, error) {
	log.Debug("Building prompt", "stage", StageBuild)
	built, err := p.builder.Build(req)
	if err != nil {
		return types.ValidatedResult{}, StageBuild, err
	}

	log.Debug("Sending request", "stage", StageSend,
		"instruction_length", len(built.Instruction),
		"has_attachment", built.Attachment != nil)
	reply, err := p.client.Generate(ctx, ai.Request{
		Kind:        built.Kind,
		Instruction: built.Instruction,
		Attachment:  built.Attachment,
	})
	if err != nil {
		return types.ValidatedResult{}, StageSend, err
	}
	if reply.Usage != nil {
		p.metrics.RecordTokenUsage(ctx, string(req.Kind), &observability.TokenUsage{
			InputTokens:  reply.Usage.InputTokens,
			OutputTokens: reply.Usage.OutputTokens,
			TotalTokens:  reply.Usage.TotalTokens,
		})
	}

	log.Debug("Extracting payload", "stage", StageExtract,
		"model", reply.Model,
		"stop_reason", reply.StopReason,
		"blocks", len(reply.Blocks))
	text, err := ai.FirstText(reply)
	if err != nil {
		return types.ValidatedResult{}, StageExtract, err
	}
	payload, err := extract.Extract(text)
	if err != nil {
		return types.ValidatedResult{}, StageExtract, err
	}

	log.Debug("Validating payload", "stage", StageValidate, "keys", len(payload))
	result, err := schema.Validate(payload, built.Schema.Kind)
	if err != nil {
		return types.ValidatedResult{}, StageValidate, err
	}
	return result, "", nil
}

// Execute starts ctrl, runs req to completion and records the outcome on ctrl.
// The returned error is only the start rejection; a run failure is reported
// through the returned state.
func (p *Pipeline) Execute(ctx context.Context, ctrl *workflow.Controller, req types.TaskRequest) (workflow.State, error) {
	run, err := ctrl.Start(req)
	if err != nil {
		return ctrl.State(), err
	}
	p.finish(ctx, ctrl, run, req)
	return ctrl.State(), nil
}

// Launch starts ctrl synchronously and finishes the run in the background.
// The run outlives ctx cancellation; only ctx values are kept.
func (p *Pipeline) Launch(ctx context.Context, ctrl *workflow.Controller, req types.TaskRequest) (workflow.State, error) {
	run, err := ctrl.Start(req)
	if err != nil {
		return ctrl.State(), err
	}
	state := ctrl.State()
	go p.finish(context.WithoutCancel(ctx), ctrl, run, req)
	return state, nil
}

func (p *Pipeline) finish(ctx context.Context, ctrl *workflow.Controller, run uint64, req types.TaskRequest) {
	result, err := p.Run(ctx, req)
	if err != nil {
		ctrl.Fail(run, err)
		return
	}
	ctrl.Complete(run, result)
}
