package common

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"resumeforge/internal/ai"
	"resumeforge/internal/errors"
	"resumeforge/internal/pipeline"
	"resumeforge/internal/prompt"
	"resumeforge/internal/types"
	"resumeforge/internal/workflow"
)

type cannedClient struct {
	text string
}

func (c cannedClient) Generate(context.Context, ai.Request) (*ai.Reply, error) {
	return &ai.Reply{Blocks: []ai.Block{{Type: ai.BlockText, Text: c.text}}}, nil
}

func (c cannedClient) Close() error { return nil }

func newTestPipeline(t *testing.T, text string) *pipeline.Pipeline {
	t.Helper()
	builder, err := prompt.NewBuilder(prompt.Templates{})
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return pipeline.New(builder, cannedClient{text: text}, errors.Discard())
}

func TestRunTaskWritesOutputAndExport(t *testing.T) {
	dir := t.TempDir()
	p := newTestPipeline(t, "```json\n{\"resumeText\":\"JANE DOE\",\"atsKeywords\":[\"Go\"],\"optimizationNotes\":\"n\"}\n```")
	ctrl := workflow.NewController(types.TaskGenerate)
	req := types.NewGenerateRequest(types.GenerateFields{FullName: "Jane  Q Doe", Email: "jane@example.com"})

	cfg := CommandConfig{
		OutputFile:   filepath.Join(dir, "out", "result.md"),
		OutputFormat: "markdown",
		ExportDir:    filepath.Join(dir, "export"),
	}

	var logged bool
	result, err := RunTask(context.Background(), errors.Discard(), cfg, p, ctrl, req,
		func(types.TaskRequest, CommandConfig) { logged = true })
	if err != nil {
		t.Fatalf("RunTask() error = %v", err)
	}
	if !logged {
		t.Error("logDetails was not called")
	}
	if result.Generate == nil || result.Generate.ResumeText != "JANE DOE" {
		t.Fatalf("unexpected result %+v", result)
	}

	out, err := os.ReadFile(cfg.OutputFile)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !strings.Contains(string(out), "# Generated Resume") {
		t.Errorf("unexpected output:\n%s", out)
	}

	exported, err := os.ReadFile(filepath.Join(cfg.ExportDir, "Jane_Q_Doe_Resume.txt"))
	if err != nil {
		t.Fatalf("export not written: %v", err)
	}
	if string(exported) != "JANE DOE" {
		t.Errorf("export = %q, want resume text only", exported)
	}
}

func TestRunTaskFailure(t *testing.T) {
	p := newTestPipeline(t, `{"overallScore": 101}`)
	ctrl := workflow.NewController(types.TaskAnalyze)
	req := types.NewAnalyzeRequest(types.Document{Name: "cv.pdf", MediaType: types.MediaTypePDF, Data: "JVBERi0="})

	_, err := RunTask(context.Background(), errors.Discard(), CommandConfig{OutputFormat: "json"}, p, ctrl, req, nil)

	var failure *TaskFailure
	if !stderrors.As(err, &failure) {
		t.Fatalf("Expected TaskFailure, got %T: %v", err, err)
	}
	if failure.Kind != errors.KindSchemaInvalid {
		t.Errorf("Expected SchemaInvalid, got %s", failure.Kind)
	}
	if ctrl.State().Phase != workflow.PhaseFailed {
		t.Errorf("Expected failed phase, got %s", ctrl.State().Phase)
	}
}

func TestRunTaskGuardRejection(t *testing.T) {
	p := newTestPipeline(t, "unused")
	ctrl := workflow.NewController(types.TaskGenerate)
	req := types.NewGenerateRequest(types.GenerateFields{FullName: "Jane Doe", Email: " "})

	_, err := RunTask(context.Background(), errors.Discard(), CommandConfig{OutputFormat: "json"}, p, ctrl, req, nil)
	if !errors.HasCode(err, errors.ErrCodeWorkflowGuard) {
		t.Fatalf("Expected guard rejection, got %v", err)
	}
	if ctrl.State().Phase != workflow.PhaseIdle {
		t.Errorf("Expected idle phase, got %s", ctrl.State().Phase)
	}
}

func TestHandleOutputStdout(t *testing.T) {
	var buf bytes.Buffer
	oh := NewOutputHandler(errors.Discard())
	oh.stdout = &buf

	result := types.ValidatedResult{Kind: types.TaskGenerate, Generate: &types.GenerateResult{ResumeText: "x", ATSKeywords: []string{}}}
	if err := oh.HandleOutput(result, CommandConfig{OutputFormat: "yaml"}); err != nil {
		t.Fatalf("HandleOutput() error = %v", err)
	}
	if !strings.Contains(buf.String(), "resumeText: x") {
		t.Errorf("unexpected yaml output:\n%s", buf.String())
	}

	err := oh.HandleOutput(result, CommandConfig{OutputFormat: "pdf"})
	if !errors.HasCode(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("Expected %s, got %v", errors.ErrCodeInvalidFormat, err)
	}
}

func TestReadTextFile(t *testing.T) {
	dir := t.TempDir()
	fp := NewFileProcessor(errors.Discard())

	path := filepath.Join(dir, "job.txt")
	if err := os.WriteFile(path, []byte("Senior Go Engineer"), 0600); err != nil {
		t.Fatal(err)
	}
	content, err := fp.ReadTextFile(path)
	if err != nil || content != "Senior Go Engineer" {
		t.Errorf("ReadTextFile() = %q, %v", content, err)
	}

	_, err = fp.ReadTextFile(filepath.Join(dir, "missing.txt"))
	if !errors.HasCode(err, errors.ErrCodeFileNotFound) {
		t.Errorf("Expected %s, got %v", errors.ErrCodeFileNotFound, err)
	}

	_, err = fp.ReadTextFile(dir)
	if !errors.HasCode(err, errors.ErrCodeFileNotReadable) {
		t.Errorf("Expected %s for a directory, got %v", errors.ErrCodeFileNotReadable, err)
	}
}
