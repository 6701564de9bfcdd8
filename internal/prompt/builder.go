// Package prompt renders the instruction sent to the generation service for each task kind.
package prompt

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"resumeforge/internal/errors"
	"resumeforge/internal/ingest"
	"resumeforge/internal/schema"
	"resumeforge/internal/types"
)

// Prompt is the fully rendered request for one pipeline run
type Prompt struct {
	Kind        types.TaskKind
	Instruction string
	// Attachment is set for analyze requests only
	Attachment *types.Document
	Schema     schema.Descriptor
}

// Builder renders prompts from a set of templates. Build performs no I/O and
// gives identical output for identical requests under the same templates.
type Builder struct {
	mu       sync.RWMutex
	generate *template.Template
	analyze  *template.Template
}

// NewBuilder parses the templates; empty entries fall back to DefaultTemplates.
func NewBuilder(t Templates) (*Builder, error) {
	b := &Builder{}
	if err := b.Reload(t); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload swaps in new templates. On a parse error the current templates stay active.
func (b *Builder) Reload(t Templates) error {
	t = Resolve(Templates{}, t)

	generate, err := template.New("generate").Option("missingkey=error").Parse(t.Generate)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodePromptTemplate, "invalid generate prompt template", err)
	}
	analyze, err := template.New("analyze").Option("missingkey=error").Parse(t.Analyze)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodePromptTemplate, "invalid analyze prompt template", err)
	}

	b.mu.Lock()
	b.generate, b.analyze = generate, analyze
	b.mu.Unlock()
	return nil
}

// Build renders the instruction for req and declares the schema its reply must match.
func (b *Builder) Build(req types.TaskRequest) (Prompt, error) {
	d, ok := schema.For(req.Kind)
	if !ok {
		return Prompt{}, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("unknown task kind %q", req.Kind), nil)
	}

	b.mu.RLock()
	generate, analyze := b.generate, b.analyze
	b.mu.RUnlock()

	p := Prompt{Kind: req.Kind, Schema: d}
	var err error
	switch req.Kind {
	case types.TaskGenerate:
		if req.Generate == nil {
			return Prompt{}, errors.NewValidationError(errors.ErrCodeInvalidRequest,
				"generate request has no fields", nil)
		}
		p.Instruction, err = render(generate, *req.Generate)
	case types.TaskAnalyze:
		if req.Analyze == nil || req.Analyze.Document.Data == "" {
			return Prompt{}, errors.NewValidationError(errors.ErrCodeInvalidRequest,
				"analyze request has no document", nil)
		}
		doc := req.Analyze.Document
		if !ingest.IsSupported(doc.MediaType) {
			return Prompt{}, errors.NewIngestionError(errors.ErrCodeUnsupportedMediaType,
				fmt.Sprintf("unsupported media type %q", doc.MediaType), nil)
		}
		p.Attachment = &doc
		p.Instruction, err = render(analyze, doc)
	}
	if err != nil {
		return Prompt{}, err
	}
	return p, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", errors.NewInternalError(errors.ErrCodePromptTemplate,
			fmt.Sprintf("failed to render %s prompt", tmpl.Name()), err)
	}
	return sb.String(), nil
}
