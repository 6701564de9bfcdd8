// Package schema declares the expected output shape of each task kind and
// validates extracted payloads against it.
package schema

import (
	"embed"
	"fmt"

	"resumeforge/internal/types"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Descriptor declares the structured reply a task kind expects.
// Strings and Scores are required; Lists are optional and default to empty.
type Descriptor struct {
	Kind    types.TaskKind
	Title   string
	Strings []string
	Scores  []string
	Lists   []string
}

// Score bounds, inclusive
const (
	MinScore = 0
	MaxScore = 100
)

var descriptors = map[types.TaskKind]Descriptor{
	types.TaskGenerate: {
		Kind:    types.TaskGenerate,
		Title:   "GenerateResult",
		Strings: []string{"resumeText", "optimizationNotes"},
		Lists:   []string{"atsKeywords"},
	},
	types.TaskAnalyze: {
		Kind:  types.TaskAnalyze,
		Title: "AnalyzeResult",
		Scores: []string{
			"overallScore",
			"atsCompatibility",
			"contentQuality",
			"formatting",
			"keywordOptimization",
		},
		Strings: []string{"summary"},
		Lists:   []string{"strengths", "improvements", "missingKeywords"},
	},
}

// For returns the descriptor of a task kind.
func For(kind types.TaskKind) (Descriptor, bool) {
	d, ok := descriptors[kind]
	return d, ok
}

// Required lists every key whose absence is a hard failure.
func (d Descriptor) Required() []string {
	required := make([]string, 0, len(d.Scores)+len(d.Strings))
	required = append(required, d.Scores...)
	return append(required, d.Strings...)
}

// JSONSchema returns the draft-07 document the validator enforces.
func (d Descriptor) JSONSchema() (string, error) {
	data, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.json", d.Kind))
	if err != nil {
		return "", fmt.Errorf("no JSON schema for %s: %w", d.Kind, err)
	}
	return string(data), nil
}
