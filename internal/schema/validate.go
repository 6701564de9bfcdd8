package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"resumeforge/internal/errors"
	"resumeforge/internal/types"
)

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

var compiled = sync.OnceValues(func() (map[types.TaskKind]*gojsonschema.Schema, error) {
	out := make(map[types.TaskKind]*gojsonschema.Schema, len(descriptors))
	for kind, d := range descriptors {
		src, err := d.JSONSchema()
		if err != nil {
			return nil, err
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("invalid JSON schema for %s: %w", kind, err)
		}
		out[kind] = s
	}
	return out, nil
})

// Validate checks an extracted payload against the schema of kind and converts
// it into a typed result. Scores outside [0,100] are rejected, never clamped.
func Validate(payload map[string]any, kind types.TaskKind) (types.ValidatedResult, error) {
	d, ok := For(kind)
	if !ok {
		return types.ValidatedResult{}, errors.NewInternalError(errors.ErrCodeSchemaInvalid,
			fmt.Sprintf("unknown task kind %q", kind), nil)
	}
	if payload == nil {
		return types.ValidatedResult{}, errors.NewSchemaError(errors.ErrCodeSchemaInvalid,
			fmt.Sprintf("%s payload is empty", d.Title), nil)
	}

	schemas, err := compiled()
	if err != nil {
		return types.ValidatedResult{}, errors.NewInternalError(errors.ErrCodeSchemaInvalid,
			"failed to compile result schemas", err)
	}

	result, err := schemas[kind].Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return types.ValidatedResult{}, errors.NewSchemaError(errors.ErrCodeSchemaInvalid,
			fmt.Sprintf("%s payload could not be evaluated", d.Title), err)
	}
	if !result.Valid() {
		fieldErrs := make([]FieldError, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			fieldErrs = append(fieldErrs, FieldError{Field: re.Field(), Message: re.Description()})
		}
		return types.ValidatedResult{}, invalid(d, fieldErrs)
	}

	switch kind {
	case types.TaskGenerate:
		return toGenerate(payload)
	default:
		return toAnalyze(d, payload)
	}
}

func invalid(d Descriptor, fieldErrs []FieldError) *errors.AppError {
	sort.Slice(fieldErrs, func(i, j int) bool {
		if fieldErrs[i].Field != fieldErrs[j].Field {
			return fieldErrs[i].Field < fieldErrs[j].Field
		}
		return fieldErrs[i].Message < fieldErrs[j].Message
	})

	parts := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		parts[i] = fe.String()
	}
	return errors.NewSchemaError(errors.ErrCodeSchemaInvalid,
		fmt.Sprintf("%s does not match the expected schema: %s", d.Title, strings.Join(parts, "; ")), nil).
		WithContext("field_errors", fieldErrs)
}

func toGenerate(payload map[string]any) (types.ValidatedResult, error) {
	res := &types.GenerateResult{
		ResumeText:        stringValue(payload, "resumeText"),
		ATSKeywords:       listValue(payload, "atsKeywords"),
		OptimizationNotes: stringValue(payload, "optimizationNotes"),
	}
	return types.ValidatedResult{Kind: types.TaskGenerate, Generate: res}, nil
}

func toAnalyze(d Descriptor, payload map[string]any) (types.ValidatedResult, error) {
	scores := make(map[string]int, len(d.Scores))
	var fieldErrs []FieldError
	for _, key := range d.Scores {
		v, err := scoreValue(payload, key)
		if err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: key, Message: err.Error()})
			continue
		}
		scores[key] = v
	}
	if len(fieldErrs) > 0 {
		return types.ValidatedResult{}, invalid(d, fieldErrs)
	}

	res := &types.AnalyzeResult{
		OverallScore:        scores["overallScore"],
		ATSCompatibility:    scores["atsCompatibility"],
		ContentQuality:      scores["contentQuality"],
		Formatting:          scores["formatting"],
		KeywordOptimization: scores["keywordOptimization"],
		Strengths:           listValue(payload, "strengths"),
		Improvements:        listValue(payload, "improvements"),
		MissingKeywords:     listValue(payload, "missingKeywords"),
		Summary:             stringValue(payload, "summary"),
	}
	return types.ValidatedResult{Kind: types.TaskAnalyze, Analyze: res}, nil
}

// scoreValue re-checks what the JSON schema already enforced, so a payload
// decoded without json.Number cannot slip through as a fractional float.
func scoreValue(payload map[string]any, key string) (int, error) {
	var f float64
	switch v := payload[key].(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %s", v)
		}
		f = parsed
	case float64:
		f = v
	case int:
		f = float64(v)
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}

	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	if f < MinScore || f > MaxScore {
		return 0, fmt.Errorf("%v is outside [%d,%d]", f, MinScore, MaxScore)
	}
	return int(f), nil
}

func stringValue(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// listValue defaults a missing or null list to empty.
func listValue(payload map[string]any, key string) []string {
	raw, _ := payload[key].([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
