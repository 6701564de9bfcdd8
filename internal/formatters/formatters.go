package formatters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"resumeforge/internal/types"
)

// Supported output formats
const (
	FormatJSON     = "json"
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatYAML     = "yaml"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter(FormatJSON, "any", &JSONFormatter{})
	registry.RegisterFormatter(FormatYAML, "any", &YAMLFormatter{})
	registry.RegisterFormatter(FormatText, "GenerateResult", &GenerateTextFormatter{})
	registry.RegisterFormatter(FormatMarkdown, "GenerateResult", &GenerateMarkdownFormatter{})
	registry.RegisterFormatter(FormatText, "AnalyzeResult", &AnalyzeTextFormatter{})
	registry.RegisterFormatter(FormatMarkdown, "AnalyzeResult", &AnalyzeMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter. A ValidatedResult is
// unwrapped to the result of its kind for the text and markdown formats.
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(unwrap(data))
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats in sorted order
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

func getDataType(data any) string {
	switch v := data.(type) {
	case types.GenerateResult, *types.GenerateResult:
		return "GenerateResult"
	case types.AnalyzeResult, *types.AnalyzeResult:
		return "AnalyzeResult"
	case types.ValidatedResult:
		return resultType(v)
	case *types.ValidatedResult:
		if v != nil {
			return resultType(*v)
		}
	}
	return "any"
}

func resultType(r types.ValidatedResult) string {
	switch {
	case r.Kind == types.TaskGenerate && r.Generate != nil:
		return "GenerateResult"
	case r.Kind == types.TaskAnalyze && r.Analyze != nil:
		return "AnalyzeResult"
	}
	return "any"
}

func unwrap(data any) any {
	switch v := data.(type) {
	case *types.GenerateResult:
		return *v
	case *types.AnalyzeResult:
		return *v
	case *types.ValidatedResult:
		return unwrap(*v)
	case types.ValidatedResult:
		if v.Generate != nil {
			return *v.Generate
		}
		if v.Analyze != nil {
			return *v.Analyze
		}
	}
	return data
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// YAMLFormatter handles YAML formatting for any data type
type YAMLFormatter struct{}

func (yf *YAMLFormatter) Format(data any) (string, error) {
	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (yf *YAMLFormatter) SupportedType() string {
	return "any"
}

// GenerateTextFormatter handles text formatting for generated resumes
type GenerateTextFormatter struct{}

func (gtf *GenerateTextFormatter) Format(data any) (string, error) {
	result, ok := data.(types.GenerateResult)
	if !ok {
		return "", fmt.Errorf("expected GenerateResult, got %T", data)
	}

	var output strings.Builder

	output.WriteString("=== GENERATED RESUME ===\n\n")
	output.WriteString(result.ResumeText)
	output.WriteString("\n\n")

	output.WriteString("=== ATS KEYWORDS ===\n")
	if len(result.ATSKeywords) == 0 {
		output.WriteString("(none)\n")
	} else {
		output.WriteString(strings.Join(result.ATSKeywords, ", "))
		output.WriteString("\n")
	}
	output.WriteString("\n")

	output.WriteString("=== OPTIMIZATION NOTES ===\n")
	output.WriteString(result.OptimizationNotes)
	output.WriteString("\n")

	return output.String(), nil
}

func (gtf *GenerateTextFormatter) SupportedType() string {
	return "GenerateResult"
}

// GenerateMarkdownFormatter handles markdown formatting for generated resumes
type GenerateMarkdownFormatter struct{}

func (gmf *GenerateMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(types.GenerateResult)
	if !ok {
		return "", fmt.Errorf("expected GenerateResult, got %T", data)
	}

	var output strings.Builder

	output.WriteString("# Generated Resume\n\n")
	output.WriteString("```\n")
	output.WriteString(result.ResumeText)
	output.WriteString("\n```\n\n")

	output.WriteString("## ATS Keywords\n\n")
	writeMarkdownList(&output, result.ATSKeywords, func(s string) string { return "`" + s + "`" })

	output.WriteString("## Optimization Notes\n\n")
	output.WriteString(result.OptimizationNotes)
	output.WriteString("\n")

	return output.String(), nil
}

func (gmf *GenerateMarkdownFormatter) SupportedType() string {
	return "GenerateResult"
}

// AnalyzeTextFormatter handles text formatting for resume scores
type AnalyzeTextFormatter struct{}

func (atf *AnalyzeTextFormatter) Format(data any) (string, error) {
	result, ok := data.(types.AnalyzeResult)
	if !ok {
		return "", fmt.Errorf("expected AnalyzeResult, got %T", data)
	}

	var output strings.Builder

	output.WriteString("=== ATS SCORE ===\n")
	fmt.Fprintf(&output, "Overall: %d/100\n\n", result.OverallScore)
	for _, s := range scoreRows(result) {
		fmt.Fprintf(&output, "%-22s %3d/100\n", s.label+":", s.value)
	}
	output.WriteString("\n")

	output.WriteString("=== SUMMARY ===\n")
	output.WriteString(result.Summary)
	output.WriteString("\n\n")

	writeTextSection(&output, "STRENGTHS", result.Strengths)
	writeTextSection(&output, "IMPROVEMENTS", result.Improvements)
	writeTextSection(&output, "MISSING KEYWORDS", result.MissingKeywords)

	return strings.TrimRight(output.String(), "\n") + "\n", nil
}

func (atf *AnalyzeTextFormatter) SupportedType() string {
	return "AnalyzeResult"
}

// AnalyzeMarkdownFormatter handles markdown formatting for resume scores
type AnalyzeMarkdownFormatter struct{}

func (amf *AnalyzeMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(types.AnalyzeResult)
	if !ok {
		return "", fmt.Errorf("expected AnalyzeResult, got %T", data)
	}

	var output strings.Builder

	output.WriteString("# ATS Score\n\n")
	fmt.Fprintf(&output, "**Overall Score: %d/100**\n\n", result.OverallScore)

	output.WriteString("| Category | Score |\n")
	output.WriteString("|----------|-------|\n")
	for _, s := range scoreRows(result) {
		fmt.Fprintf(&output, "| %s | %d |\n", s.label, s.value)
	}
	output.WriteString("\n")

	output.WriteString("## Summary\n\n")
	output.WriteString(result.Summary)
	output.WriteString("\n\n")

	output.WriteString("## Strengths\n\n")
	writeMarkdownList(&output, result.Strengths, nil)
	output.WriteString("## Improvements\n\n")
	writeMarkdownList(&output, result.Improvements, nil)
	output.WriteString("## Missing Keywords\n\n")
	writeMarkdownList(&output, result.MissingKeywords, func(s string) string { return "`" + s + "`" })

	return strings.TrimRight(output.String(), "\n") + "\n", nil
}

func (amf *AnalyzeMarkdownFormatter) SupportedType() string {
	return "AnalyzeResult"
}

type scoreRow struct {
	label string
	value int
}

func scoreRows(r types.AnalyzeResult) []scoreRow {
	return []scoreRow{
		{"ATS Compatibility", r.ATSCompatibility},
		{"Content Quality", r.ContentQuality},
		{"Formatting", r.Formatting},
		{"Keyword Optimization", r.KeywordOptimization},
	}
}

func writeTextSection(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "=== %s ===\n", title)
	if len(items) == 0 {
		b.WriteString("(none)\n\n")
		return
	}
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeMarkdownList(b *strings.Builder, items []string, decorate func(string) string) {
	if len(items) == 0 {
		b.WriteString("_None_\n\n")
		return
	}
	for _, item := range items {
		if decorate != nil {
			item = decorate(item)
		}
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// GlobalRegistry is the registry shared by the CLI and the HTTP API
var GlobalRegistry = NewFormatterRegistry()
