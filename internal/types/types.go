package types

import "strings"

// TaskKind selects which pipeline a request runs through
type TaskKind string

const (
	TaskGenerate TaskKind = "generate"
	TaskAnalyze  TaskKind = "analyze"
)

// ParseTaskKind accepts the lowercase kind names used on the CLI and HTTP API.
func ParseTaskKind(s string) (TaskKind, bool) {
	switch TaskKind(strings.ToLower(strings.TrimSpace(s))) {
	case TaskGenerate:
		return TaskGenerate, true
	case TaskAnalyze:
		return TaskAnalyze, true
	}
	return "", false
}

// Supported document media types
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// GenerateFields represents the user-supplied content for a generated resume
type GenerateFields struct {
	FullName       string `json:"fullName" yaml:"fullName" validate:"required,max=200"`
	Email          string `json:"email" yaml:"email" validate:"required,max=320"`
	Phone          string `json:"phone,omitempty" yaml:"phone,omitempty" validate:"max=64"`
	Location       string `json:"location,omitempty" yaml:"location,omitempty" validate:"max=200"`
	Summary        string `json:"summary,omitempty" yaml:"summary,omitempty"`
	Experience     string `json:"experience,omitempty" yaml:"experience,omitempty"`
	Education      string `json:"education,omitempty" yaml:"education,omitempty"`
	Skills         string `json:"skills,omitempty" yaml:"skills,omitempty"`
	JobDescription string `json:"jobDescription,omitempty" yaml:"jobDescription,omitempty"`
}

// HasJobDescription reports whether a target job description was supplied
func (f GenerateFields) HasJobDescription() bool {
	return strings.TrimSpace(f.JobDescription) != ""
}

// Document is an ingested file ready for transport.
// Data holds the standard base64 encoding of the file bytes.
type Document struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Data      string `json:"data"`
	Size      int    `json:"size"`
	PageCount int    `json:"pageCount,omitempty"`
}

// AnalyzeFields carries the document to score
type AnalyzeFields struct {
	Document Document `json:"document"`
}

// TaskRequest is built fresh for each pipeline run and never mutated afterwards.
// Exactly one of Generate and Analyze is set, matching Kind.
type TaskRequest struct {
	Kind     TaskKind        `json:"kind"`
	Generate *GenerateFields `json:"generate,omitempty"`
	Analyze  *AnalyzeFields  `json:"analyze,omitempty"`
}

// NewGenerateRequest copies fields into a generate request
func NewGenerateRequest(fields GenerateFields) TaskRequest {
	return TaskRequest{Kind: TaskGenerate, Generate: &fields}
}

// NewAnalyzeRequest wraps an ingested document into an analyze request
func NewAnalyzeRequest(doc Document) TaskRequest {
	return TaskRequest{Kind: TaskAnalyze, Analyze: &AnalyzeFields{Document: doc}}
}

// GenerateResult represents a synthesized ATS-optimized resume
type GenerateResult struct {
	ResumeText        string   `json:"resumeText" yaml:"resumeText"`
	ATSKeywords       []string `json:"atsKeywords" yaml:"atsKeywords"`
	OptimizationNotes string   `json:"optimizationNotes" yaml:"optimizationNotes"`
}

// AnalyzeResult represents the ATS score of an uploaded resume.
// All score fields are within [0,100].
type AnalyzeResult struct {
	OverallScore        int      `json:"overallScore" yaml:"overallScore"`
	ATSCompatibility    int      `json:"atsCompatibility" yaml:"atsCompatibility"`
	ContentQuality      int      `json:"contentQuality" yaml:"contentQuality"`
	Formatting          int      `json:"formatting" yaml:"formatting"`
	KeywordOptimization int      `json:"keywordOptimization" yaml:"keywordOptimization"`
	Strengths           []string `json:"strengths" yaml:"strengths"`
	Improvements        []string `json:"improvements" yaml:"improvements"`
	MissingKeywords     []string `json:"missingKeywords" yaml:"missingKeywords"`
	Summary             string   `json:"summary" yaml:"summary"`
}

// ValidatedResult is tagged by task kind; the pointer matching Kind is set.
type ValidatedResult struct {
	Kind     TaskKind        `json:"kind" yaml:"kind"`
	Generate *GenerateResult `json:"generate,omitempty" yaml:"generate,omitempty"`
	Analyze  *AnalyzeResult  `json:"analyze,omitempty" yaml:"analyze,omitempty"`
}
