// Package ai sends rendered prompts to a generation service and returns the
// structured reply. Each call is a single attempt; failures surface as
// TransportFailed errors and are never retried here.
package ai

import (
	"context"

	"resumeforge/internal/errors"
	"resumeforge/internal/types"
)

// Client performs generation calls for one or more task kinds
type Client interface {
	Generate(ctx context.Context, req Request) (*Reply, error)
	Close() error
}

// HealthReporter is implemented by clients that can report upstream readiness
type HealthReporter interface {
	ModelInfo(ctx context.Context) *ModelInfo
	Stats() map[string]any
}

// Request is one generation call. Attachment is sent alongside the
// instruction when set.
type Request struct {
	Kind        types.TaskKind
	Instruction string
	Attachment  *types.Document
}

// Block types found in replies
const (
	BlockText  = "text"
	BlockOther = "other"
)

// Block is one content block of a reply
type Block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Reply is the full structured response of a generation call
type Reply struct {
	Blocks     []Block     `json:"blocks"`
	Model      string      `json:"model,omitempty"`
	StopReason string      `json:"stopReason,omitempty"`
	Usage      *TokenUsage `json:"usage,omitempty"`
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Provider    string `json:"provider"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}

// FirstText returns the text of the first text block. A reply without one
// is an extraction failure: the call itself succeeded.
func FirstText(reply *Reply) (string, error) {
	if reply != nil {
		for _, b := range reply.Blocks {
			if b.Type == BlockText {
				return b.Text, nil
			}
		}
	}
	return "", errors.NewExtractionError(errors.ErrCodeNoTextBlock,
		"reply contains no text block", "", nil)
}
