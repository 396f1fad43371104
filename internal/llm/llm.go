// Package llm provides the model-completion interface used by planners and
// the Anthropic-backed implementation of it.
package llm

import "context"

// Request is one completion request.
type Request struct {
	// System is the system prompt.
	System string
	// Prompt is the user-turn content.
	Prompt string
	// MaxTokens caps the completion length. Zero means the client default.
	MaxTokens int64
}

// Generator produces a single text completion for a request. Planning code
// depends on this interface so tests can substitute scripted outputs.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Embedder produces a vector embedding for a piece of text. Semantic recall
// engines plug in behind this contract; none ships with the module.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
