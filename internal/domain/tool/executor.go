package tool

import (
	"context"
	"encoding/json"
)

// Citation is a source link surfaced next to an answer.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Result is what a tool hands back to the conversation. Text is never empty
// once it leaves the Registry.
type Result struct {
	Text      string
	Citations []Citation
}

// Executor is the runtime contract for a callable tool. Errors are turned
// into descriptive text by the Registry; executors may also return a
// non-error Result describing a soft failure.
type Executor interface {
	Execute(ctx context.Context, args json.RawMessage) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	return f(ctx, args)
}
