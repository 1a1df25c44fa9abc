package run

import (
	"context"
	"encoding/json"
)

// Executor produces an analysis result for a normalized ticker symbol.
//
// Implementations own the meaning of the result document; the
// orchestrator records it verbatim and never inspects it. The context
// carries the execution deadline - implementations MUST respect
// cancellation and return promptly with ctx.Err().
type Executor interface {
	Analyze(ctx context.Context, ticker string) (json.RawMessage, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
// Useful for tests and embedders supplying in-process analyzers.
type ExecutorFunc func(ctx context.Context, ticker string) (json.RawMessage, error)

// Analyze implements Executor by calling the function
func (f ExecutorFunc) Analyze(ctx context.Context, ticker string) (json.RawMessage, error) {
	return f(ctx, ticker)
}
