package domains

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpr "github.com/chromedp/cdproto/runtime"
)

// Runtime exposes the CDP Runtime domain actions.
type Runtime interface {
	Enable(context.Context) error
	Evaluate(ctx context.Context, expression string) (json.RawMessage, error)
}

// EvaluationError is a JavaScript exception thrown by an evaluated
// expression.
type EvaluationError struct {
	Text        string
	Description string
}

func (e *EvaluationError) Error() string {
	if e.Description == "" {
		return e.Text
	}
	return e.Text + ": " + e.Description
}

var _ Runtime = &runtime{}

type runtime struct {
	exec cdp.Executor
}

// NewRuntime returns a new CDP Runtime domain wrapper.
func NewRuntime(exec cdp.Executor) Runtime {
	return &runtime{exec}
}

func (r *runtime) Enable(ctx context.Context) error {
	action := cdpr.Enable()
	if err := action.Do(cdp.WithExecutor(ctx, r.exec)); err != nil {
		return fmt.Errorf("enabling runtime CDP domain: %w", err)
	}

	return nil
}

// Evaluate runs expression in the page's main world, awaits it if it is a
// promise, and returns its JSON value.
func (r *runtime) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	action := cdpr.Evaluate(expression).
		WithReturnByValue(true).
		WithAwaitPromise(true).
		WithUserGesture(true)

	res, exc, err := action.Do(cdp.WithExecutor(ctx, r.exec))
	if err != nil {
		return nil, fmt.Errorf("evaluating expression: %w", err)
	}
	if exc != nil {
		evalErr := &EvaluationError{Text: exc.Text}
		if exc.Exception != nil {
			evalErr.Description = exc.Exception.Description
		}
		return nil, evalErr
	}
	if res == nil || len(res.Value) == 0 {
		return json.RawMessage("null"), nil
	}

	return json.RawMessage(res.Value), nil
}
