package analysis

import (
	"context"

	"github.com/rotisserie/eris"
)

// Completer is the completion capability the invoker needs.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// Invoker sends assembled prompts to a model and parses the answer.
type Invoker struct {
	client Completer
	model  string
}

// NewInvoker creates an Invoker for model on client.
func NewInvoker(client Completer, model string) *Invoker {
	return &Invoker{client: client, model: model}
}

// Model returns the configured model id.
func (i *Invoker) Model() string { return i.model }

// Invoke completes prompt. Transport failures are *CompletionError; an
// unparseable answer is *MalformedModelOutputError.
func (i *Invoker) Invoke(ctx context.Context, prompt string) (*ModelAnswer, error) {
	raw, err := i.client.Complete(ctx, i.model, prompt)
	if err != nil {
		return nil, &CompletionError{Err: eris.Wrapf(err, "analysis: complete with %s", i.model)}
	}
	return ParseAnswer(raw)
}
