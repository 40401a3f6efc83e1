package completion

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/resilience"
	"github.com/sells-group/annual-report-eval/pkg/anthropic"
)

// Anthropic completes prompts with the Messages API. A configured system
// prompt is sent as a cached block.
type Anthropic struct {
	client   anthropic.Client
	settings Settings
	cacheTTL string
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(client anthropic.Client, settings Settings, cacheTTL string) *Anthropic {
	return &Anthropic{client: client, settings: settings, cacheTTL: cacheTTL}
}

// Complete implements Provider.
func (a *Anthropic) Complete(ctx context.Context, model, prompt string) (string, error) {
	temp := a.settings.Temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       model,
		MaxTokens:   int64(a.settings.MaxTokens),
		System:      anthropic.BuildCachedSystemBlocks(a.settings.SystemPrompt, a.cacheTTL),
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", resilience.FromStatus(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogCost(model, "evaluate")

	text := resp.Text()
	if text == "" {
		return "", eris.Errorf("completion: anthropic returned no text (stop reason %q)", resp.StopReason)
	}
	return text, nil
}
