package completion

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sells-group/annual-report-eval/internal/resilience"
)

// OpenAI completes prompts with the chat completions API.
type OpenAI struct {
	client   *openai.Client
	settings Settings
}

// NewOpenAI creates an OpenAI provider. An empty baseURL uses the public API.
func NewOpenAI(apiKey, baseURL string, settings Settings) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), settings: settings}
}

// reasoningModel reports whether model takes max_completion_tokens and
// rejects a temperature.
func reasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// Complete implements Provider.
func (o *OpenAI) Complete(ctx context.Context, model, prompt string) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if o.settings.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.settings.SystemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if reasoningModel(model) {
		req.MaxCompletionTokens = o.settings.MaxTokens
	} else {
		req.MaxTokens = o.settings.MaxTokens
		req.Temperature = float32(o.settings.Temperature)
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", resilience.FromStatus(eris.Wrap(err, "openai: create chat completion"), openAIStatus(err))
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("openai: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
