package completion

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/annual-report-eval/internal/resilience"
)

// Gemini completes prompts with the Gemini API.
type Gemini struct {
	client   *genai.Client
	settings Settings
}

// NewGemini creates a Gemini provider. An empty baseURL uses the public API.
func NewGemini(ctx context.Context, apiKey, baseURL string, settings Settings) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: new client")
	}
	return &Gemini{client: client, settings: settings}, nil
}

// Complete implements Provider.
func (g *Gemini) Complete(ctx context.Context, model, prompt string) (string, error) {
	gc := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(g.settings.Temperature)),
		MaxOutputTokens:  int32(g.settings.MaxTokens),
		ResponseMIMEType: "application/json",
	}
	if g.settings.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(g.settings.SystemPrompt, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), gc)
	if err != nil {
		return "", resilience.FromStatus(eris.Wrap(err, "gemini: generate content"), geminiStatus(err))
	}
	text := resp.Text()
	if text == "" {
		return "", eris.New("gemini: response has no text")
	}
	return text, nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}
