package pipeline

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/dvloznov/receipt-tracker/internal/logger"
)

// ReceiptAnalyzer sends one receipt image to a vision model and returns its raw text answer.
// An empty answer is not an error; the normalizer turns it into defaults.
type ReceiptAnalyzer interface {
	Analyze(ctx context.Context, prompt string, mimeType string, image []byte) (string, error)
}

// GeminiAnalyzer is the ReceiptAnalyzer backed by the Gemini API.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

// NewGeminiAnalyzer creates a Gemini client for the given API key and model.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewGeminiAnalyzer: api key is required")
	}
	if model == "" {
		model = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiAnalyzer: create genai client: %w", err)
	}

	return &GeminiAnalyzer{client: client, model: model}, nil
}

// Analyze implements ReceiptAnalyzer.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, prompt, mimeType string, image []byte) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(DefaultTemperature),
		MaxOutputTokens: DefaultMaxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("GeminiAnalyzer.Analyze: generate content: %w", err)
	}

	if usage := resp.UsageMetadata; usage != nil {
		log := logger.FromContext(ctx)
		log.Debug().
			Str("model", a.model).
			Int32("tokens_input", usage.PromptTokenCount).
			Int32("tokens_output", usage.CandidatesTokenCount).
			Msg("Receipt analyzed")
	}

	return resp.Text(), nil
}
