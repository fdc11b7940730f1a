package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAIClient reaches the model through the official google.golang.org/genai SDK.
type GenAIClient struct {
	client *genai.Client
	config *genai.GenerateContentConfig
}

// NewGenAIClient creates an SDK-backed client.
func NewGenAIClient(ctx context.Context, config Config) (*GenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" && config.BaseURL != DefaultBaseURL {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	gc := &genai.GenerateContentConfig{}
	if config.Temperature != 0 {
		gc.Temperature = genai.Ptr(float32(config.Temperature))
	}
	if config.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = int32(config.MaxOutputTokens)
	}

	return &GenAIClient{client: client, config: gc}, nil
}

// Generate implements Generator.
func (g *GenAIClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = DefaultModel
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, g.config)
	if err != nil {
		return "", mapGenAIError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			text.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}

// ListModels returns the models visible to the API key.
func (g *GenAIClient) ListModels(ctx context.Context) ([]Model, error) {
	var models []Model
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to list models: %w", mapGenAIError(err))
		}
		models = append(models, Model{
			Name:                       m.Name,
			DisplayName:                m.DisplayName,
			Description:                m.Description,
			InputTokenLimit:            int(m.InputTokenLimit),
			OutputTokenLimit:           int(m.OutputTokenLimit),
			SupportedGenerationMethods: m.SupportedActions,
		})
	}
	return models, nil
}

// mapGenAIError converts SDK API errors to *StatusError so the gateway
// classifies both transports the same way.
func mapGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &StatusError{StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return fmt.Errorf("genai request failed: %w", err)
}
