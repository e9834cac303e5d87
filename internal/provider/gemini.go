package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"glyphdeck/internal/logging"
)

// geminiModels is the slice of *genai.Models the client uses.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient calls Gemini through the genai SDK with a response JSON schema.
type GeminiClient struct {
	models  geminiModels
	timeout time.Duration
}

// NewGeminiClient creates a client for the Gemini API.
func NewGeminiClient(ctx context.Context, apiKey string, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key not configured")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{models: client.Models, timeout: timeout}, nil
}

// Name returns Gemini.
func (c *GeminiClient) Name() Name { return Gemini }

// Annotate sends the request and validates the structured response.
func (c *GeminiClient) Annotate(ctx context.Context, req Request) (Response, error) {
	return annotate(ctx, Gemini, c, req)
}

func (c *GeminiClient) complete(ctx context.Context, req Request, history []message) (string, Usage, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.content, role))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(float32(req.Temperature)),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: req.Validator.JSONSchema(),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logging.ProviderDebug("[Gemini] complete: model=%s turns=%d", req.Model, len(contents))
	resp, err := c.models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return "", Usage{}, classifyGenAI(err)
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", usage, &Error{Provider: Gemini, Status: 200, Message: "no completion returned"}
	}
	return text, usage, nil
}

func classifyGenAI(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Provider: Gemini, Status: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	return &Error{Provider: Gemini, Message: "request failed", Err: err}
}
