package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"glyphdeck/internal/logging"
)

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client // optional, overrides Timeout
}

// DefaultOpenAIConfig returns defaults for the public API.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Timeout: 60 * time.Second,
	}
}

// OpenAIClient calls the chat completions endpoint with a strict json_schema
// response format.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: client,
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"` // "json_schema" or "json_object"
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Name returns OpenAI.
func (c *OpenAIClient) Name() Name { return OpenAI }

// Annotate sends the request and validates the structured response.
func (c *OpenAIClient) Annotate(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, fmt.Errorf("openai: API key not configured")
	}
	return annotate(ctx, OpenAI, c, req)
}

func (c *OpenAIClient) complete(ctx context.Context, req Request, history []message) (string, Usage, error) {
	startTime := time.Now()
	logging.ProviderDebug("[OpenAI] complete: model=%s turns=%d", req.Model, len(history))

	messages := make([]openAIMessage, 0, len(history)+1)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	for _, m := range history {
		messages = append(messages, openAIMessage{Role: m.role, Content: m.content})
	}

	body := openAIRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		ResponseFormat: &openAIResponseFormat{
			Type: "json_schema",
			JSONSchema: &openAIJSONSchema{
				Name:   req.Validator.Name(),
				Strict: true,
				Schema: req.Validator.JSONSchema(),
			},
		},
	}

	status, payload, err := c.post(ctx, body)
	if err != nil {
		return "", Usage{}, err
	}

	// Some models reject json_schema; fall back once to json_object with the
	// schema carried in the system message.
	if status == http.StatusBadRequest && mentionsResponseFormat(payload) {
		logging.ProviderWarn("[OpenAI] model %s rejected json_schema, retrying with json_object", req.Model)
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
		body.Messages = withSchemaInstruction(body.Messages, req)
		status, payload, err = c.post(ctx, body)
		if err != nil {
			return "", Usage{}, err
		}
	}

	if status != http.StatusOK {
		return "", Usage{}, &Error{Provider: OpenAI, Status: status, Message: strings.TrimSpace(string(payload))}
	}

	var resp openAIResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", Usage{}, &Error{Provider: OpenAI, Status: http.StatusOK, Message: "failed to parse response", Err: err}
	}
	usage := Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	if resp.Error != nil {
		return "", usage, &Error{Provider: OpenAI, Status: http.StatusOK, Message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return "", usage, &Error{Provider: OpenAI, Status: http.StatusOK, Message: "no completion returned"}
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	logging.ProviderDebug("[OpenAI] complete: done in %v response_len=%d", time.Since(startTime), len(content))
	return content, usage, nil
}

func (c *OpenAIClient) post(ctx context.Context, body openAIRequest) (int, []byte, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, &Error{Provider: OpenAI, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &Error{Provider: OpenAI, Message: "failed to read response", Err: err}
	}
	return resp.StatusCode, payload, nil
}

func mentionsResponseFormat(payload []byte) bool {
	s := string(payload)
	return strings.Contains(s, "response_format") || strings.Contains(s, "json_schema")
}

func withSchemaInstruction(msgs []openAIMessage, req Request) []openAIMessage {
	instruction := schemaInstruction(req.Validator)
	out := make([]openAIMessage, 0, len(msgs)+1)
	if len(msgs) > 0 && msgs[0].Role == "system" {
		out = append(out, openAIMessage{Role: "system", Content: msgs[0].Content + "\n\n" + instruction})
		return append(out, msgs[1:]...)
	}
	out = append(out, openAIMessage{Role: "system", Content: instruction})
	return append(out, msgs...)
}
