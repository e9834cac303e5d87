package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	replies []string
	err     error
	configs []*genai.GenerateContentConfig
	turns   []int
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.configs = append(f.configs, cfg)
	f.turns = append(f.turns, len(contents))
	if f.err != nil {
		return nil, f.err
	}
	text := f.replies[0]
	f.replies = f.replies[1:]
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 7, CandidatesTokenCount: 3},
	}, nil
}

func TestGemini_AnnotateWithSchema(t *testing.T) {
	fake := &fakeModels{replies: []string{`{"sentiment_score": 5}`, `{"sentiment_score": 0.75}`}}
	client := &GeminiClient{models: fake}

	resp, err := client.Annotate(context.Background(), Request{
		System: "rate it", User: "lovely", Model: "gemini-2.0-flash",
		Temperature: 0.2, Validator: sentimentValidator(t), MaxValidationRetries: 2,
	})
	require.NoError(t, err)

	v, _ := resp.Result.Get("sentiment_score")
	assert.Equal(t, 0.75, v)
	assert.Equal(t, []int{1, 3}, fake.turns)
	assert.Equal(t, Usage{InputTokens: 14, OutputTokens: 6}, resp.Usage)

	cfg := fake.configs[0]
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	assert.NotNil(t, cfg.ResponseJsonSchema)
	require.NotNil(t, cfg.SystemInstruction)
}

func TestGemini_APIErrorClassification(t *testing.T) {
	client := &GeminiClient{models: &fakeModels{err: genai.APIError{Code: 429, Message: "quota"}}}
	_, err := client.Annotate(context.Background(), Request{User: "x", Model: "m", Validator: sentimentValidator(t)})
	assert.True(t, IsTransient(err))

	client = &GeminiClient{models: &fakeModels{err: genai.APIError{Code: 400, Message: "bad"}}}
	_, err = client.Annotate(context.Background(), Request{User: "x", Model: "m", Validator: sentimentValidator(t)})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, Config{Name: OpenAI, APIKey: "k", BaseURL: "http://localhost:1"})
	require.NoError(t, err)
	assert.Equal(t, OpenAI, p.Name())

	_, err = New(ctx, Config{Name: "anthropic", APIKey: "k"})
	assert.ErrorContains(t, err, "unknown provider")

	_, err = New(ctx, Config{Name: OpenAI})
	assert.ErrorContains(t, err, "API key not configured")
}
