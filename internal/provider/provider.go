// Package provider sends structured annotation requests to an LLM provider and
// validates the responses against a schema, re-prompting on invalid output.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"glyphdeck/internal/logging"
	"glyphdeck/internal/schema"
)

// Name identifies a provider.
type Name string

const (
	OpenAI Name = "openai"
	Gemini Name = "gemini"
)

// Request is one structured annotation call.
type Request struct {
	System               string
	User                 string
	Model                string
	Temperature          float64
	Validator            schema.Validator
	MaxValidationRetries int
}

// Usage counts tokens across every validation attempt of a request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a validated result.
type Response struct {
	Result   schema.Result
	Usage    Usage
	Attempts int // completions issued, including validation re-prompts
}

// Provider is the collaborator the dispatcher calls for each item.
type Provider interface {
	Name() Name
	Annotate(ctx context.Context, req Request) (Response, error)
}

// Error is a classified provider failure.
type Error struct {
	Provider Name
	Status   int // HTTP status, 0 for transport failures
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: API request failed with status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the failure is a timeout, conflict, unprocessable
// entity, rate limit, server error or connection failure.
func (e *Error) Transient() bool {
	switch {
	case e.Status == 0:
		return e.Err != nil && !errors.Is(e.Err, context.Canceled)
	case e.Status == http.StatusRequestTimeout,
		e.Status == http.StatusConflict,
		e.Status == http.StatusUnprocessableEntity,
		e.Status == http.StatusTooManyRequests,
		e.Status >= 500:
		return true
	}
	return false
}

// IsTransient reports whether err carries a transient provider error.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Transient()
}

// ValidationError is returned once every validation attempt has failed.
type ValidationError struct {
	Attempts int
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("structured output invalid after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Transient is false: validation exhaustion is fatal.
func (e *ValidationError) Transient() bool { return false }

// message is one turn of a conversation.
type message struct {
	role    string // system, user, assistant
	content string
}

// completer issues a single completion for a conversation.
type completer interface {
	complete(ctx context.Context, req Request, history []message) (string, Usage, error)
}

// annotate runs the validation loop shared by every provider.
func annotate(ctx context.Context, name Name, c completer, req Request) (Response, error) {
	if req.Validator == nil {
		return Response{}, fmt.Errorf("%s: validator required", name)
	}

	history := []message{{role: "user", content: req.User}}
	var resp Response
	var lastErr error

	for attempt := 0; attempt <= req.MaxValidationRetries; attempt++ {
		text, usage, err := c.complete(ctx, req, history)
		resp.Attempts++
		resp.Usage.InputTokens += usage.InputTokens
		resp.Usage.OutputTokens += usage.OutputTokens
		if err != nil {
			return resp, err
		}

		result, verr := parseAndValidate(text, req.Validator)
		if verr == nil {
			resp.Result = result
			logging.Provider("[%s] %s answered in %d attempt(s)", name, req.Model, resp.Attempts)
			return resp, nil
		}
		lastErr = verr
		logging.ProviderWarn("[%s] validation attempt %d/%d failed: %v", name, attempt+1, req.MaxValidationRetries+1, verr)

		history = append(history,
			message{role: "assistant", content: text},
			message{role: "user", content: repairPrompt(verr)},
		)
	}

	return resp, &ValidationError{Attempts: resp.Attempts, Err: lastErr}
}

func parseAndValidate(text string, v schema.Validator) (schema.Result, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	return v.Validate(raw)
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func repairPrompt(err error) string {
	return "Your previous response failed validation: " + err.Error() +
		"\nRespond again with only a JSON object that satisfies the schema."
}

// schemaInstruction is appended to the system message when the provider
// cannot enforce the schema itself.
func schemaInstruction(v schema.Validator) string {
	data, _ := json.Marshal(v.JSONSchema())
	return "Respond only with a JSON object matching this JSON schema:\n" + string(data)
}
