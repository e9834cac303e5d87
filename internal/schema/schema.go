// Package schema defines the structured-output contracts used to shape
// annotation requests and validate provider responses.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrUnknownValidator is returned by Lookup for names outside the catalogue.
var ErrUnknownValidator = errors.New("unknown validator")

// Kind is the JSON shape of a field.
type Kind int

const (
	KindString Kind = iota
	KindSentiment
	KindStringList
	KindSentimentList
)

// Field describes one output field.
type Field struct {
	Name        string
	Kind        Kind
	Description string
	MinItems    int    // list kinds only
	MaxItems    int    // list kinds only, 0 means unbounded
	PairedWith  string // list kinds: must match the length of this field
}

// Pair is one named value of a result.
type Pair struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Result is a validated response with fields in declaration order.
// Values are normalised: string, float64, []string or []float64.
type Result []Pair

// Get returns the value of a field.
func (r Result) Get(name string) (any, bool) {
	for _, p := range r {
		if p.Field == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Map converts the result into a plain field map.
func (r Result) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, p := range r {
		m[p.Field] = p.Value
	}
	return m
}

// Validator shapes a request and checks its response.
type Validator interface {
	Name() string
	Description() string
	Fields() []Field
	JSONSchema() map[string]any
	Validate(raw map[string]any) (Result, error)
}

// ValidationError lists every problem found in one response.
type ValidationError struct {
	Validator string
	Problems  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid response: %s", e.Validator, strings.Join(e.Problems, "; "))
}

// Model is a catalogue validator built from a field list.
type Model struct {
	name        string
	description string
	fields      []Field
}

// NewModel creates a validator from ordered fields.
func NewModel(name, description string, fields ...Field) *Model {
	return &Model{name: name, description: description, fields: fields}
}

func (m *Model) Name() string        { return m.name }
func (m *Model) Description() string { return m.description }

// Fields returns a copy of the field list.
func (m *Model) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// JSONSchema builds a strict object schema: every field required, no extras.
func (m *Model) JSONSchema() map[string]any {
	props := make(map[string]any, len(m.fields))
	required := make([]string, 0, len(m.fields))
	for _, f := range m.fields {
		props[f.Name] = fieldSchema(f)
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldSchema(f Field) map[string]any {
	switch f.Kind {
	case KindSentiment:
		return map[string]any{"type": "number", "description": f.Description}
	case KindStringList, KindSentimentList:
		itemType := "string"
		if f.Kind == KindSentimentList {
			itemType = "number"
		}
		return map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": itemType},
			"description": f.Description,
		}
	default:
		return map[string]any{"type": "string", "description": f.Description}
	}
}

// Validate checks raw against the field list and normalises its values.
func (m *Model) Validate(raw map[string]any) (Result, error) {
	var problems []string
	out := make(Result, 0, len(m.fields))

	for _, f := range m.fields {
		v, ok := raw[f.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing field %q", f.Name))
			continue
		}
		norm, err := normalise(f, v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		out = append(out, Pair{Field: f.Name, Value: norm})
	}

	var extras []string
	for k := range raw {
		if !m.hasField(k) {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		problems = append(problems, fmt.Sprintf("unexpected field %q", k))
	}

	if len(problems) == 0 {
		problems = append(problems, m.checkPairs(out)...)
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Validator: m.name, Problems: problems}
	}
	return out, nil
}

func (m *Model) hasField(name string) bool {
	for _, f := range m.fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func (m *Model) checkPairs(r Result) []string {
	var problems []string
	for _, f := range m.fields {
		if f.PairedWith == "" {
			continue
		}
		a, _ := r.Get(f.Name)
		b, _ := r.Get(f.PairedWith)
		if listLen(a) != listLen(b) {
			problems = append(problems, fmt.Sprintf("%s has %d items but %s has %d",
				f.Name, listLen(a), f.PairedWith, listLen(b)))
		}
	}
	return problems
}

func listLen(v any) int {
	switch x := v.(type) {
	case []string:
		return len(x)
	case []float64:
		return len(x)
	}
	return 0
}

func normalise(f Field, v any) (any, error) {
	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		return s, nil
	case KindSentiment:
		return sentiment(v)
	case KindStringList:
		items, err := asList(v)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: want string, got %T", i, item)
			}
			out[i] = s
		}
		return out, checkItems(f, len(out))
	case KindSentimentList:
		items, err := asList(v)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(items))
		for i, item := range items {
			s, err := sentiment(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = s
		}
		return out, checkItems(f, len(out))
	}
	return nil, fmt.Errorf("unsupported kind %d", f.Kind)
}

func asList(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("want list, got %T", v)
}

func checkItems(f Field, n int) error {
	if n < f.MinItems {
		return fmt.Errorf("need at least %d items, got %d", f.MinItems, n)
	}
	if f.MaxItems > 0 && n > f.MaxItems {
		return fmt.Errorf("allows at most %d items, got %d", f.MaxItems, n)
	}
	return nil
}

// sentiment accepts a number in [-1, 1] with at most two decimal places.
func sentiment(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("want number, got %T", v)
	}
	if f < -1 || f > 1 {
		return 0, fmt.Errorf("sentiment %v outside [-1, 1]", f)
	}
	if math.Abs(math.Round(f*100)/100-f) > 1e-9 {
		return 0, fmt.Errorf("sentiment %v has more than 2 decimal places", f)
	}
	return f, nil
}
