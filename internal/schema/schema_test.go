package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	v, err := Lookup("category_hierarchy_sentiment")
	require.NoError(t, err)

	var names []string
	for _, f := range v.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"primary_category", "sub_categories", "sentiment_score"}, names)

	_, err = Lookup("nope")
	assert.True(t, errors.Is(err, ErrUnknownValidator))
	assert.Len(t, Names(), 11)
}

func TestValidate_NormalisesJSONDecodedValues(t *testing.T) {
	v, err := Lookup("sub_categories_per_item_overall_sentiment")
	require.NoError(t, err)

	var raw map[string]any
	body := `{"sub_categories":["price","staff"],"per_sub_category_sentiment_scores":[-0.5,0.75],"sentiment_score":0.1}`
	require.NoError(t, json.Unmarshal([]byte(body), &raw))

	got, err := v.Validate(raw)
	require.NoError(t, err)

	want := Result{
		{Field: "sub_categories", Value: []string{"price", "staff"}},
		{Field: "per_sub_category_sentiment_scores", Value: []float64{-0.5, 0.75}},
		{Field: "sentiment_score", Value: 0.1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		validator string
		raw       map[string]any
		problem   string
	}{
		{"sentiment", map[string]any{"sentiment_score": 1.5}, "outside [-1, 1]"},
		{"sentiment", map[string]any{"sentiment_score": 0.123}, "more than 2 decimal places"},
		{"sentiment", map[string]any{"sentiment_score": "high"}, "want number"},
		{"sentiment", map[string]any{}, `missing field "sentiment_score"`},
		{"sentiment", map[string]any{"sentiment_score": 0.5, "extra": 1}, `unexpected field "extra"`},
		{"top_categories", map[string]any{"top_categories": []any{"a", "b", "c", "d", "e", "f"}}, "at most 5 items"},
		{"sub_categories", map[string]any{"sub_categories": []any{}}, "at least 1 items"},
		{"primary_category", map[string]any{"primary_category": 3.0}, "want string"},
		{"sub_categories_per_item_sentiment", map[string]any{
			"sub_categories":                    []any{"a", "b"},
			"per_sub_category_sentiment_scores": []any{0.5},
		}, "has 1 items but sub_categories has 2"},
	}
	for _, tt := range tests {
		t.Run(tt.validator+"/"+tt.problem, func(t *testing.T) {
			v, err := Lookup(tt.validator)
			require.NoError(t, err)

			_, err = v.Validate(tt.raw)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Error(), tt.problem)
		})
	}
}

func TestSentimentAcceptsWholeNumbers(t *testing.T) {
	v, _ := Lookup("sentiment")
	for _, score := range []any{-1.0, 0.0, 1, int64(0)} {
		_, err := v.Validate(map[string]any{"sentiment_score": score})
		assert.NoError(t, err, "score %v", score)
	}
}

func TestJSONSchemaIsStrict(t *testing.T) {
	v, _ := Lookup("primary_category_sentiment")
	s := v.JSONSchema()

	assert.Equal(t, "object", s["type"])
	assert.Equal(t, false, s["additionalProperties"])
	assert.Equal(t, []string{"primary_category", "sentiment_score"}, s["required"])

	props := s["properties"].(map[string]any)
	assert.Equal(t, "number", props["sentiment_score"].(map[string]any)["type"])
}

func TestResultHelpers(t *testing.T) {
	r := Result{{Field: "a", Value: "x"}, {Field: "b", Value: 0.5}}
	v, ok := r.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 0.5, v)
	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, map[string]any{"a": "x", "b": 0.5}, r.Map())
}
