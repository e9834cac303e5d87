package usage

import "time"

// Data is the persisted usage document.
type Data struct {
	Version   string          `json:"version"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// Event is one validated provider response.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Record       string    `json:"record"`
	JobID        string    `json:"job_id"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
}

// AggregatedStats holds counters broken down by dimension.
type AggregatedStats struct {
	Total      TokenCounts            `json:"total"`
	Requests   int64                  `json:"requests"`
	ByProvider map[string]TokenCounts `json:"by_provider"`
	ByModel    map[string]TokenCounts `json:"by_model"`
	ByRecord   map[string]TokenCounts `json:"by_record"`
	ByJob      map[string]TokenCounts `json:"by_job"`
}

// TokenCounts holds input/output sums.
type TokenCounts struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

func (tc *TokenCounts) Add(input, output int) {
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
}
