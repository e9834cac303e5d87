package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"glyphdeck/internal/types"
)

// KeyContext identifies the job and record a run belongs to. It is part of
// every cache key, so results never leak between jobs or records.
type KeyContext struct {
	JobID       string
	RecordTitle string
}

// keyParts is the composite hashed into a cache key. JSON encoding keeps
// field boundaries unambiguous.
type keyParts struct {
	JobID       string `json:"job_id"`
	RecordTitle string `json:"record_title"`
	Row         string `json:"row"`
	Item        int    `json:"item"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Validator   string `json:"validator"`
	Prompt      string `json:"prompt"`
	Content     string `json:"content"`
}

// cacheKey hashes the request identity together with a digest of the item
// text, so edited input never returns a stale result.
func cacheKey(kc KeyContext, row types.RowID, item int, provider, model, validator, prompt, text string) string {
	content := sha256.Sum256([]byte(text))
	raw, _ := json.Marshal(keyParts{
		JobID:       kc.JobID,
		RecordTitle: kc.RecordTitle,
		Row:         string(row),
		Item:        item,
		Provider:    provider,
		Model:       model,
		Validator:   validator,
		Prompt:      prompt,
		Content:     hex.EncodeToString(content[:]),
	})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
