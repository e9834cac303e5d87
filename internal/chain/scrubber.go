package chain

import (
	"fmt"

	"glyphdeck/internal/records"
	"glyphdeck/internal/sanitiser"
)

// DefaultScrubTitle titles the sanitised record when Run is given none.
const DefaultScrubTitle = "sanitised"

// Scrubber sanitises the latest record of a Store and appends the result.
type Scrubber struct {
	store *records.Store
	*sanitiser.Sanitiser
}

// NewScrubber binds s to store. A nil s uses every built-in pattern.
func NewScrubber(store *records.Store, s *sanitiser.Sanitiser) *Scrubber {
	if s == nil {
		s = sanitiser.New()
	}
	return &Scrubber{store: store, Sanitiser: s}
}

// Run sanitises the latest record and appends it under title, inheriting
// its column names.
func (s *Scrubber) Run(title string) (*records.Record, sanitiser.Counts, error) {
	if title == "" {
		title = DefaultScrubTitle
	}
	if _, err := s.store.KeyOf(title); err == nil {
		return nil, sanitiser.Counts{}, fmt.Errorf("%w: %q", records.ErrDuplicateTitle, title)
	}
	if s.store.LatestKey() == 0 {
		return nil, sanitiser.Counts{}, fmt.Errorf("%w: store has no records", records.ErrNotFound)
	}

	clean, counts, err := s.Sanitise(s.store.LatestData())
	if err != nil {
		return nil, counts, err
	}
	rec, err := s.store.Append(title, clean, nil, false)
	if err != nil {
		return nil, counts, err
	}
	return rec, counts, nil
}
