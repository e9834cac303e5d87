package config

import "fmt"

// Limits bounds dispatcher concurrency.
type Limits struct {
	Preprepared int `yaml:"preprepared"` // tasks built but not yet dispatched
	Awaiting    int `yaml:"awaiting"`    // requests in flight awaiting a response
}

// Validate checks that both bounds are positive.
func (l *Limits) Validate() error {
	if l.Preprepared < 1 {
		return fmt.Errorf("%w: preprepared must be >= 1, got %d", ErrInvalidConfig, l.Preprepared)
	}
	if l.Awaiting < 1 {
		return fmt.Errorf("%w: awaiting must be >= 1, got %d", ErrInvalidConfig, l.Awaiting)
	}
	return nil
}
