package recovery

import "fmt"

// StrictStrategy surfaces every failure to the UI sink.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(err error, location Location) Action {
	return ActionFail
}

// LenientStrategy accumulates errors and keeps going. Pages whose renders
// fail simply keep showing their placeholder or stale preview.
type LenientStrategy struct {
	Errors []error
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{}
}

func (s *LenientStrategy) OnError(err error, location Location) Action {
	s.Errors = append(s.Errors, fmt.Errorf("page %d %s: %w", location.Page, location.Kind, err))
	return ActionSkip
}

// RetryStrategy retries each failed operation once, then skips.
type RetryStrategy struct {
	attempted map[Location]bool
}

func NewRetryStrategy() *RetryStrategy {
	return &RetryStrategy{attempted: make(map[Location]bool)}
}

func (s *RetryStrategy) OnError(err error, location Location) Action {
	if s.attempted[location] {
		return ActionSkip
	}
	s.attempted[location] = true
	return ActionRetry
}
