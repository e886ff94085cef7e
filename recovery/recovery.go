// Package recovery defines the policy consulted when an asynchronous render
// or page-open operation fails. Failures are never fatal to the viewer; the
// strategy only decides whether the failed work is skipped, retried on the
// next pass, or surfaced to the embedding UI.
package recovery

type Strategy interface {
	OnError(err error, location Location) Action
}

// Location identifies the operation that failed.
type Location struct {
	Page int
	Kind Kind
}

type Kind int

const (
	KindPageOpen Kind = iota
	KindPreview
	KindOverlay
)

func (k Kind) String() string {
	switch k {
	case KindPageOpen:
		return "page-open"
	case KindPreview:
		return "preview"
	case KindOverlay:
		return "overlay"
	}
	return "unknown"
}

type Action int

const (
	// ActionSkip leaves the page's state untouched; the next
	// viewport-change-triggered pass may try again naturally.
	ActionSkip Action = iota
	// ActionRetry re-enqueues the failed request once on the next pass.
	ActionRetry
	// ActionFail reports the error to the UI sink.
	ActionFail
)
