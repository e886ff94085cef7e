package tilecache

// Status is the per-page tile lifecycle. It progresses strictly forward
// except for the explicit reset to Initialized on eviction. Disposed is
// terminal.
type Status int

const (
	NotInitialized Status = iota
	Initializing
	Initialized
	PreviewLoading
	PreviewLoaded
	Disposed
)

func (s Status) String() string {
	switch s {
	case NotInitialized:
		return "not-initialized"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	case PreviewLoading:
		return "preview-loading"
	case PreviewLoaded:
		return "preview-loaded"
	case Disposed:
		return "disposed"
	}
	return "unknown"
}
