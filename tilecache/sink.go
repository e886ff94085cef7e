package tilecache

// Sink receives fire-and-forget notifications for the embedding UI layer.
// Implementations must return quickly and must not call back into the cache
// synchronously; they are invoked from the scheduler's goroutine.
type Sink interface {
	// PreviewUpdated fires after a page's preview texture changed.
	PreviewUpdated(page int)
	// OverlayUpdated fires after a page's active overlay texture or
	// overlay rectangle changed.
	OverlayUpdated(page int)
	// RelayoutNeeded fires when the visible page set or the page geometry
	// changed and the UI should rebuild.
	RelayoutNeeded()
	// ViewError reports a failure the recovery strategy classified as
	// worth surfacing. page is 0 for document-level errors.
	ViewError(page int, err error)
}

type NopSink struct{}

func (NopSink) PreviewUpdated(int)   {}
func (NopSink) OverlayUpdated(int)   {}
func (NopSink) RelayoutNeeded()      {}
func (NopSink) ViewError(int, error) {}
