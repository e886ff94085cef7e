package tilecache

import "time"

// Config carries the tunable constants of the cache. The distance thresholds
// came out of profiling long-document scrolling and are not derived from
// anything; treat them as starting points.
type Config struct {
	// PrefetchMargin inflates the exposed rectangle by this many screen
	// pixels when deciding which pages get previews.
	PrefetchMargin float64
	// DebounceInterval is the quiet period after the last viewport change
	// before the real-size overlay pass runs.
	DebounceInterval time.Duration
	// PurgeDistance is the normalized center distance (in viewport
	// extents) beyond which a page loses preview and overlays.
	PurgeDistance float64
	// TrimDistance is the normalized center distance beyond which a page
	// loses only its overlays.
	TrimDistance float64
	// DevicePixelRatio scales on-screen sizes to device pixels for
	// overlay rendering.
	DevicePixelRatio float64
	// RetainedBudget bounds the compressed preview retention store, in
	// bytes. Zero disables retention.
	RetainedBudget int64
}

func DefaultConfig() Config {
	return Config{
		PrefetchMargin:   400,
		DebounceInterval: 100 * time.Millisecond,
		PurgeDistance:    33,
		TrimDistance:     8,
		DevicePixelRatio: 1,
		RetainedBudget:   32 << 20,
	}
}
