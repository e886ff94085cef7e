package viewer

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/wudi/pdfview/tilecache"
)

// Config is the viewer's tunable surface. All values have working defaults;
// ConfigFromEnv overrides them from PDFVIEW_* environment variables.
type Config struct {
	// PrefetchMargin inflates the visible rectangle, in screen pixels,
	// when selecting pages for preview loading.
	PrefetchMargin float64 `split_words:"true" default:"400"`
	// DebounceInterval is the quiet period before real-size overlays
	// render.
	DebounceInterval time.Duration `split_words:"true" default:"100ms"`
	// PurgeDistance and TrimDistance are normalized center distances, in
	// viewport extents, for the two eviction tiers.
	PurgeDistance float64 `split_words:"true" default:"33"`
	TrimDistance  float64 `split_words:"true" default:"8"`
	// DevicePixelRatio maps screen sizes to device pixels for overlay
	// rendering.
	DevicePixelRatio float64 `split_words:"true" default:"1"`
	// RetainedBudget bounds the compressed preview retention store in
	// bytes; zero disables it.
	RetainedBudget int64 `split_words:"true" default:"33554432"`
	// Padding is the gap between pages in document units.
	Padding float64 `default:"8"`
	// Horizontal selects left-to-right page flow instead of top-to-bottom.
	Horizontal bool `default:"false"`
}

// DefaultConfig returns the built-in defaults without consulting the
// environment.
func DefaultConfig() Config {
	return Config{
		PrefetchMargin:   400,
		DebounceInterval: 100 * time.Millisecond,
		PurgeDistance:    33,
		TrimDistance:     8,
		DevicePixelRatio: 1,
		RetainedBudget:   32 << 20,
		Padding:          8,
	}
}

// ConfigFromEnv reads configuration from PDFVIEW_* environment variables,
// falling back to the defaults.
func ConfigFromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process("pdfview", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) cacheConfig() tilecache.Config {
	return tilecache.Config{
		PrefetchMargin:   c.PrefetchMargin,
		DebounceInterval: c.DebounceInterval,
		PurgeDistance:    c.PurgeDistance,
		TrimDistance:     c.TrimDistance,
		DevicePixelRatio: c.DevicePixelRatio,
		RetainedBudget:   c.RetainedBudget,
	}
}
