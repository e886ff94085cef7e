// Package tilecache decides, as the viewport moves, which pages need a
// low-res preview, which need a high-res overlay for the exposed
// sub-rectangle, and which can give their textures back. All tile state is
// owned by the Cache and mutated only from the Scheduler's pass goroutine;
// the UI layer reads snapshots through change notifications.
package tilecache

import (
	"context"
	"image"
	"math"
	"sync"
	"time"

	"github.com/wudi/pdfview/doc"
	"github.com/wudi/pdfview/geom"
	"github.com/wudi/pdfview/observability"
	"github.com/wudi/pdfview/pagelayout"
	"github.com/wudi/pdfview/recovery"
	"github.com/wudi/pdfview/render"
	"github.com/wudi/pdfview/texture"
	"github.com/wudi/pdfview/viewport"
)

// tile is the per-page state. Fields are guarded by Cache.mu.
type tile struct {
	page   int
	status Status

	preview            texture.ID
	previewW, previewH int

	// Double-buffered overlay textures: the active one stays displayed
	// while the other receives the next render, so a refresh never shows
	// a blank region.
	overlays      [2]texture.ID
	activeOverlay int
	overlayRect   geom.Rect // sub-rect in layout coords relative to the page
	hasOverlay    bool

	visible     bool
	visibleArea float64
}

// Snapshot is the read-only view of a tile handed to the UI layer.
type Snapshot struct {
	Page        int
	Status      Status
	Visible     bool
	Preview     texture.ID
	Overlay     texture.ID
	OverlayRect geom.Rect
	HasOverlay  bool
}

// Cache is the per-document tile cache.
type Cache struct {
	cfg      Config
	log      observability.Logger
	strategy recovery.Strategy

	document *doc.Document
	layout   *pagelayout.Engine
	view     *viewport.Tracker
	textures texture.Registry
	renderer render.Renderer
	sink     Sink
	retained *texture.RetainedStore

	mu           sync.Mutex
	tiles        []*tile
	disposed     bool
	forceRefresh bool
	currentPage  int
	visibleAreas map[int]float64
}

type Option func(*Cache)

func WithLogger(log observability.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// WithSink sets the UI notification sink.
func WithSink(s Sink) Option {
	return func(c *Cache) { c.sink = s }
}

// WithRecovery sets the failure policy. Default is lenient: failed work is
// skipped and retried only by the next natural pass.
func WithRecovery(s recovery.Strategy) Option {
	return func(c *Cache) { c.strategy = s }
}

func New(cfg Config, document *doc.Document, layout *pagelayout.Engine, view *viewport.Tracker,
	textures texture.Registry, renderer render.Renderer, opts ...Option) *Cache {

	c := &Cache{
		cfg:          cfg,
		log:          observability.NopLogger{},
		strategy:     recovery.NewLenientStrategy(),
		document:     document,
		layout:       layout,
		view:         view,
		textures:     textures,
		renderer:     renderer,
		sink:         NopSink{},
		forceRefresh: true,
		visibleAreas: make(map[int]float64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.RetainedBudget > 0 {
		c.retained = texture.NewRetainedStore(cfg.RetainedBudget)
	}
	n := layout.PageCount()
	c.tiles = make([]*tile, n)
	for i := range c.tiles {
		c.tiles[i] = &tile{page: i + 1}
	}
	return c
}

// DetermineResult summarizes one visibility recomputation.
type DetermineResult struct {
	// VisibilityChanged is true when a page entered or left the visible
	// set; the UI should rebuild.
	VisibilityChanged bool
	// NeedsPreview is true when at least one visible page has no preview
	// yet, or a force refresh is pending.
	NeedsPreview bool
}

// DetermineVisible recomputes per-page visibility and the current page
// against the exposed screen rectangle. Run on every viewport change.
func (c *Cache) DetermineVisible() DetermineResult {
	tr := c.view.Transform()
	vs := c.view.ViewSize()
	screen := geom.Rect{W: vs.W, H: vs.H}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return DetermineResult{}
	}

	var res DetermineResult
	areas := make(map[int]float64)
	bestPage, bestArea := 0, 0.0
	for _, t := range c.tiles {
		lr, ok := c.layout.PageRect(t.page)
		if !ok {
			t.visible = false
			t.visibleArea = 0
			continue
		}
		inter := tr.ApplyRect(lr).Intersect(screen)
		visible := !inter.IsEmpty()
		if visible != t.visible {
			res.VisibilityChanged = true
			if visible && t.status != PreviewLoaded && t.status != Disposed {
				res.NeedsPreview = true
			}
		}
		t.visible = visible
		t.visibleArea = inter.Area()
		if visible {
			areas[t.page] = t.visibleArea
			// Ties favor the first page in page order.
			if t.visibleArea > bestArea {
				bestPage, bestArea = t.page, t.visibleArea
			}
		}
	}
	c.visibleAreas = areas
	c.currentPage = bestPage
	if c.forceRefresh {
		res.NeedsPreview = true
	}
	return res
}

// PassOutcome reports how a render pass ended.
type PassOutcome struct {
	// NeedsRelayout is set when a page's true size differed from its
	// placeholder; the pass aborted and the caller must relayout and
	// restart.
	NeedsRelayout bool
	// Retry is set when the recovery strategy asked for one more pass.
	Retry bool
}

// RunPreviewPass walks pages in page-number order and gives every page whose
// zoomed rectangle (inflated by the prefetch margin) intersects the screen a
// preview texture at the page's natural pixel size. Returns early when a
// page-size correction makes the remaining rectangles unreliable.
func (c *Cache) RunPreviewPass(ctx context.Context) PassOutcome {
	start := time.Now()
	tr := c.view.Transform()
	vs := c.view.ViewSize()
	screen := geom.Rect{W: vs.W, H: vs.H}.Inflate(c.cfg.PrefetchMargin)

	var outcome PassOutcome
	n := c.layout.PageCount()
	for page := 1; page <= n; page++ {
		if ctx.Err() != nil {
			return outcome
		}
		lr, ok := c.layout.PageRect(page)
		if !ok || !tr.ApplyRect(lr).Intersects(screen) {
			continue
		}

		c.mu.Lock()
		if c.disposed {
			c.mu.Unlock()
			return outcome
		}
		t := c.tiles[page-1]
		status := t.status
		if status == NotInitialized {
			t.status = Initializing
		}
		c.mu.Unlock()

		switch status {
		case NotInitialized:
			relayout, ok := c.resolvePage(ctx, t, &outcome)
			if relayout {
				outcome.NeedsRelayout = true
				c.finishPass(start)
				return outcome
			}
			if !ok {
				continue
			}
			c.renderPreview(ctx, t, &outcome)
		case Initialized:
			c.renderPreview(ctx, t, &outcome)
		default:
			// Initializing means a frozen open failure; PreviewLoading
			// cannot occur here because passes never overlap;
			// PreviewLoaded needs nothing.
		}
	}
	c.mu.Lock()
	c.forceRefresh = false
	c.mu.Unlock()
	c.finishPass(start)
	return outcome
}

func (c *Cache) finishPass(start time.Time) {
	c.log.Debug("preview pass finished",
		observability.Duration("elapsed", time.Since(start)))
}

// resolvePage opens the page handle and records its true size. Reports
// (relayout, ok): relayout when the size correction invalidates the current
// layout, ok when the page is usable.
func (c *Cache) resolvePage(ctx context.Context, t *tile, outcome *PassOutcome) (bool, bool) {
	h, err := c.document.Page(ctx, t.page)
	if err != nil {
		// The page stays frozen at Initializing; the placeholder keeps
		// showing. Never retried: the document reported it broken.
		c.report(recovery.KindPageOpen, t.page, err, outcome)
		return false, false
	}

	c.mu.Lock()
	if c.disposed || t.status == Disposed {
		c.mu.Unlock()
		return false, false
	}
	t.status = Initialized
	c.mu.Unlock()

	changed, err := c.layout.SetPageSize(t.page, h.Size())
	if err != nil {
		c.report(recovery.KindPageOpen, t.page, err, outcome)
		return false, false
	}
	return changed, true
}

// renderPreview produces the page's preview texture at natural pixel size,
// 1:1 with points and independent of zoom. Restores from the retained store
// when possible.
func (c *Cache) renderPreview(ctx context.Context, t *tile, outcome *PassOutcome) {
	h, ok := c.document.Opened(t.page)
	if !ok {
		return
	}
	size := h.Size()
	pw, ph := int(size.W), int(size.H)
	if pw <= 0 || ph <= 0 {
		return
	}

	c.mu.Lock()
	if c.disposed || t.status == Disposed {
		c.mu.Unlock()
		return
	}
	t.status = PreviewLoading
	c.mu.Unlock()

	var img *image.RGBA
	if c.retained != nil {
		if restored, ok := c.retained.Get(t.page); ok {
			if b := restored.Bounds(); b.Dx() == pw && b.Dy() == ph {
				img = restored
			}
		}
	}
	if img == nil {
		req := render.NewRequest(h)
		var err error
		img, err = c.renderer.RenderSubrect(ctx, req)
		if err != nil {
			c.revertPreview(t)
			c.report(recovery.KindPreview, t.page, err, outcome)
			return
		}
		if c.retained != nil {
			c.retained.Put(t.page, img)
		}
	}

	id, err := c.textures.Allocate(img.Bounds().Dx(), img.Bounds().Dy())
	if err != nil {
		c.revertPreview(t)
		c.report(recovery.KindPreview, t.page, err, outcome)
		return
	}
	if err := c.textures.Update(id, img); err != nil {
		_ = c.textures.Dispose(id)
		c.revertPreview(t)
		c.report(recovery.KindPreview, t.page, err, outcome)
		return
	}

	c.mu.Lock()
	if c.disposed || t.status == Disposed {
		c.mu.Unlock()
		_ = c.textures.Dispose(id)
		return
	}
	if t.preview != texture.None {
		_ = c.textures.Dispose(t.preview)
	}
	t.preview = id
	t.previewW, t.previewH = img.Bounds().Dx(), img.Bounds().Dy()
	t.status = PreviewLoaded
	c.mu.Unlock()

	c.sink.PreviewUpdated(t.page)
}

// revertPreview puts a failed preview request back to its pre-request state.
func (c *Cache) revertPreview(t *tile) {
	c.mu.Lock()
	if t.status == PreviewLoading {
		t.status = Initialized
	}
	c.mu.Unlock()
}

// RunOverlayPass refreshes the real-size overlays of visible pages and
// applies distance-based eviction to every page. Runs after the debounce
// interval settles.
func (c *Cache) RunOverlayPass(ctx context.Context) PassOutcome {
	start := time.Now()
	tr := c.view.Transform()
	vs := c.view.ViewSize()
	exposed := c.view.ExposedRect(0)
	viewCenter := geom.Point{X: vs.W / 2, Y: vs.H / 2}
	norm := vs.Max()

	var outcome PassOutcome
	n := c.layout.PageCount()
	for page := 1; page <= n; page++ {
		if ctx.Err() != nil {
			return outcome
		}
		lr, ok := c.layout.PageRect(page)
		if !ok {
			continue
		}
		t := c.tileFor(page)
		if t == nil {
			return outcome
		}
		zoomed := tr.ApplyRect(lr)

		// Eviction is evaluated for every page, visible or not.
		dist := viewCenter.Distance(zoomed.Center()) / norm
		if dist > c.cfg.PurgeDistance {
			c.purge(t)
			continue
		}
		if dist > c.cfg.TrimDistance {
			c.releaseOverlays(t)
			continue
		}

		c.mu.Lock()
		eligible := !c.disposed && t.visible && t.status == PreviewLoaded
		prevW, prevH := t.previewW, t.previewH
		c.mu.Unlock()
		if !eligible {
			continue
		}

		// Required device pixels for the page at the current zoom.
		fw := int(math.Ceil(lr.W * tr.Scale * c.cfg.DevicePixelRatio))
		fh := int(math.Ceil(lr.H * tr.Scale * c.cfg.DevicePixelRatio))
		if prevW >= fw && prevH >= fh {
			// The preview already covers the required resolution.
			c.clearOverlay(t)
			continue
		}

		sub := lr.Intersect(exposed)
		if sub.IsEmpty() {
			continue
		}
		c.renderOverlay(ctx, t, lr, sub, fw, fh, &outcome)
	}
	c.log.Debug("overlay pass finished",
		observability.Duration("elapsed", time.Since(start)))
	return outcome
}

func (c *Cache) tileFor(page int) *tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || page < 1 || page > len(c.tiles) {
		return nil
	}
	return c.tiles[page-1]
}

// renderOverlay rasterizes the visible sub-rectangle of the page into the
// inactive overlay buffer and swaps it in on completion.
func (c *Cache) renderOverlay(ctx context.Context, t *tile, lr, sub geom.Rect, fw, fh int, outcome *PassOutcome) {
	h, ok := c.document.Opened(t.page)
	if !ok {
		return
	}

	// Sub-rectangle relative to the page, in layout coords and in device
	// pixels of the full-size page.
	rel := sub.Translate(geom.Point{X: -lr.X, Y: -lr.Y})
	px := int(rel.X / lr.W * float64(fw))
	py := int(rel.Y / lr.H * float64(fh))
	pwid := int(math.Ceil(rel.W / lr.W * float64(fw)))
	phgt := int(math.Ceil(rel.H / lr.H * float64(fh)))
	if px+pwid > fw {
		pwid = fw - px
	}
	if py+phgt > fh {
		phgt = fh - py
	}
	if pwid <= 0 || phgt <= 0 {
		return
	}

	req := render.Request{
		Page:           h,
		X:              px,
		Y:              py,
		Width:          pwid,
		Height:         phgt,
		FullWidth:      fw,
		FullHeight:     fh,
		BackgroundFill: true,
	}
	img, err := c.renderer.RenderSubrect(ctx, req)
	if err != nil {
		c.report(recovery.KindOverlay, t.page, err, outcome)
		return
	}

	c.mu.Lock()
	if c.disposed || t.status != PreviewLoaded {
		// Evicted or disposed while rendering; drop the result.
		c.mu.Unlock()
		return
	}
	slot := 0
	if t.hasOverlay {
		slot = 1 - t.activeOverlay
	}
	old := t.overlays[slot]
	c.mu.Unlock()

	id := old
	reuse := false
	if old != texture.None {
		if w, h, err := c.textures.Size(old); err == nil && w == img.Bounds().Dx() && h == img.Bounds().Dy() {
			reuse = true
		} else {
			_ = c.textures.Dispose(old)
		}
	}
	if !reuse {
		var err error
		id, err = c.textures.Allocate(img.Bounds().Dx(), img.Bounds().Dy())
		if err != nil {
			c.report(recovery.KindOverlay, t.page, err, outcome)
			return
		}
	}
	if err := c.textures.Update(id, img); err != nil {
		_ = c.textures.Dispose(id)
		c.mu.Lock()
		t.overlays[slot] = texture.None
		c.mu.Unlock()
		c.report(recovery.KindOverlay, t.page, err, outcome)
		return
	}

	c.mu.Lock()
	if c.disposed || t.status != PreviewLoaded {
		c.mu.Unlock()
		_ = c.textures.Dispose(id)
		return
	}
	t.overlays[slot] = id
	t.activeOverlay = slot
	t.overlayRect = rel
	t.hasOverlay = true
	c.mu.Unlock()

	c.sink.OverlayUpdated(t.page)
}

// clearOverlay drops the overlay entirely; the preview is sufficient.
func (c *Cache) clearOverlay(t *tile) {
	c.mu.Lock()
	changed := t.hasOverlay
	ids := t.overlays
	t.overlays = [2]texture.ID{}
	t.hasOverlay = false
	t.overlayRect = geom.Rect{}
	c.mu.Unlock()

	for _, id := range ids {
		if id != texture.None {
			_ = c.textures.Dispose(id)
		}
	}
	if changed {
		c.sink.OverlayUpdated(t.page)
	}
}

// releaseOverlays is the partial eviction tier: overlays go, the cheap
// preview stays.
func (c *Cache) releaseOverlays(t *tile) {
	c.clearOverlay(t)
}

// purge is the full eviction tier: all textures released, status reset to
// Initialized. The page's known size is kept so layout stays stable.
func (c *Cache) purge(t *tile) {
	c.mu.Lock()
	if t.status != PreviewLoaded {
		c.mu.Unlock()
		return
	}
	preview := t.preview
	ids := t.overlays
	t.preview = texture.None
	t.previewW, t.previewH = 0, 0
	t.overlays = [2]texture.ID{}
	t.hasOverlay = false
	t.overlayRect = geom.Rect{}
	t.status = Initialized
	c.mu.Unlock()

	if preview != texture.None {
		_ = c.textures.Dispose(preview)
	}
	for _, id := range ids {
		if id != texture.None {
			_ = c.textures.Dispose(id)
		}
	}
	c.log.Debug("page purged", observability.Int("page", t.page))
}

// report routes a failure through the recovery strategy.
func (c *Cache) report(kind recovery.Kind, page int, err error, outcome *PassOutcome) {
	action := c.strategy.OnError(err, recovery.Location{Page: page, Kind: kind})
	switch action {
	case recovery.ActionRetry:
		outcome.Retry = true
	case recovery.ActionFail:
		c.sink.ViewError(page, err)
	}
	c.log.Warn("render failure",
		observability.Int("page", page),
		observability.String("kind", kind.String()),
		observability.Error("error", err))
}

// Tile returns the UI-facing snapshot for a page.
func (c *Cache) Tile(page int) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if page < 1 || page > len(c.tiles) {
		return Snapshot{}, false
	}
	t := c.tiles[page-1]
	s := Snapshot{
		Page:        t.page,
		Status:      t.status,
		Visible:     t.visible,
		Preview:     t.preview,
		OverlayRect: t.overlayRect,
		HasOverlay:  t.hasOverlay,
	}
	if t.hasOverlay {
		s.Overlay = t.overlays[t.activeOverlay]
	}
	return s, true
}

// VisibleAreas returns the last-computed visible area per page, in screen
// pixels squared.
func (c *Cache) VisibleAreas() map[int]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]float64, len(c.visibleAreas))
	for k, v := range c.visibleAreas {
		out[k] = v
	}
	return out
}

// CurrentPage is the page with the largest visible area, or 0 when no page
// is visible.
func (c *Cache) CurrentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPage
}

// ForceRefresh requests previews for all visible pages on the next pass,
// used on document (re)load.
func (c *Cache) ForceRefresh() {
	c.mu.Lock()
	c.forceRefresh = true
	c.mu.Unlock()
}

// Dispose releases every texture and marks all tiles terminal. In-flight
// render results observe the status and become no-ops.
func (c *Cache) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	var ids []texture.ID
	for _, t := range c.tiles {
		if t.preview != texture.None {
			ids = append(ids, t.preview)
		}
		for _, id := range t.overlays {
			if id != texture.None {
				ids = append(ids, id)
			}
		}
		t.preview = texture.None
		t.overlays = [2]texture.ID{}
		t.hasOverlay = false
		t.status = Disposed
	}
	c.mu.Unlock()

	for _, id := range ids {
		_ = c.textures.Dispose(id)
	}
}

// Disposed reports whether the cache has been torn down.
func (c *Cache) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}
