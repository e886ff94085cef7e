package tilecache

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/wudi/pdfview/doc"
	"github.com/wudi/pdfview/geom"
	"github.com/wudi/pdfview/pagelayout"
	"github.com/wudi/pdfview/recovery"
	"github.com/wudi/pdfview/render"
	"github.com/wudi/pdfview/texture"
	"github.com/wudi/pdfview/viewport"
)

type fakePage struct {
	n    int
	size geom.Size
}

func (p fakePage) PageNumber() int { return p.n }
func (p fakePage) Size() geom.Size { return p.size }

type fakeProvider struct {
	sizes    []geom.Size
	failOpen map[int]error
}

func (p *fakeProvider) PageCount() int { return len(p.sizes) }

func (p *fakeProvider) OpenPage(_ context.Context, n int) (doc.PageHandle, error) {
	if err := p.failOpen[n]; err != nil {
		return nil, err
	}
	return fakePage{n: n, size: p.sizes[n-1]}, nil
}

func (p *fakeProvider) Close() error { return nil }

type countingRenderer struct {
	mu     sync.Mutex
	counts map[int]int
	fail   map[int]error
}

func (r *countingRenderer) RenderSubrect(_ context.Context, req render.Request) (*image.RGBA, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	page := req.Page.PageNumber()
	r.mu.Lock()
	if r.counts == nil {
		r.counts = make(map[int]int)
	}
	r.counts[page]++
	err := r.fail[page]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return image.NewRGBA(image.Rect(0, 0, req.Width, req.Height)), nil
}

func (r *countingRenderer) count(page int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[page]
}

type recordSink struct {
	mu        sync.Mutex
	previews  []int
	overlays  []int
	relayouts int
	errs      []error
}

func (s *recordSink) PreviewUpdated(page int) {
	s.mu.Lock()
	s.previews = append(s.previews, page)
	s.mu.Unlock()
}

func (s *recordSink) OverlayUpdated(page int) {
	s.mu.Lock()
	s.overlays = append(s.overlays, page)
	s.mu.Unlock()
}

func (s *recordSink) RelayoutNeeded() {
	s.mu.Lock()
	s.relayouts++
	s.mu.Unlock()
}

func (s *recordSink) ViewError(_ int, err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *recordSink) errCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

type fixture struct {
	cache    *Cache
	layout   *pagelayout.Engine
	view     *viewport.Tracker
	textures *texture.MemoryRegistry
	renderer *countingRenderer
	provider *fakeProvider
	sink     *recordSink
}

// newFixture builds a three-page 200x300pt document in a 400x600 viewport.
// With 8pt padding the vertical flow scales pages to 384x576: page 1 at
// (8,8), page 2 at y=592, page 3 at y=1176, content 400x1760.
func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()

	pageSize := geom.Size{W: 200, H: 300}
	provider := &fakeProvider{sizes: []geom.Size{pageSize, pageSize, pageSize}}
	document := doc.NewRegistry().OpenProvider(provider)

	layout := pagelayout.NewEngine()
	if err := layout.Reset(3, pageSize); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	viewSize := geom.Size{W: 400, H: 600}
	if err := layout.Layout(viewSize); err != nil {
		t.Fatalf("Layout: %v", err)
	}

	view := viewport.New(viewSize)
	view.SetContentSize(layout.ContentSize())

	textures := texture.NewMemoryRegistry()
	renderer := &countingRenderer{}
	sink := &recordSink{}
	opts = append([]Option{WithSink(sink)}, opts...)
	cache := New(cfg, document, layout, view, textures, renderer, opts...)

	return &fixture{
		cache:    cache,
		layout:   layout,
		view:     view,
		textures: textures,
		renderer: renderer,
		provider: provider,
		sink:     sink,
	}
}

func (f *fixture) mustTile(t *testing.T, page int) Snapshot {
	t.Helper()
	s, ok := f.cache.Tile(page)
	if !ok {
		t.Fatalf("Tile(%d) missing", page)
	}
	return s
}

func TestDetermineVisible(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	res := f.cache.DetermineVisible()
	if !res.VisibilityChanged {
		t.Error("first determination should report a visibility change")
	}
	if !res.NeedsPreview {
		t.Error("freshly visible uninitialized pages should need previews")
	}

	areas := f.cache.VisibleAreas()
	if len(areas) != 2 {
		t.Fatalf("visible pages = %v, want pages 1 and 2", areas)
	}
	// Page 1 shows 384x576 px, page 2 only the 8 px strip below y=592.
	if areas[1] <= areas[2] {
		t.Errorf("page 1 area %v should exceed page 2 area %v", areas[1], areas[2])
	}
	if got := f.cache.CurrentPage(); got != 1 {
		t.Errorf("CurrentPage = %d, want 1", got)
	}

	// No movement: nothing changed, no new previews needed beyond the
	// pending force refresh consumed by the first pass.
	f.cache.RunPreviewPass(context.Background())
	res = f.cache.DetermineVisible()
	if res.VisibilityChanged {
		t.Error("unchanged viewport should not report a visibility change")
	}
	if res.NeedsPreview {
		t.Error("unchanged viewport should not need previews")
	}
}

func TestPreviewPassLoadsVisibleAndPrefetched(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.cache.DetermineVisible()

	out := f.cache.RunPreviewPass(context.Background())
	if out.NeedsRelayout || out.Retry {
		t.Fatalf("outcome = %+v, want clean pass", out)
	}

	// Pages 1 and 2 are on screen; the 400px prefetch margin reaches
	// y=1000, short of page 3 at y=1176.
	for _, page := range []int{1, 2} {
		s := f.mustTile(t, page)
		if s.Status != PreviewLoaded {
			t.Errorf("page %d status = %v, want preview-loaded", page, s.Status)
		}
		if s.Preview == texture.None {
			t.Errorf("page %d has no preview texture", page)
		}
	}
	if s := f.mustTile(t, 3); s.Status != NotInitialized {
		t.Errorf("page 3 status = %v, want not-initialized", s.Status)
	}
	// Previews render at natural page pixel size.
	if w, h, err := f.textures.Size(f.mustTile(t, 1).Preview); err != nil || w != 200 || h != 300 {
		t.Errorf("preview size = %d,%d,%v, want 200,300", w, h, err)
	}
}

func TestPreviewPassAbortsOnPageSizeCorrection(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.provider.sizes[1] = geom.Size{W: 100, H: 300}
	f.cache.DetermineVisible()

	out := f.cache.RunPreviewPass(context.Background())
	if !out.NeedsRelayout {
		t.Fatal("size correction on page 2 should abort the pass for relayout")
	}
	// Page 1 completed before the abort; page 2 opened but did not render.
	if s := f.mustTile(t, 1); s.Status != PreviewLoaded {
		t.Errorf("page 1 status = %v, want preview-loaded", s.Status)
	}
	if s := f.mustTile(t, 2); s.Status != Initialized {
		t.Errorf("page 2 status = %v, want initialized", s.Status)
	}

	if err := f.layout.Layout(f.view.ViewSize()); err != nil {
		t.Fatalf("relayout: %v", err)
	}
	if f.layout.Relayouts() != 2 {
		t.Errorf("relayouts = %d, want 2", f.layout.Relayouts())
	}
	// The narrower page is centered at the shared scale.
	r, _ := f.layout.PageRect(2)
	if r.W != 192 || r.X != 104 {
		t.Errorf("page 2 rect = %+v, want w=192 x=104", r)
	}

	out = f.cache.RunPreviewPass(context.Background())
	if out.NeedsRelayout {
		t.Fatal("second pass should not need another relayout")
	}
	if s := f.mustTile(t, 2); s.Status != PreviewLoaded {
		t.Errorf("page 2 status after retry = %v, want preview-loaded", s.Status)
	}
}

func TestEvictionAndRetainedRestore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrefetchMargin = 50
	cfg.PurgeDistance = 1.2
	cfg.TrimDistance = 1.0
	f := newFixture(t, cfg)

	f.cache.DetermineVisible()
	f.cache.RunPreviewPass(context.Background())
	if f.renderer.count(1) != 1 {
		t.Fatalf("page 1 render count = %d, want 1", f.renderer.count(1))
	}

	// Scroll to the bottom. Page 1's center lands 1164 px above the view
	// center, normalized distance 1.94: past the purge threshold.
	f.view.Pan(geom.Point{Y: 1160})
	f.cache.DetermineVisible()
	f.cache.RunOverlayPass(context.Background())

	s := f.mustTile(t, 1)
	if s.Status != Initialized {
		t.Errorf("page 1 status after purge = %v, want initialized", s.Status)
	}
	if s.Preview != texture.None {
		t.Error("purged page should have no preview texture")
	}
	// Page 3 is now centered and untouched by eviction.
	if s := f.mustTile(t, 3); s.Status == Disposed {
		t.Errorf("page 3 status = %v", s.Status)
	}

	// Scroll back. The preview comes out of the retained store without a
	// second render call.
	f.view.Pan(geom.Point{Y: -1160})
	res := f.cache.DetermineVisible()
	if !res.NeedsPreview {
		t.Fatal("re-exposed purged page should need a preview")
	}
	f.cache.RunPreviewPass(context.Background())

	s = f.mustTile(t, 1)
	if s.Status != PreviewLoaded || s.Preview == texture.None {
		t.Fatalf("page 1 after restore = %+v, want loaded preview", s)
	}
	if got := f.renderer.count(1); got != 1 {
		t.Errorf("page 1 render count after restore = %d, want 1", got)
	}
}

func TestOverlayRenderAndDoubleBuffer(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.cache.DetermineVisible()
	f.cache.RunPreviewPass(context.Background())

	// At scale 1 page 1 occupies 384x576 screen px; the 200x300 preview is
	// insufficient, so the exposed sub-rect gets a real-size overlay.
	f.cache.RunOverlayPass(context.Background())
	s := f.mustTile(t, 1)
	if !s.HasOverlay || s.Overlay == texture.None {
		t.Fatalf("page 1 = %+v, want an overlay", s)
	}
	first := s.Overlay
	if w, h, err := f.textures.Size(first); err != nil || w != 384 || h != 576 {
		t.Errorf("overlay size = %d,%d,%v, want 384,576", w, h, err)
	}
	if s.OverlayRect != (geom.Rect{W: 384, H: 576}) {
		t.Errorf("overlay rect = %+v, want page-relative 0,0,384,576", s.OverlayRect)
	}

	// The next refresh renders into the other buffer and swaps.
	f.cache.RunOverlayPass(context.Background())
	second := f.mustTile(t, 1).Overlay
	if second == first {
		t.Error("refresh should swap to the inactive overlay buffer")
	}
}

func TestOverlayClearedWhenPreviewSufficient(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.cache.DetermineVisible()
	f.cache.RunPreviewPass(context.Background())
	f.cache.RunOverlayPass(context.Background())
	if !f.mustTile(t, 1).HasOverlay {
		t.Fatal("expected an overlay at scale 1")
	}

	// At scale 0.5 page 1 needs only 192x288 px; the 200x300 preview
	// covers it and the overlay is released.
	if err := f.view.SetTransform(geom.Transform{Scale: 0.5}); err != nil {
		t.Fatalf("SetTransform: %v", err)
	}
	f.cache.DetermineVisible()
	f.cache.RunOverlayPass(context.Background())

	s := f.mustTile(t, 1)
	if s.HasOverlay || s.Overlay != texture.None {
		t.Errorf("page 1 = %+v, want overlay cleared", s)
	}
	if s.Status != PreviewLoaded {
		t.Errorf("status = %v, preview must survive overlay release", s.Status)
	}
}

func TestTrimReleasesOnlyOverlays(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PurgeDistance = 3.0
	cfg.TrimDistance = 1.0
	f := newFixture(t, cfg)

	f.cache.DetermineVisible()
	f.cache.RunPreviewPass(context.Background())
	f.cache.RunOverlayPass(context.Background())
	if !f.mustTile(t, 1).HasOverlay {
		t.Fatal("expected an overlay before scrolling")
	}

	// Page 1 at normalized distance 1.94: past trim, short of purge.
	f.view.Pan(geom.Point{Y: 1160})
	f.cache.DetermineVisible()
	f.cache.RunOverlayPass(context.Background())

	s := f.mustTile(t, 1)
	if s.HasOverlay {
		t.Error("trim should release overlays")
	}
	if s.Status != PreviewLoaded || s.Preview == texture.None {
		t.Errorf("page 1 = %+v, trim must keep the preview", s)
	}
}

func TestOverlayUsesLatestTransform(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.cache.DetermineVisible()
	f.cache.RunPreviewPass(context.Background())

	// A burst of pans lands on offset (0,300); the single settled overlay
	// pass must use that final transform, not an intermediate one.
	for i := 0; i < 10; i++ {
		f.view.Pan(geom.Point{Y: 30})
	}
	f.cache.DetermineVisible()
	f.cache.RunOverlayPass(context.Background())

	s := f.mustTile(t, 1)
	if !s.HasOverlay {
		t.Fatal("expected an overlay for page 1")
	}
	// Exposed rect (0,300,400,600) clipped to page 1's rect (8,8,384,576)
	// gives the page-relative sub-rect (0,292,384,284).
	want := geom.Rect{Y: 292, W: 384, H: 284}
	if s.OverlayRect != want {
		t.Errorf("overlay rect = %+v, want %+v", s.OverlayRect, want)
	}
}

func TestRecoveryActions(t *testing.T) {
	renderErr := errors.New("raster failed")

	t.Run("lenient skips", func(t *testing.T) {
		f := newFixture(t, DefaultConfig())
		f.renderer.fail = map[int]error{1: renderErr}
		f.cache.DetermineVisible()
		out := f.cache.RunPreviewPass(context.Background())
		if out.Retry {
			t.Error("lenient strategy should not request a retry")
		}
		if s := f.mustTile(t, 1); s.Status != Initialized {
			t.Errorf("page 1 status = %v, want initialized after revert", s.Status)
		}
		if f.sink.errCount() != 0 {
			t.Error("lenient strategy should not surface errors")
		}
	})

	t.Run("strict fails", func(t *testing.T) {
		f := newFixture(t, DefaultConfig(), WithRecovery(recovery.NewStrictStrategy()))
		f.renderer.fail = map[int]error{1: renderErr}
		f.cache.DetermineVisible()
		f.cache.RunPreviewPass(context.Background())
		if f.sink.errCount() != 1 {
			t.Errorf("surfaced errors = %d, want 1", f.sink.errCount())
		}
	})

	t.Run("retry requests one more pass", func(t *testing.T) {
		f := newFixture(t, DefaultConfig(), WithRecovery(recovery.NewRetryStrategy()))
		f.renderer.fail = map[int]error{1: renderErr}
		f.cache.DetermineVisible()
		out := f.cache.RunPreviewPass(context.Background())
		if !out.Retry {
			t.Error("first failure should request a retry")
		}
		out = f.cache.RunPreviewPass(context.Background())
		if out.Retry {
			t.Error("second failure should be skipped, not retried again")
		}
	})
}

func TestPageOpenFailureFreezes(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.provider.failOpen = map[int]error{1: errors.New("corrupt page")}
	f.cache.DetermineVisible()

	f.cache.RunPreviewPass(context.Background())
	if s := f.mustTile(t, 1); s.Status != Initializing {
		t.Errorf("page 1 status = %v, want frozen at initializing", s.Status)
	}
	// Page 2 proceeds normally despite page 1.
	if s := f.mustTile(t, 2); s.Status != PreviewLoaded {
		t.Errorf("page 2 status = %v, want preview-loaded", s.Status)
	}

	// Later passes leave the frozen page alone and never reopen it.
	f.cache.RunPreviewPass(context.Background())
	if s := f.mustTile(t, 1); s.Status != Initializing {
		t.Errorf("page 1 status after second pass = %v", s.Status)
	}
}

func TestDispose(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.cache.DetermineVisible()
	f.cache.RunPreviewPass(context.Background())
	f.cache.RunOverlayPass(context.Background())
	if f.textures.Count() == 0 {
		t.Fatal("expected live textures before dispose")
	}

	f.cache.Dispose()
	if !f.cache.Disposed() {
		t.Fatal("Disposed() = false after Dispose")
	}
	if f.textures.Count() != 0 {
		t.Errorf("live textures after dispose = %d, want 0", f.textures.Count())
	}
	if s := f.mustTile(t, 1); s.Status != Disposed {
		t.Errorf("page 1 status = %v, want disposed", s.Status)
	}

	// Every operation is a no-op on a disposed cache.
	if res := f.cache.DetermineVisible(); res.VisibilityChanged || res.NeedsPreview {
		t.Error("DetermineVisible on a disposed cache should do nothing")
	}
	f.cache.RunPreviewPass(context.Background())
	f.cache.RunOverlayPass(context.Background())
	if f.textures.Count() != 0 {
		t.Error("passes on a disposed cache must not allocate")
	}
	f.cache.Dispose() // idempotent
}
