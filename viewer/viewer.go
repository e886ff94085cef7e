// Package viewer is the root object tying the document registry, page
// layout, viewport tracker and tile cache together behind the controller
// API a UI embeds. One Viewer displays one document at a time; opening a
// new document tears the previous pipeline down.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/wudi/pdfview/doc"
	"github.com/wudi/pdfview/geom"
	"github.com/wudi/pdfview/observability"
	"github.com/wudi/pdfview/pagelayout"
	"github.com/wudi/pdfview/recovery"
	"github.com/wudi/pdfview/render"
	"github.com/wudi/pdfview/texture"
	"github.com/wudi/pdfview/tilecache"
	"github.com/wudi/pdfview/viewport"
)

var (
	ErrNoDocument  = errors.New("no document open")
	ErrNotRenderer = errors.New("provider does not implement render.Renderer")
)

// letterSize is the placeholder when page 1 itself cannot be opened.
var letterSize = geom.Size{W: 612, H: 792}

// Anchor names a screen position for CalculatePageMatrix.
type Anchor int

const (
	AnchorTopLeft Anchor = iota
	AnchorTopRight
	AnchorBottomLeft
	AnchorBottomRight
	AnchorCenter
)

func (a Anchor) point(vs geom.Size) geom.Point {
	switch a {
	case AnchorTopRight:
		return geom.Point{X: vs.W}
	case AnchorBottomLeft:
		return geom.Point{Y: vs.H}
	case AnchorBottomRight:
		return geom.Point{X: vs.W, Y: vs.H}
	case AnchorCenter:
		return geom.Point{X: vs.W / 2, Y: vs.H / 2}
	}
	return geom.Point{}
}

// Viewer is the controller object.
type Viewer struct {
	cfg      Config
	log      observability.Logger
	registry *doc.Registry
	textures texture.Registry
	sink     tilecache.Sink
	strategy recovery.Strategy

	mu       sync.Mutex
	document *doc.Document
	layout   *pagelayout.Engine
	view     *viewport.Tracker
	cache    *tilecache.Cache
	sched    *tilecache.Scheduler
}

type Option func(*Viewer)

func WithLogger(log observability.Logger) Option {
	return func(v *Viewer) { v.log = log }
}

// WithFactory sets the provider factory used by OpenFile and OpenBytes.
func WithFactory(f doc.Factory) Option {
	return func(v *Viewer) { v.registry = doc.NewRegistry(doc.WithLogger(v.log), doc.WithFactory(f)) }
}

func WithConfig(cfg Config) Option {
	return func(v *Viewer) { v.cfg = cfg }
}

func WithSink(s tilecache.Sink) Option {
	return func(v *Viewer) { v.sink = s }
}

func WithRecovery(s recovery.Strategy) Option {
	return func(v *Viewer) { v.strategy = s }
}

func New(viewSize geom.Size, textures texture.Registry, opts ...Option) (*Viewer, error) {
	if viewSize.IsEmpty() {
		return nil, fmt.Errorf("view size %+v must be positive", viewSize)
	}
	v := &Viewer{
		cfg:      DefaultConfig(),
		log:      observability.NopLogger{},
		textures: textures,
		sink:     tilecache.NopSink{},
		strategy: recovery.NewLenientStrategy(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.registry == nil {
		v.registry = doc.NewRegistry(doc.WithLogger(v.log))
	}
	v.view = viewport.New(viewSize, viewport.WithLogger(v.log))
	return v, nil
}

// OpenFile opens the document at path through the configured factory. The
// factory's providers must also implement render.Renderer.
func (v *Viewer) OpenFile(ctx context.Context, path string) error {
	d, err := v.registry.OpenFile(path)
	if err != nil {
		return err
	}
	return v.attach(ctx, d)
}

// OpenBytes opens an in-memory document through the configured factory.
func (v *Viewer) OpenBytes(ctx context.Context, data []byte) error {
	d, err := v.registry.OpenBytes(data)
	if err != nil {
		return err
	}
	return v.attach(ctx, d)
}

// Open opens a caller-supplied provider. The provider must also implement
// render.Renderer; most do (the go-fitz adapter among them).
func (v *Viewer) Open(ctx context.Context, p doc.Provider) error {
	return v.attach(ctx, v.registry.OpenProvider(p))
}

func (v *Viewer) attach(ctx context.Context, d *doc.Document) error {
	renderer, err := rendererFor(d)
	if err != nil {
		_ = v.registry.Close(d.ID())
		return err
	}

	// Page 1's size seeds the placeholder for every page; documents with
	// mixed sizes correct themselves during preview loading.
	placeholder := letterSize
	if h, err := d.Page(ctx, 1); err == nil {
		placeholder = h.Size()
	} else {
		v.log.Warn("page 1 unavailable, using letter placeholder",
			observability.Error("error", err))
	}

	dir := pagelayout.Vertical
	if v.cfg.Horizontal {
		dir = pagelayout.Horizontal
	}
	layout := pagelayout.NewEngine(
		pagelayout.WithPadding(v.cfg.Padding),
		pagelayout.WithDirection(dir),
		pagelayout.WithLogger(v.log),
	)
	if err := layout.Reset(d.PageCount(), placeholder); err != nil {
		_ = v.registry.Close(d.ID())
		return err
	}
	if err := layout.Layout(v.view.ViewSize()); err != nil {
		_ = v.registry.Close(d.ID())
		return err
	}

	v.mu.Lock()
	v.detachLocked()
	v.document = d
	v.layout = layout
	if err := v.view.SetTransform(geom.IdentityTransform()); err != nil {
		v.mu.Unlock()
		return err
	}
	v.view.SetContentSize(layout.ContentSize())
	v.cache = tilecache.New(v.cfg.cacheConfig(), d, layout, v.view, v.textures, renderer,
		tilecache.WithLogger(v.log),
		tilecache.WithSink(v.sink),
		tilecache.WithRecovery(v.strategy),
	)
	v.sched = tilecache.NewScheduler(v.cache, v.view, tilecache.WithSchedulerLogger(v.log))
	v.sched.Start()
	v.mu.Unlock()

	v.log.Info("document attached", observability.Int("pages", d.PageCount()))
	return nil
}

func rendererFor(d *doc.Document) (render.Renderer, error) {
	r, ok := d.Provider().(render.Renderer)
	if !ok {
		return nil, ErrNotRenderer
	}
	return r, nil
}

// detachLocked stops the pipeline of the current document. Caller holds mu.
func (v *Viewer) detachLocked() {
	if v.sched != nil {
		v.sched.Stop()
		v.sched = nil
	}
	if v.cache != nil {
		v.cache.Dispose()
		v.cache = nil
	}
	if v.document != nil {
		_ = v.registry.Close(v.document.ID())
		v.document = nil
	}
	v.layout = nil
}

// Close tears down the open document and the registry.
func (v *Viewer) Close() error {
	v.mu.Lock()
	v.detachLocked()
	v.mu.Unlock()
	return v.registry.CloseAll()
}

// Viewport exposes the tracker for pan/zoom gestures.
func (v *Viewer) Viewport() *viewport.Tracker { return v.view }

// Document returns the open document, if any.
func (v *Viewer) Document() (*doc.Document, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.document, v.document != nil
}

// Tile returns the cache snapshot for a page.
func (v *Viewer) Tile(page int) (tilecache.Snapshot, bool) {
	v.mu.Lock()
	c := v.cache
	v.mu.Unlock()
	if c == nil {
		return tilecache.Snapshot{}, false
	}
	return c.Tile(page)
}

// PageRect returns the laid-out rectangle of a page in document coordinates.
func (v *Viewer) PageRect(page int) (geom.Rect, bool) {
	v.mu.Lock()
	l := v.layout
	v.mu.Unlock()
	if l == nil {
		return geom.Rect{}, false
	}
	return l.PageRect(page)
}

// VisiblePageAreas returns the visible screen area per page from the last
// visibility determination.
func (v *Viewer) VisiblePageAreas() map[int]float64 {
	v.mu.Lock()
	c := v.cache
	v.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.VisibleAreas()
}

// CurrentPage is the page with the largest visible area, 0 when none.
func (v *Viewer) CurrentPage() int {
	v.mu.Lock()
	c := v.cache
	v.mu.Unlock()
	if c == nil {
		return 0
	}
	return c.CurrentPage()
}

// SetViewSize resizes the viewport and relayouts the document.
func (v *Viewer) SetViewSize(s geom.Size) error {
	if err := v.view.SetViewSize(s); err != nil {
		return err
	}
	v.mu.Lock()
	l := v.layout
	v.mu.Unlock()
	if l == nil {
		return nil
	}
	if err := l.Layout(s); err != nil {
		return err
	}
	v.view.SetContentSize(l.ContentSize())
	return nil
}

// CalculatePageMatrix returns the transform that places rel, a fractional
// position within the page's rectangle, at the screen position named by
// anchor, at targetZoom. A non-positive targetZoom selects the page-fit
// zoom. The offset is clamped to the content bounds.
func (v *Viewer) CalculatePageMatrix(page int, rel geom.Point, anchor Anchor, targetZoom float64) (geom.Transform, error) {
	v.mu.Lock()
	l := v.layout
	v.mu.Unlock()
	if l == nil {
		return geom.Transform{}, ErrNoDocument
	}
	lr, ok := l.PageRect(page)
	if !ok {
		return geom.Transform{}, fmt.Errorf("page %d has no layout rect", page)
	}
	if lr.W <= 0 {
		return geom.Transform{}, fmt.Errorf("page %d has a degenerate rect", page)
	}

	vs := v.view.ViewSize()
	scale := targetZoom
	if scale <= 0 {
		scale = vs.W / lr.W
	}
	if math.IsNaN(scale) || math.IsInf(scale, 0) {
		return geom.Transform{}, fmt.Errorf("target zoom %v is not finite", scale)
	}

	docPoint := geom.Point{X: lr.X + rel.X*lr.W, Y: lr.Y + rel.Y*lr.H}
	screen := anchor.point(vs)
	offset := docPoint.Mul(scale).Sub(screen)

	// Same clamp rule as the tracker: offset within [0, content-view] on
	// each axis, never negative.
	cs := l.ContentSize()
	maxX := cs.W*scale - vs.W
	maxY := cs.H*scale - vs.H
	offset.X = math.Min(math.Max(offset.X, 0), math.Max(maxX, 0))
	offset.Y = math.Min(math.Max(offset.Y, 0), math.Max(maxY, 0))

	return geom.Transform{Offset: offset, Scale: scale}, nil
}

// CalculatePageFitMatrix returns the transform that fits the page's width to
// the viewport width with its top-left corner at the screen origin.
func (v *Viewer) CalculatePageFitMatrix(page int) (geom.Transform, error) {
	return v.CalculatePageMatrix(page, geom.Point{}, AnchorTopLeft, 0)
}

// GoToPage jumps the viewport to the page-fit view of page.
func (v *Viewer) GoToPage(page int) error {
	tr, err := v.CalculatePageFitMatrix(page)
	if err != nil {
		return err
	}
	return v.view.SetTransform(tr)
}
