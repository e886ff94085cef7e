// Package pagelayout computes each page's rectangle in document space. Pages
// whose true size is not yet known are laid out with a placeholder size
// (copied from page 1, assuming a uniform document); when a page handle
// resolves with a different size the engine re-runs the layout once.
package pagelayout

import (
	"fmt"
	"sync"

	"github.com/wudi/pdfview/geom"
	"github.com/wudi/pdfview/observability"
)

// Func lays out pages given the available viewport size and the natural page
// sizes, returning one rectangle per page in document coordinates.
type Func func(avail geom.Size, pageSizes []geom.Size, padding float64) []geom.Rect

type Direction int

const (
	Vertical Direction = iota
	Horizontal
)

// Engine is the geometry store for one document's pages.
type Engine struct {
	log       observability.Logger
	padding   float64
	direction Direction
	layoutFn  Func

	mu          sync.RWMutex
	sizes       []geom.Size // index 0 = page 1
	rects       []geom.Rect
	laidOut     bool
	contentSize geom.Size
	relayouts   int
}

type Option func(*Engine)

// WithPadding sets the gap between pages and around the content, in
// document units.
func WithPadding(p float64) Option {
	return func(e *Engine) { e.padding = p }
}

// WithDirection selects the flow direction of the default layout.
func WithDirection(d Direction) Option {
	return func(e *Engine) { e.direction = d }
}

// WithLayoutFunc replaces the default flow layout entirely.
func WithLayoutFunc(fn Func) Option {
	return func(e *Engine) { e.layoutFn = fn }
}

// WithLogger sets the engine's logger.
func WithLogger(log observability.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		log:     observability.NopLogger{},
		padding: 8,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reset prepares the engine for a document of pageCount pages, all assumed
// to have the placeholder size until corrected. Any previous layout is
// discarded.
func (e *Engine) Reset(pageCount int, placeholder geom.Size) error {
	if pageCount < 0 {
		return fmt.Errorf("negative page count %d", pageCount)
	}
	if placeholder.IsEmpty() {
		return fmt.Errorf("placeholder size %+v must be positive", placeholder)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sizes = make([]geom.Size, pageCount)
	for i := range e.sizes {
		e.sizes[i] = placeholder
	}
	e.rects = nil
	e.laidOut = false
	e.contentSize = geom.Size{}
	return nil
}

// Layout computes every page's rectangle for the given viewport size.
func (e *Engine) Layout(viewSize geom.Size) error {
	if viewSize.IsEmpty() {
		return fmt.Errorf("viewport size %+v must be positive", viewSize)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.layoutFn
	if fn == nil {
		if e.direction == Horizontal {
			fn = horizontalFlow
		} else {
			fn = verticalFlow
		}
	}
	e.rects = fn(viewSize, e.sizes, e.padding)
	if len(e.rects) != len(e.sizes) {
		return fmt.Errorf("layout produced %d rects for %d pages", len(e.rects), len(e.sizes))
	}
	e.laidOut = true
	e.relayouts++

	var cs geom.Size
	for _, r := range e.rects {
		if r.MaxX() > cs.W {
			cs.W = r.MaxX()
		}
		if r.MaxY() > cs.H {
			cs.H = r.MaxY()
		}
	}
	cs.W += e.padding
	cs.H += e.padding
	if e.direction == Horizontal && e.layoutFn == nil {
		cs.H = viewSize.H
	} else if e.layoutFn == nil {
		cs.W = viewSize.W
	}
	e.contentSize = cs

	e.log.Debug("layout computed",
		observability.Int("pages", len(e.rects)),
		observability.Float64("content_w", cs.W),
		observability.Float64("content_h", cs.H))
	return nil
}

// SetPageSize records the true natural size of a page once its handle has
// resolved. It reports whether the size differed from the value used by the
// last layout, in which case the caller must re-run Layout.
func (e *Engine) SetPageSize(pageNumber int, size geom.Size) (changed bool, err error) {
	if size.IsEmpty() {
		return false, fmt.Errorf("page %d size %+v must be positive", pageNumber, size)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if pageNumber < 1 || pageNumber > len(e.sizes) {
		return false, fmt.Errorf("page %d out of range 1..%d", pageNumber, len(e.sizes))
	}
	i := pageNumber - 1
	if e.sizes[i] == size {
		return false, nil
	}
	e.sizes[i] = size
	return true, nil
}

// PageRect returns the laid-out rectangle of pageNumber in document
// coordinates. ok is false before the first Layout call or for an
// out-of-range page.
func (e *Engine) PageRect(pageNumber int) (geom.Rect, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.laidOut || pageNumber < 1 || pageNumber > len(e.rects) {
		return geom.Rect{}, false
	}
	return e.rects[pageNumber-1], true
}

// PageSize returns the page's natural size as currently known.
func (e *Engine) PageSize(pageNumber int) (geom.Size, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if pageNumber < 1 || pageNumber > len(e.sizes) {
		return geom.Size{}, false
	}
	return e.sizes[pageNumber-1], true
}

func (e *Engine) PageCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sizes)
}

// ContentSize is the total document extent of the last layout, including
// padding.
func (e *Engine) ContentSize() geom.Size {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.contentSize
}

// Relayouts counts completed Layout passes, for tests and metrics.
func (e *Engine) Relayouts() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.relayouts
}

// verticalFlow stacks pages top to bottom at a uniform horizontal scale that
// fits the widest page into the available width minus padding. Narrower
// pages are centered.
func verticalFlow(avail geom.Size, sizes []geom.Size, padding float64) []geom.Rect {
	var maxW float64
	for _, s := range sizes {
		if s.W > maxW {
			maxW = s.W
		}
	}
	if maxW == 0 {
		return make([]geom.Rect, len(sizes))
	}
	scale := (avail.W - 2*padding) / maxW

	rects := make([]geom.Rect, len(sizes))
	y := padding
	for i, s := range sizes {
		w, h := s.W*scale, s.H*scale
		rects[i] = geom.Rect{X: padding + (maxW*scale-w)/2, Y: y, W: w, H: h}
		y += h + padding
	}
	return rects
}

// horizontalFlow is the symmetric layout, scaling by height and stacking
// left to right.
func horizontalFlow(avail geom.Size, sizes []geom.Size, padding float64) []geom.Rect {
	var maxH float64
	for _, s := range sizes {
		if s.H > maxH {
			maxH = s.H
		}
	}
	if maxH == 0 {
		return make([]geom.Rect, len(sizes))
	}
	scale := (avail.H - 2*padding) / maxH

	rects := make([]geom.Rect, len(sizes))
	x := padding
	for i, s := range sizes {
		w, h := s.W*scale, s.H*scale
		rects[i] = geom.Rect{X: x, Y: padding + (maxH*scale-h)/2, W: w, H: h}
		x += w + padding
	}
	return rects
}
