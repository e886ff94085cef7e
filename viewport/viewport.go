// Package viewport tracks the pan/zoom transform mapping document space to
// screen space. The tracker is the single source of truth for the current
// transform; every mutation bumps a version counter and posts a coalesced
// change notification, so a burst of mutations during a drag gesture wakes
// the consumer at most once per drain.
package viewport

import (
	"fmt"
	"math"
	"sync"

	"github.com/wudi/pdfview/geom"
	"github.com/wudi/pdfview/observability"
)

type Tracker struct {
	log observability.Logger

	mu          sync.RWMutex
	transform   geom.Transform
	viewSize    geom.Size // screen pixels
	contentSize geom.Size // document units
	version     uint64

	changes chan struct{}
}

type Option func(*Tracker)

func WithLogger(log observability.Logger) Option {
	return func(t *Tracker) { t.log = log }
}

func New(viewSize geom.Size, opts ...Option) *Tracker {
	t := &Tracker{
		log:       observability.NopLogger{},
		transform: geom.IdentityTransform(),
		viewSize:  viewSize,
		changes:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Changes is the coalesced notification channel. It holds at most one
// pending notification regardless of how many mutations occurred since the
// last receive.
func (t *Tracker) Changes() <-chan struct{} { return t.changes }

func (t *Tracker) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *Tracker) Transform() geom.Transform {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.transform
}

func (t *Tracker) ViewSize() geom.Size {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.viewSize
}

// SetContentSize records the document extent used for offset clamping.
func (t *Tracker) SetContentSize(s geom.Size) {
	t.mu.Lock()
	t.contentSize = s
	t.transform.Offset = t.clampOffset(t.transform.Offset, t.transform.Scale)
	t.bumpLocked()
	t.mu.Unlock()
}

func (t *Tracker) SetViewSize(s geom.Size) error {
	if s.IsEmpty() {
		return fmt.Errorf("view size %+v must be positive", s)
	}
	t.mu.Lock()
	t.viewSize = s
	t.transform.Offset = t.clampOffset(t.transform.Offset, t.transform.Scale)
	t.bumpLocked()
	t.mu.Unlock()
	return nil
}

// SetTransform replaces the transform, clamping the offset to the content
// bounds.
func (t *Tracker) SetTransform(tr geom.Transform) error {
	if tr.Scale <= 0 || math.IsNaN(tr.Scale) || math.IsInf(tr.Scale, 0) {
		return fmt.Errorf("scale %v must be positive and finite", tr.Scale)
	}
	t.mu.Lock()
	tr.Offset = t.clampOffset(tr.Offset, tr.Scale)
	t.transform = tr
	t.bumpLocked()
	t.mu.Unlock()
	return nil
}

// Pan shifts the offset by delta screen pixels.
func (t *Tracker) Pan(delta geom.Point) {
	t.mu.Lock()
	t.transform.Offset = t.clampOffset(t.transform.Offset.Add(delta), t.transform.Scale)
	t.bumpLocked()
	t.mu.Unlock()
}

// ZoomMatrix computes the transform that changes the scale to targetScale
// while keeping the document point under the screen position center fixed,
// clamped to the content bounds. It does not mutate the tracker.
func (t *Tracker) ZoomMatrix(targetScale float64, center geom.Point) (geom.Transform, error) {
	if targetScale <= 0 || math.IsNaN(targetScale) || math.IsInf(targetScale, 0) {
		return geom.Transform{}, fmt.Errorf("scale %v must be positive and finite", targetScale)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	ratio := targetScale / t.transform.Scale
	offset := t.transform.Offset.Add(center).Mul(ratio).Sub(center)
	return geom.Transform{
		Offset: t.clampOffset(offset, targetScale),
		Scale:  targetScale,
	}, nil
}

// ZoomAbout applies ZoomMatrix to the tracker.
func (t *Tracker) ZoomAbout(targetScale float64, center geom.Point) error {
	tr, err := t.ZoomMatrix(targetScale, center)
	if err != nil {
		return err
	}
	return t.SetTransform(tr)
}

// ExposedRect returns the document-space rectangle currently visible,
// expanded by inflate document-space units on every side.
func (t *Tracker) ExposedRect(inflate float64) geom.Rect {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.transform.Scale
	r := geom.Rect{
		X: t.transform.Offset.X / s,
		Y: t.transform.Offset.Y / s,
		W: t.viewSize.W / s,
		H: t.viewSize.H / s,
	}
	if inflate != 0 {
		r = r.Inflate(inflate)
	}
	return r
}

// clampOffset keeps the viewport within [0, content-view] on each axis
// independently, never negative. Caller holds the lock.
func (t *Tracker) clampOffset(offset geom.Point, scale float64) geom.Point {
	maxX := t.contentSize.W*scale - t.viewSize.W
	maxY := t.contentSize.H*scale - t.viewSize.H
	return geom.Point{
		X: math.Min(math.Max(offset.X, 0), math.Max(maxX, 0)),
		Y: math.Min(math.Max(offset.Y, 0), math.Max(maxY, 0)),
	}
}

// bumpLocked increments the version and posts a coalesced notification.
// Caller holds the lock.
func (t *Tracker) bumpLocked() {
	t.version++
	select {
	case t.changes <- struct{}{}:
	default:
	}
}
