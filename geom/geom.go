// Package geom provides the 2D primitives used throughout the viewer:
// points, sizes, rectangles and the pan/zoom view transform. Document
// coordinates are in points (72 dpi units), screen coordinates in pixels.
package geom

import "math"

type Point struct{ X, Y float64 }

func (p Point) Add(q Point) Point   { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point   { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Mul(f float64) Point { return Point{p.X * f, p.Y * f} }

func (p Point) Distance(q Point) float64 {
	dx, dy := p.X-q.X, p.Y-q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

type Size struct{ W, H float64 }

func (s Size) IsEmpty() bool      { return s.W <= 0 || s.H <= 0 }
func (s Size) Mul(f float64) Size { return Size{s.W * f, s.H * f} }
func (s Size) Max() float64       { return math.Max(s.W, s.H) }

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	X, Y, W, H float64
}

func RectFromSize(s Size) Rect { return Rect{0, 0, s.W, s.H} }

func (r Rect) MaxX() float64 { return r.X + r.W }
func (r Rect) MaxY() float64 { return r.Y + r.H }
func (r Rect) Size() Size    { return Size{r.W, r.H} }
func (r Rect) IsEmpty() bool { return r.W <= 0 || r.H <= 0 }

func (r Rect) Area() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.W * r.H
}

func (r Rect) Center() Point { return Point{r.X + r.W/2, r.Y + r.H/2} }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.MaxX() && p.Y >= r.Y && p.Y <= r.MaxY()
}

// Intersect returns the overlapping region of r and o. The result is empty
// when the rectangles do not overlap or merely touch along an edge.
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.MaxX(), o.MaxX())
	y1 := math.Min(r.MaxY(), o.MaxY())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{x0, y0, x1 - x0, y1 - y0}
}

// Intersects reports whether r and o share a region of positive area.
// A zero-area intersection does not count.
func (r Rect) Intersects(o Rect) bool {
	return !r.Intersect(o).IsEmpty()
}

// Inflate grows the rectangle by d on every side. Negative d shrinks it.
func (r Rect) Inflate(d float64) Rect {
	return Rect{r.X - d, r.Y - d, r.W + 2*d, r.H + 2*d}
}

func (r Rect) Translate(p Point) Rect {
	return Rect{r.X + p.X, r.Y + p.Y, r.W, r.H}
}

// Scale scales the rectangle's position and size about the origin.
func (r Rect) Scale(f float64) Rect {
	return Rect{r.X * f, r.Y * f, r.W * f, r.H * f}
}
