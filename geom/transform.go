package geom

import (
	"errors"
	"math"
)

// Transform maps document coordinates to screen coordinates by a uniform
// scale followed by a scroll offset: screen = doc*Scale - Offset. The offset
// is the scroll position in screen pixels and is never negative.
type Transform struct {
	Offset Point
	Scale  float64
}

func IdentityTransform() Transform { return Transform{Scale: 1} }

func (t Transform) Apply(p Point) Point {
	return Point{p.X*t.Scale - t.Offset.X, p.Y*t.Scale - t.Offset.Y}
}

func (t Transform) ApplyRect(r Rect) Rect {
	tl := t.Apply(Point{r.X, r.Y})
	return Rect{tl.X, tl.Y, r.W * t.Scale, r.H * t.Scale}
}

// Unapply maps a screen point back to document coordinates.
func (t Transform) Unapply(p Point) Point {
	return Point{(p.X + t.Offset.X) / t.Scale, (p.Y + t.Offset.Y) / t.Scale}
}

// Matrix returns the equivalent affine matrix.
func (t Transform) Matrix() Matrix {
	return Matrix{t.Scale, 0, 0, t.Scale, -t.Offset.X, -t.Offset.Y}
}

// Matrix is a 2D affine transform in the order [a b c d e f], mapping
// (x, y) to (a*x + c*y + e, b*x + d*y + f).
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

func (m Matrix) Transform(p Point) Point {
	return Point{m[0]*p.X + m[2]*p.Y + m[4], m[1]*p.X + m[3]*p.Y + m[5]}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}
