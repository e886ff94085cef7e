package geom

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func rectsAlmostEqual(a, b Rect) bool {
	return almostEqual(a.X, b.X) && almostEqual(a.Y, b.Y) &&
		almostEqual(a.W, b.W) && almostEqual(a.H, b.H)
}

func TestRectIntersect(t *testing.T) {
	base := Rect{0, 0, 100, 100}

	tests := []struct {
		name string
		in   Rect
		want Rect
	}{
		{"fully inside", Rect{10, 10, 20, 20}, Rect{10, 10, 20, 20}},
		{"fully outside", Rect{200, 200, 50, 50}, Rect{}},
		{"overlapping one edge", Rect{90, 10, 40, 20}, Rect{90, 10, 10, 20}},
		{"touching boundary", Rect{100, 0, 50, 50}, Rect{}},
		{"identical", Rect{0, 0, 100, 100}, Rect{0, 0, 100, 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base.Intersect(tt.in)
			if !rectsAlmostEqual(got, tt.want) {
				t.Errorf("Intersect(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRectIntersectsZeroArea(t *testing.T) {
	a := Rect{0, 0, 100, 100}
	b := Rect{100, 0, 50, 50}
	if a.Intersects(b) {
		t.Error("rectangles touching along an edge must not intersect")
	}
	if a.Intersect(b).Area() != 0 {
		t.Error("touching rectangles must have zero intersection area")
	}
}

func TestRectInflate(t *testing.T) {
	r := Rect{10, 10, 20, 20}.Inflate(5)
	want := Rect{5, 5, 30, 30}
	if !rectsAlmostEqual(r, want) {
		t.Errorf("Inflate = %v, want %v", r, want)
	}
}

func TestRectScaleAndTranslate(t *testing.T) {
	r := Rect{10, 20, 30, 40}.Scale(2).Translate(Point{-5, -5})
	want := Rect{15, 35, 60, 80}
	if !rectsAlmostEqual(r, want) {
		t.Errorf("got %v, want %v", r, want)
	}
}

func TestTransformRoundTrip(t *testing.T) {
	tr := Transform{Offset: Point{100, 250}, Scale: 1.92}
	p := Point{42, 77}
	back := tr.Unapply(tr.Apply(p))
	if !almostEqual(back.X, p.X) || !almostEqual(back.Y, p.Y) {
		t.Errorf("round trip = %v, want %v", back, p)
	}
}

func TestTransformApplyRect(t *testing.T) {
	tr := Transform{Offset: Point{10, 20}, Scale: 2}
	got := tr.ApplyRect(Rect{5, 5, 10, 10})
	want := Rect{0, -10, 20, 20}
	if !rectsAlmostEqual(got, want) {
		t.Errorf("ApplyRect = %v, want %v", got, want)
	}
}

func TestMatrixMultiplyTransform(t *testing.T) {
	// Scale then translate.
	m := Scale(2, 2).Multiply(Translate(10, 5))
	got := m.Transform(Point{3, 4})
	want := Point{16, 13}
	if !almostEqual(got.X, want.X) || !almostEqual(got.Y, want.Y) {
		t.Errorf("Transform = %v, want %v", got, want)
	}
}

func TestMatrixInverse(t *testing.T) {
	m := Scale(1.5, 1.5).Multiply(Translate(-30, 12))
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("Inverse failed: %v", err)
	}
	p := Point{7, -3}
	back := inv.Transform(m.Transform(p))
	if !almostEqual(back.X, p.X) || !almostEqual(back.Y, p.Y) {
		t.Errorf("inverse round trip = %v, want %v", back, p)
	}

	if _, err := (Matrix{0, 0, 0, 0, 1, 1}).Inverse(); err == nil {
		t.Error("expected error for singular matrix")
	}
}

func TestTransformMatrixAgreement(t *testing.T) {
	tr := Transform{Offset: Point{33, 44}, Scale: 3}
	p := Point{12, 9}
	a := tr.Apply(p)
	b := tr.Matrix().Transform(p)
	if !almostEqual(a.X, b.X) || !almostEqual(a.Y, b.Y) {
		t.Errorf("Transform.Apply %v disagrees with Matrix %v", a, b)
	}
}
