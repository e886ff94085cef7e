// Package render defines the rasterizer contract the viewer issues its
// asynchronous work against. The renderer receives a page handle and a
// device-pixel sub-rectangle of the page at a target full size; the fitz
// subpackage adapts MuPDF to this interface.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/wudi/pdfview/doc"
)

var ErrNilPage = errors.New("render request without page handle")

// Request describes one rasterization of a page sub-rectangle.
//
// FullWidth and FullHeight are the dimensions of the complete page at the
// target scale, in device pixels. X, Y, Width and Height select the
// sub-rectangle to produce within that full-size page. Width and Height
// default to the remainder of the page when zero; everything else is
// validated strictly.
type Request struct {
	Page doc.PageHandle

	X, Y          int
	Width, Height int

	FullWidth, FullHeight int

	// BackgroundFill fills the buffer with opaque white before drawing.
	// PDF pages have no intrinsic background, so this is on by default.
	BackgroundFill bool
}

// NewRequest returns a request for the page's full area at its natural pixel
// size with background fill enabled.
func NewRequest(page doc.PageHandle) Request {
	return Request{Page: page, BackgroundFill: true}
}

// Normalize applies the documented defaults in place and validates the
// request. Zero FullWidth/FullHeight default to the page's natural size;
// zero Width/Height default to the full page. Negative values and
// out-of-page sub-rectangles are programmer errors.
func (r *Request) Normalize() error {
	if r.Page == nil {
		return ErrNilPage
	}
	if r.X < 0 || r.Y < 0 || r.Width < 0 || r.Height < 0 || r.FullWidth < 0 || r.FullHeight < 0 {
		return fmt.Errorf("negative render geometry: x=%d y=%d w=%d h=%d full=%dx%d",
			r.X, r.Y, r.Width, r.Height, r.FullWidth, r.FullHeight)
	}
	size := r.Page.Size()
	if r.FullWidth == 0 {
		r.FullWidth = int(size.W)
	}
	if r.FullHeight == 0 {
		r.FullHeight = int(size.H)
	}
	if r.Width == 0 {
		r.Width = r.FullWidth - r.X
	}
	if r.Height == 0 {
		r.Height = r.FullHeight - r.Y
	}
	if r.X+r.Width > r.FullWidth || r.Y+r.Height > r.FullHeight {
		return fmt.Errorf("sub-rectangle (%d,%d %dx%d) exceeds full page %dx%d",
			r.X, r.Y, r.Width, r.Height, r.FullWidth, r.FullHeight)
	}
	return nil
}

// Renderer rasterizes page sub-rectangles. Implementations may run on worker
// goroutines and must be safe to call concurrently for different pages; the
// viewer serializes requests per page and per overlay slot itself.
type Renderer interface {
	RenderSubrect(ctx context.Context, req Request) (*image.RGBA, error)
}

// Func adapts a function to the Renderer interface.
type Func func(ctx context.Context, req Request) (*image.RGBA, error)

func (f Func) RenderSubrect(ctx context.Context, req Request) (*image.RGBA, error) {
	return f(ctx, req)
}
