// Package fitz adapts go-fitz (MuPDF) to the viewer's document and renderer
// contracts. It is the only package with a cgo dependency; embedders with
// their own native rasterizer never need to import it.
package fitz

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"sync"

	gofitz "github.com/gen2brain/go-fitz"

	"github.com/wudi/pdfview/doc"
	"github.com/wudi/pdfview/geom"
	"github.com/wudi/pdfview/render"
)

// Factory implements doc.Factory for PDF files and buffers.
type Factory struct{}

func (Factory) FromFile(path string) (doc.Provider, error) {
	d, err := gofitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return newProvider(d), nil
}

func (Factory) FromBytes(data []byte) (doc.Provider, error) {
	d, err := gofitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open memory document: %w", err)
	}
	return newProvider(d), nil
}

// Provider implements both doc.Provider and render.Renderer on top of one
// MuPDF document. MuPDF contexts are not safe for concurrent use, so all
// calls serialize on an internal mutex.
type Provider struct {
	mu    sync.Mutex
	fdoc  *gofitz.Document
	pages int
}

func newProvider(d *gofitz.Document) *Provider {
	return &Provider{fdoc: d, pages: d.NumPage()}
}

func (p *Provider) PageCount() int { return p.pages }

func (p *Provider) OpenPage(ctx context.Context, pageNumber int) (doc.PageHandle, error) {
	if pageNumber < 1 || pageNumber > p.pages {
		return nil, fmt.Errorf("%w: %d of %d", doc.ErrPageOutOfRange, pageNumber, p.pages)
	}
	p.mu.Lock()
	bounds, err := p.fdoc.Bound(pageNumber - 1)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("page %d bounds: %w", pageNumber, err)
	}
	return &pageHandle{
		page: pageNumber,
		size: geom.Size{W: float64(bounds.Dx()), H: float64(bounds.Dy())},
	}, nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fdoc.Close()
}

// RenderSubrect rasterizes the requested sub-rectangle. go-fitz only renders
// whole pages, so the page is rendered at the scale implied by the full size
// and the sub-rectangle cropped out.
func (p *Provider) RenderSubrect(ctx context.Context, req render.Request) (*image.RGBA, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, ok := req.Page.(*pageHandle)
	if !ok {
		return nil, fmt.Errorf("page handle %T was not opened by this provider", req.Page)
	}

	dpi := 72 * float64(req.FullWidth) / h.size.W

	p.mu.Lock()
	full, err := p.fdoc.ImageDPI(h.page-1, dpi)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", h.page, err)
	}

	out := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	if req.BackgroundFill {
		for i := range out.Pix {
			out.Pix[i] = 0xff
		}
	}
	src := image.Rect(req.X, req.Y, req.X+req.Width, req.Y+req.Height).
		Intersect(full.Bounds())
	draw.Draw(out, image.Rect(0, 0, src.Dx(), src.Dy()), full, src.Min, draw.Src)
	return out, nil
}

type pageHandle struct {
	page int
	size geom.Size
}

func (h *pageHandle) PageNumber() int { return h.page }
func (h *pageHandle) Size() geom.Size { return h.size }
