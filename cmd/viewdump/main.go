// viewdump renders one settled viewport state of a PDF to a PNG: it opens
// the document, applies the requested pan/zoom, waits for the preview and
// overlay passes to finish and composes the resulting textures the way an
// embedding UI would.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/wudi/pdfview/geom"
	"github.com/wudi/pdfview/observability"
	"github.com/wudi/pdfview/render/fitz"
	"github.com/wudi/pdfview/texture"
	"github.com/wudi/pdfview/tilecache"
	"github.com/wudi/pdfview/viewer"
)

type options struct {
	pdfPath string
	outPath string
	width   int
	height  int
	zoom    float64
	offsetX float64
	offsetY float64
	page    int
	timeout time.Duration
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "viewdump: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "viewdump: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: go run ./cmd/viewdump [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	flag.IntVar(&opts.width, "w", 800, "Viewport width in pixels")
	flag.IntVar(&opts.height, "h", 1000, "Viewport height in pixels")
	flag.Float64Var(&opts.zoom, "zoom", 1, "Zoom scale")
	flag.Float64Var(&opts.offsetX, "x", 0, "Horizontal pan offset in pixels")
	flag.Float64Var(&opts.offsetY, "y", 0, "Vertical pan offset in pixels")
	flag.IntVar(&opts.page, "page", 0, "Jump to a page-fit view of this page (overrides -zoom/-x/-y)")
	flag.StringVar(&opts.outPath, "o", "viewdump.png", "Output PNG path")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Second, "How long to wait for rendering to settle")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing pdf path")
	}
	opts.pdfPath = flag.Arg(0)
	if opts.width <= 0 || opts.height <= 0 {
		return options{}, fmt.Errorf("viewport %dx%d must be positive", opts.width, opts.height)
	}
	if opts.zoom <= 0 {
		return options{}, fmt.Errorf("zoom %v must be positive", opts.zoom)
	}
	return opts, nil
}

func run(opts options) error {
	cfg, err := viewer.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	textures := texture.NewMemoryRegistry()
	v, err := viewer.New(
		geom.Size{W: float64(opts.width), H: float64(opts.height)},
		textures,
		viewer.WithConfig(cfg),
		viewer.WithFactory(fitz.Factory{}),
		viewer.WithLogger(observability.NewLogger(os.Stderr)),
	)
	if err != nil {
		return err
	}
	defer v.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	if err := v.OpenFile(ctx, opts.pdfPath); err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}

	if opts.page > 0 {
		if err := v.GoToPage(opts.page); err != nil {
			return err
		}
	} else {
		tr := geom.Transform{Offset: geom.Point{X: opts.offsetX, Y: opts.offsetY}, Scale: opts.zoom}
		if err := v.Viewport().SetTransform(tr); err != nil {
			return err
		}
	}

	if err := settle(ctx, v, cfg.DebounceInterval); err != nil {
		return err
	}

	out := compose(v, textures, opts.width, opts.height)
	f, err := os.Create(opts.outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	fmt.Printf("wrote %s (current page %d)\n", opts.outPath, v.CurrentPage())
	return nil
}

// settle waits until every visible page has its preview, then rides out the
// debounce window so overlays land too.
func settle(ctx context.Context, v *viewer.Viewer, debounce time.Duration) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("render did not settle: %w", err)
		}
		ready := true
		for page := range v.VisiblePageAreas() {
			s, ok := v.Tile(page)
			if !ok || (s.Status != tilecache.PreviewLoaded && s.Status != tilecache.Initializing) {
				ready = false
				break
			}
		}
		if ready {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Two debounce intervals cover the timer plus the overlay pass itself.
	select {
	case <-ctx.Done():
	case <-time.After(2*debounce + 50*time.Millisecond):
	}
	return nil
}

func compose(v *viewer.Viewer, textures *texture.MemoryRegistry, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	// White background, like paper against a pasteboard.
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i-3], out.Pix[i-2], out.Pix[i-1], out.Pix[i] = 0xee, 0xee, 0xee, 0xff
	}

	tr := v.Viewport().Transform()
	for page := range v.VisiblePageAreas() {
		s, ok := v.Tile(page)
		if !ok {
			continue
		}
		lr, ok := v.PageRect(page)
		if !ok {
			continue
		}
		zoomed := tr.ApplyRect(lr)
		if s.Preview != texture.None {
			if img, ok := textures.Image(s.Preview); ok {
				blit(out, img, zoomed)
			}
		}
		if s.HasOverlay {
			if img, ok := textures.Image(s.Overlay); ok {
				blit(out, img, s.OverlayRect.Scale(tr.Scale).Translate(geom.Point{X: zoomed.X, Y: zoomed.Y}))
			}
		}
	}
	return out
}

// blit scales src into the destination rectangle, given in screen pixels.
func blit(dst *image.RGBA, src *image.RGBA, r geom.Rect) {
	target := image.Rect(int(r.X), int(r.Y), int(r.MaxX()), int(r.MaxY()))
	xdraw.ApproxBiLinear.Scale(dst, target, src, src.Bounds(), xdraw.Src, nil)
}
