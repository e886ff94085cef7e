package texture

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Downscale resamples src to w×h. Used when composing a preview texture into
// a smaller on-screen footprint and when restoring retained previews whose
// target size changed. Bilinear is enough here; previews are a low-res
// fallback by construction.
func Downscale(src *image.RGBA, w, h int) *image.RGBA {
	if b := src.Bounds(); b.Dx() == w && b.Dy() == h {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
