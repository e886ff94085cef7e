// Package texture abstracts the GPU/platform texture plumbing the viewer
// draws into. The core only allocates, updates and disposes textures through
// the Registry interface; the in-memory implementation here backs each
// texture with an image.RGBA and is what tests and the viewdump tool use.
package texture

import (
	"errors"
	"image"
)

var (
	ErrUnknownTexture = errors.New("unknown texture id")
	ErrInvalidSize    = errors.New("texture size must be positive")
	ErrBoundsExceeded = errors.New("update exceeds texture bounds")
)

// ID identifies an allocated texture.
type ID int64

// None is the zero ID; no allocated texture ever has it.
const None ID = 0

// Registry allocates and updates textures. Implementations must be safe for
// concurrent use by different pages; the viewer serializes updates per
// texture itself.
type Registry interface {
	// Allocate creates a w×h texture with undefined contents.
	Allocate(w, h int) (ID, error)
	// Update replaces the texture's full contents. The source bounds must
	// match the texture size.
	Update(id ID, src *image.RGBA) error
	// UpdateSubrect writes src into the region dst of the texture.
	// src bounds must match dst's size.
	UpdateSubrect(id ID, dst image.Rectangle, src *image.RGBA) error
	// Size reports the texture's dimensions.
	Size(id ID) (w, h int, err error)
	// Dispose releases the texture. Disposing an unknown id is an error.
	Dispose(id ID) error
}
