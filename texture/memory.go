package texture

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"
)

// MemoryRegistry is a Registry backed by heap-allocated RGBA images.
type MemoryRegistry struct {
	nextID int64

	mu       sync.RWMutex
	textures map[ID]*image.RGBA
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{textures: make(map[ID]*image.RGBA)}
}

func (r *MemoryRegistry) Allocate(w, h int) (ID, error) {
	if w <= 0 || h <= 0 {
		return None, fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	id := ID(atomic.AddInt64(&r.nextID, 1))
	r.mu.Lock()
	r.textures[id] = image.NewRGBA(image.Rect(0, 0, w, h))
	r.mu.Unlock()
	return id, nil
}

func (r *MemoryRegistry) Update(id ID, src *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tex, ok := r.textures[id]
	if !ok {
		return ErrUnknownTexture
	}
	if src.Bounds().Size() != tex.Bounds().Size() {
		return fmt.Errorf("%w: source %v into texture %v", ErrBoundsExceeded, src.Bounds(), tex.Bounds())
	}
	draw.Draw(tex, tex.Bounds(), src, src.Bounds().Min, draw.Src)
	return nil
}

func (r *MemoryRegistry) UpdateSubrect(id ID, dst image.Rectangle, src *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tex, ok := r.textures[id]
	if !ok {
		return ErrUnknownTexture
	}
	if !dst.In(tex.Bounds()) {
		return fmt.Errorf("%w: %v into texture %v", ErrBoundsExceeded, dst, tex.Bounds())
	}
	if src.Bounds().Size() != dst.Size() {
		return fmt.Errorf("%w: source %v for region %v", ErrBoundsExceeded, src.Bounds(), dst)
	}
	draw.Draw(tex, dst, src, src.Bounds().Min, draw.Src)
	return nil
}

func (r *MemoryRegistry) Size(id ID) (int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tex, ok := r.textures[id]
	if !ok {
		return 0, 0, ErrUnknownTexture
	}
	b := tex.Bounds()
	return b.Dx(), b.Dy(), nil
}

func (r *MemoryRegistry) Dispose(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.textures[id]; !ok {
		return ErrUnknownTexture
	}
	delete(r.textures, id)
	return nil
}

// Image returns the backing image for id, for composition and tests.
func (r *MemoryRegistry) Image(id ID) (*image.RGBA, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tex, ok := r.textures[id]
	return tex, ok
}

// Count reports the number of live textures.
func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.textures)
}
