package texture

import (
	"image"
	"sync"

	"github.com/golang/snappy"
)

// RetainedStore keeps snappy-compressed copies of evicted preview pixels so
// that a page scrolled back into range can restore its preview without a
// render request. Rendered page previews compress well (mostly white), so a
// modest byte budget covers many pages. When the budget is exceeded the
// oldest entries are dropped first.
type RetainedStore struct {
	budget int64

	mu    sync.Mutex
	bytes int64
	order []int
	pages map[int]retainedEntry
}

type retainedEntry struct {
	data []byte
	w, h int
}

// NewRetainedStore creates a store bounded to budget bytes of compressed
// data. A zero or negative budget disables retention entirely.
func NewRetainedStore(budget int64) *RetainedStore {
	return &RetainedStore{
		budget: budget,
		pages:  make(map[int]retainedEntry),
	}
}

// Put retains a compressed copy of img for page. An existing entry for the
// same page is replaced.
func (s *RetainedStore) Put(page int, img *image.RGBA) {
	if s.budget <= 0 {
		return
	}
	data := snappy.Encode(nil, img.Pix)
	if int64(len(data)) > s.budget {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(page)
	s.pages[page] = retainedEntry{data: data, w: img.Bounds().Dx(), h: img.Bounds().Dy()}
	s.order = append(s.order, page)
	s.bytes += int64(len(data))
	for s.bytes > s.budget && len(s.order) > 0 {
		s.removeLocked(s.order[0])
	}
}

// Get decompresses the retained preview for page. The entry stays in the
// store until the budget pushes it out, so repeated evict/restore cycles of
// the same page cost one compression each.
func (s *RetainedStore) Get(page int) (*image.RGBA, bool) {
	s.mu.Lock()
	entry, ok := s.pages[page]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	pix, err := snappy.Decode(nil, entry.data)
	if err != nil {
		return nil, false
	}
	img := image.NewRGBA(image.Rect(0, 0, entry.w, entry.h))
	if len(pix) != len(img.Pix) {
		return nil, false
	}
	copy(img.Pix, pix)
	return img, true
}

// Remove drops the entry for page if present.
func (s *RetainedStore) Remove(page int) {
	s.mu.Lock()
	s.removeLocked(page)
	s.mu.Unlock()
}

func (s *RetainedStore) removeLocked(page int) {
	entry, ok := s.pages[page]
	if !ok {
		return
	}
	delete(s.pages, page)
	s.bytes -= int64(len(entry.data))
	for i, p := range s.order {
		if p == page {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Bytes reports the current compressed payload size.
func (s *RetainedStore) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Len reports the number of retained pages.
func (s *RetainedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}
