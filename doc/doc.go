// Package doc defines the document-side contracts the viewer consumes and the
// handle table that owns open documents. The viewer never parses PDF content
// itself; a Provider (for example the go-fitz adapter in render/fitz) supplies
// page counts, page handles and natural page sizes.
package doc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/wudi/pdfview/geom"
	"github.com/wudi/pdfview/observability"
)

var (
	ErrPageOutOfRange  = errors.New("page number out of range")
	ErrClosed          = errors.New("document closed")
	ErrUnknownDocument = errors.New("unknown document id")
	ErrNoFactory       = errors.New("registry has no provider factory")
)

// PageHandle is an opened page. Handles are owned by the Document that opened
// them and stay valid until the document is closed.
type PageHandle interface {
	// PageNumber is the 1-based page number this handle was opened for.
	PageNumber() int
	// Size returns the page's natural size in points.
	Size() geom.Size
}

// Provider supplies pages of one document. OpenPage may be slow (I/O, native
// library); the Document wrapper guarantees it is called at most once per
// page.
type Provider interface {
	PageCount() int
	OpenPage(ctx context.Context, pageNumber int) (PageHandle, error)
	Close() error
}

// Factory creates providers from the two raw document sources the viewer
// supports directly.
type Factory interface {
	FromFile(path string) (Provider, error)
	FromBytes(data []byte) (Provider, error)
}

// Document wraps a Provider with an at-most-once page-open guarantee.
// Concurrent requests for the same page share one OpenPage call, and both
// results and failures are cached: a page whose open failed stays permanently
// unavailable for the document's lifetime.
type Document struct {
	id       ID
	provider Provider
	log      observability.Logger

	group singleflight.Group

	mu     sync.RWMutex
	closed bool
	pages  map[int]PageHandle
	failed map[int]error
}

func newDocument(id ID, p Provider, log observability.Logger) *Document {
	return &Document{
		id:       id,
		provider: p,
		log:      log,
		pages:    make(map[int]PageHandle),
		failed:   make(map[int]error),
	}
}

func (d *Document) ID() ID { return d.id }

// Provider returns the underlying provider, letting callers discover
// optional capabilities such as rendering.
func (d *Document) Provider() Provider { return d.provider }

func (d *Document) PageCount() int { return d.provider.PageCount() }

// Page returns the handle for pageNumber, opening it on first use. The open
// call is shared between concurrent callers and never repeated, not even
// after a failure.
func (d *Document) Page(ctx context.Context, pageNumber int) (PageHandle, error) {
	if pageNumber < 1 || pageNumber > d.provider.PageCount() {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, pageNumber, d.provider.PageCount())
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrClosed
	}
	if h, ok := d.pages[pageNumber]; ok {
		d.mu.RUnlock()
		return h, nil
	}
	if err, ok := d.failed[pageNumber]; ok {
		d.mu.RUnlock()
		return nil, err
	}
	d.mu.RUnlock()

	v, err, _ := d.group.Do(fmt.Sprintf("page-%d", pageNumber), func() (interface{}, error) {
		// Re-check under the write path: another flight may have finished
		// between the read unlock and this call.
		d.mu.RLock()
		if h, ok := d.pages[pageNumber]; ok {
			d.mu.RUnlock()
			return h, nil
		}
		if err, ok := d.failed[pageNumber]; ok {
			d.mu.RUnlock()
			return nil, err
		}
		d.mu.RUnlock()

		h, err := d.provider.OpenPage(ctx, pageNumber)

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			return nil, ErrClosed
		}
		if err != nil {
			d.failed[pageNumber] = err
			d.log.Warn("page open failed",
				observability.Int("page", pageNumber),
				observability.Error("error", err))
			return nil, err
		}
		d.pages[pageNumber] = h
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(PageHandle), nil
}

// Opened returns the already-open handle for pageNumber without triggering an
// open. Used by render passes that must not block on I/O.
func (d *Document) Opened(pageNumber int) (PageHandle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.pages[pageNumber]
	return h, ok
}

// Failed reports whether pageNumber's open has permanently failed.
func (d *Document) Failed(pageNumber int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.failed[pageNumber]
	return ok
}

func (d *Document) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.pages = nil
	d.failed = nil
	d.mu.Unlock()
	return d.provider.Close()
}
