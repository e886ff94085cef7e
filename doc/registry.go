package doc

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/wudi/pdfview/observability"
)

// ID identifies an open document within a Registry.
type ID string

// Registry is the handle table for open documents. One registry is owned by
// the root viewer object; there is no process-wide state. Closing the
// registry closes every document it owns.
type Registry struct {
	log     observability.Logger
	factory Factory

	mu   sync.Mutex
	docs map[ID]*Document
}

type RegistryOption func(*Registry)

// WithLogger sets the logger inherited by documents opened through the
// registry.
func WithLogger(log observability.Logger) RegistryOption {
	return func(r *Registry) { r.log = log }
}

// WithFactory sets the provider factory used by OpenFile and OpenBytes.
func WithFactory(f Factory) RegistryOption {
	return func(r *Registry) { r.factory = f }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		log:  observability.NopLogger{},
		docs: make(map[ID]*Document),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OpenFile opens the document at path through the registry's factory.
func (r *Registry) OpenFile(path string) (*Document, error) {
	if r.factory == nil {
		return nil, ErrNoFactory
	}
	p, err := r.factory.FromFile(path)
	if err != nil {
		return nil, err
	}
	return r.OpenProvider(p), nil
}

// OpenBytes opens a document held in memory through the registry's factory.
func (r *Registry) OpenBytes(data []byte) (*Document, error) {
	if r.factory == nil {
		return nil, ErrNoFactory
	}
	p, err := r.factory.FromBytes(data)
	if err != nil {
		return nil, err
	}
	return r.OpenProvider(p), nil
}

// OpenProvider registers a caller-supplied provider and returns its document.
func (r *Registry) OpenProvider(p Provider) *Document {
	id := ID(uuid.NewString())
	d := newDocument(id, p, r.log.With(observability.String("doc", string(id))))

	r.mu.Lock()
	r.docs[id] = d
	r.mu.Unlock()

	r.log.Info("document opened",
		observability.String("doc", string(id)),
		observability.Int("pages", p.PageCount()))
	return d
}

func (r *Registry) Get(id ID) (*Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	return d, ok
}

func (r *Registry) Close(id ID) error {
	r.mu.Lock()
	d, ok := r.docs[id]
	delete(r.docs, id)
	r.mu.Unlock()
	if !ok {
		return ErrUnknownDocument
	}
	return d.Close()
}

func (r *Registry) CloseAll() error {
	r.mu.Lock()
	docs := make([]*Document, 0, len(r.docs))
	for _, d := range r.docs {
		docs = append(docs, d)
	}
	r.docs = make(map[ID]*Document)
	r.mu.Unlock()

	var errs []error
	for _, d := range docs {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
