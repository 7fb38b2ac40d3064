package dynlib

import (
	"context"
	"strings"
)

// Library is an opened module library.
type Library interface {
	// Path returns the path the library was opened from.
	Path() string
	// Lookup resolves an exported symbol. Missing symbols are reported
	// with an errors.KindNotFound error.
	Lookup(name string) (any, error)
	// Close releases the library. Libraries that cannot be unloaded
	// return nil.
	Close() error
}

// Opener opens libraries by path.
type Opener interface {
	Open(ctx context.Context, path string) (Library, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Library, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Library, error) { return f(ctx, path) }

// HandleWidther is implemented by libraries whose code sees handles
// narrower than 64 bits, such as wasm32 guests.
type HandleWidther interface {
	HandleWidth() int
}

type route struct {
	opener Opener
	prefix string
	suffix string
}

// Mux dispatches Open to the first opener whose prefix or suffix matches
// the path, falling back to a default opener.
type Mux struct {
	fallback Opener
	routes   []route
}

// NewMux creates a mux with the given fallback, which may be nil.
func NewMux(fallback Opener) *Mux {
	return &Mux{fallback: fallback}
}

// HandlePrefix routes paths starting with prefix to o.
func (m *Mux) HandlePrefix(prefix string, o Opener) *Mux {
	m.routes = append(m.routes, route{prefix: prefix, opener: o})
	return m
}

// HandleSuffix routes paths ending with suffix to o.
func (m *Mux) HandleSuffix(suffix string, o Opener) *Mux {
	m.routes = append(m.routes, route{suffix: suffix, opener: o})
	return m
}

// Open implements Opener.
func (m *Mux) Open(ctx context.Context, path string) (Library, error) {
	for _, r := range m.routes {
		if r.prefix != "" && strings.HasPrefix(path, r.prefix) {
			return r.opener.Open(ctx, path)
		}
		if r.suffix != "" && strings.HasSuffix(path, r.suffix) {
			return r.opener.Open(ctx, path)
		}
	}
	if m.fallback == nil {
		return nil, errNoOpener(path)
	}
	return m.fallback.Open(ctx, path)
}
