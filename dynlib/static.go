package dynlib

import (
	"context"
	"strings"
	"sync"

	errs "github.com/wippyai/module-bridge/errors"
)

// StaticScheme prefixes paths served by a Registry.
const StaticScheme = "static:"

// Registry holds modules compiled into the program. A module registered as
// "name" is opened with the path "static:name".
type Registry struct {
	libs map[string]map[string]any
	mu   sync.RWMutex
}

// Static is the process-wide registry used by default.
var Static = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{libs: make(map[string]map[string]any)}
}

// Register adds a module with its exported symbols, replacing any module of
// the same name. It is typically called from an init function.
func (r *Registry) Register(name string, symbols map[string]any) {
	copied := make(map[string]any, len(symbols))
	for k, v := range symbols {
		copied[k] = v
	}
	r.mu.Lock()
	r.libs[name] = copied
	r.mu.Unlock()
}

// Register adds a module to the Static registry.
func Register(name string, symbols map[string]any) {
	Static.Register(name, symbols)
}

// Names returns the registered module names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.libs))
	for n := range r.libs {
		names = append(names, StaticScheme+n)
	}
	return names
}

// Open implements Opener.
func (r *Registry) Open(_ context.Context, path string) (Library, error) {
	name := strings.TrimPrefix(path, StaticScheme)
	r.mu.RLock()
	syms, ok := r.libs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.Open(path, errs.New(errs.PhaseOpen, errs.KindNotFound).
			Detail("no static module %q", name).
			Build())
	}
	return &staticLibrary{path: path, symbols: syms}, nil
}

type staticLibrary struct {
	symbols map[string]any
	path    string
}

func (l *staticLibrary) Path() string { return l.path }

func (l *staticLibrary) Lookup(name string) (any, error) {
	v, ok := l.symbols[name]
	if !ok {
		return nil, errs.SymbolNotFound(l.path, name)
	}
	return v, nil
}

func (l *staticLibrary) Close() error { return nil }

func errNoOpener(path string) error {
	return errs.Open(path, errs.Unsupported(errs.PhaseOpen, "no opener for path"))
}
