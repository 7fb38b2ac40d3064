package module

import (
	"context"
	"runtime"

	"github.com/wippyai/module-bridge/dynlib"
	"github.com/wippyai/module-bridge/host"
	"github.com/wippyai/module-bridge/module/internal/thread"
)

// Config configures a Bridge. Zero values select defaults.
type Config struct {
	// Opener opens module libraries. Default: static modules by "static:"
	// prefix, Go plugins otherwise.
	Opener dynlib.Opener

	// MaxGlobalRefs bounds the reference count of a single object.
	// Default host.MostPositiveFixnum.
	MaxGlobalRefs int64

	// Debug enables thread-affinity and environment-liveness assertions.
	// New then locks the calling goroutine to its OS thread, which becomes
	// the only thread allowed to use environments.
	Debug bool
}

// Stats counts bridge activity.
type Stats struct {
	EnvsCreated   uint64
	EnvsFinalized uint64
	FunctionsMade uint64
	Calls         uint64
	ModulesLoaded uint64
}

// Module records a loaded module.
type Module struct {
	Library dynlib.Library
	Path    string
	Version string
	Width   Width
}

// Bridge connects foreign modules to a host interpreter. It owns the value
// codecs, the active environment stack and the global reference table.
//
// A Bridge is used only from the goroutine that owns its interpreter.
type Bridge struct {
	in         *host.Interp
	opener     dynlib.Opener
	codecs     map[Width]*Codec
	refs       *globalRefs
	envs       []*Env
	modules    []*Module
	cfg        Config
	stats      Stats
	mainThread int
}

// New creates a bridge for in and installs the module-load builtin.
func New(in *host.Interp, cfg *Config) *Bridge {
	b := &Bridge{in: in}
	if cfg != nil {
		b.cfg = *cfg
	}
	b.opener = b.cfg.Opener
	if b.opener == nil {
		b.opener = dynlib.NewMux(dynlib.PluginOpener{}).
			HandlePrefix(dynlib.StaticScheme, dynlib.Static)
	}
	b.codecs = map[Width]*Codec{
		Width64: newCodec(in, Width64),
		Width32: newCodec(in, Width32),
	}
	b.refs = newGlobalRefs(b.cfg.MaxGlobalRefs)
	if b.cfg.Debug {
		runtime.LockOSThread()
		b.mainThread = thread.ID()
	}

	in.Defsubr("module-load", 1, 1, func(in *host.Interp, args []host.Object) host.Object {
		s, ok := args[0].(*host.String)
		if !ok {
			in.WrongType(host.Qstringp, args[0])
		}
		b.load(context.Background(), s.S)
		return host.T
	})
	return b
}

// Interp returns the host interpreter.
func (b *Bridge) Interp() *host.Interp { return b.in }

// Codec returns the codec for handles of width w.
func (b *Bridge) Codec(w Width) *Codec { return b.codec(w) }

func (b *Bridge) codec(w Width) *Codec {
	if c, ok := b.codecs[w]; ok {
		return c
	}
	return b.codecs[Width64]
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats { return b.stats }

// ActiveEnvs returns the number of live environments.
func (b *Bridge) ActiveEnvs() int { return len(b.envs) }

// GlobalRefCount returns the global reference count of o.
func (b *Bridge) GlobalRefCount(o host.Object) int64 { return b.refs.count(o) }

// Modules returns the loaded modules in load order.
func (b *Bridge) Modules() []Module {
	out := make([]Module, len(b.modules))
	for i, m := range b.modules {
		out[i] = *m
	}
	return out
}

// Function wraps fn as a host callable with the given arity, as if
// registered by a module using handles of width 64.
func (b *Bridge) Function(minArity, maxArity int, fn Func, doc string, data any) (*Function, error) {
	var f *Function
	_, err := b.in.Protect(func() host.Object {
		f = b.newFunction(minArity, maxArity, fn, doc, data, Width64)
		return f
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Call runs fn as a variadic module function on args. It is a convenience
// for embedding Go code that speaks the environment interface.
func (b *Bridge) Call(fn Func, data any, args ...host.Object) (host.Object, error) {
	f, err := b.Function(0, Variadic, fn, "", data)
	if err != nil {
		return nil, err
	}
	return b.in.Call(f, args...)
}

// Close closes the libraries of all loaded modules.
func (b *Bridge) Close() error {
	var first error
	for _, m := range b.modules {
		if err := m.Library.Close(); err != nil && first == nil {
			first = err
		}
	}
	b.modules = nil
	return first
}
