package runtime

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/wippyai/module-bridge/dynlib"
	"github.com/wippyai/module-bridge/engine"
	errs "github.com/wippyai/module-bridge/errors"
	"github.com/wippyai/module-bridge/host"
	"github.com/wippyai/module-bridge/module"
)

// WasmSuffix selects the wasm engine when opening a module path.
const WasmSuffix = ".wasm"

// Config configures a Runtime. Zero values select defaults.
type Config struct {
	Host   host.Config
	Engine engine.Config

	// MaxGlobalRefs bounds the global reference count of one object.
	MaxGlobalRefs int64

	// Debug enables the bridge's thread and liveness assertions.
	Debug bool

	// Static holds Go modules reachable as "static:<name>".
	// Default dynlib.Static.
	Static *dynlib.Registry

	// Plugins names Go plugin symbols explicitly. See dynlib.PluginOpener.
	Plugins map[string]string
}

// Runtime is a host interpreter with a module bridge and a wasm engine
// wired behind one opener. Paths ending in .wasm run on wazero, paths
// starting with "static:" resolve in the static registry and anything
// else is opened as a Go plugin.
//
// Like the interpreter it wraps, a Runtime is used from one goroutine.
type Runtime struct {
	in     *host.Interp
	bridge *module.Bridge
	engine *engine.WazeroEngine
}

// New creates a runtime.
func New(ctx context.Context, cfg *Config) (*Runtime, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Static == nil {
		c.Static = dynlib.Static
	}

	eng, err := engine.NewWazeroEngine(ctx, &c.Engine)
	if err != nil {
		return nil, errs.Wrap(errs.PhaseConfig, errs.KindInstantiation, err, "create wasm engine")
	}

	in := host.New(&c.Host)
	opener := dynlib.NewMux(dynlib.PluginOpener{Names: c.Plugins}).
		HandlePrefix(dynlib.StaticScheme, c.Static).
		HandleSuffix(WasmSuffix, eng)
	b := module.New(in, &module.Config{
		Opener:        opener,
		MaxGlobalRefs: c.MaxGlobalRefs,
		Debug:         c.Debug,
	})
	return &Runtime{in: in, bridge: b, engine: eng}, nil
}

// Interp returns the host interpreter.
func (r *Runtime) Interp() *host.Interp { return r.in }

// Bridge returns the module bridge.
func (r *Runtime) Bridge() *module.Bridge { return r.bridge }

// Engine returns the wasm engine.
func (r *Runtime) Engine() *engine.WazeroEngine { return r.engine }

// Load loads one module. Failures are *host.SignalError values carrying
// the host condition.
func (r *Runtime) Load(ctx context.Context, path string) error {
	return r.bridge.Load(ctx, path)
}

// LoadAll compiles the wasm modules among paths concurrently, then loads
// every module in order. It stops at the first failure.
func (r *Runtime) LoadAll(ctx context.Context, paths []string) error {
	var wasm []string
	for _, p := range paths {
		if filepath.Ext(p) == WasmSuffix {
			wasm = append(wasm, p)
		}
	}
	if len(wasm) > 1 {
		if err := r.engine.Precompile(ctx, wasm); err != nil {
			return err
		}
	}
	for _, p := range paths {
		if err := r.Load(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Call calls the function named name with args. An unknown name is not
// interned.
func (r *Runtime) Call(name string, args ...host.Object) (host.Object, error) {
	sym, ok := r.in.InternSoft(name)
	if !ok || host.IsNil(sym.Function) {
		return nil, &host.SignalError{Symbol: host.QvoidFunction, Data: host.List(&host.Symbol{Name: name})}
	}
	return r.in.Call(sym, args...)
}

// FunctionInfo describes a symbol bound to a module function.
type FunctionInfo struct {
	Name        string
	Doc         string
	MinArity    int
	MaxArity    int // module.Variadic for &rest functions
	Description string
}

// Functions returns the symbols whose function cell holds a module
// function, sorted by name.
func (r *Runtime) Functions() []FunctionInfo {
	var out []FunctionInfo
	r.in.Symbols(func(s *host.Symbol) {
		f, ok := s.Function.(*module.Function)
		if !ok {
			return
		}
		fe := f.Env()
		out = append(out, FunctionInfo{
			Name:        s.Name,
			Doc:         fe.Doc,
			MinArity:    fe.MinArity,
			MaxArity:    fe.MaxArity,
			Description: f.String(),
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close closes every loaded module and the wasm engine.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.bridge.Close()
	if cerr := r.engine.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
