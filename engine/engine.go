package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/module-bridge/dynlib"
	errs "github.com/wippyai/module-bridge/errors"
	"github.com/wippyai/module-bridge/module"
	"github.com/wippyai/module-bridge/resource"
)

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages sets the maximum memory per guest in pages (64KB
	// each). 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableWASI instantiates wasi_snapshot_preview1 so guests built with
	// WASI toolchains can link.
	EnableWASI bool

	// Stdout and Stderr receive WASI output. Default: discarded.
	Stdout io.Writer
	Stderr io.Writer
}

// WazeroEngine runs wasm32 guest modules on wazero. It implements
// dynlib.Opener for .wasm files.
//
// Compilation is safe for concurrent use. Instantiation and every call
// into a guest happen on the interpreter goroutine.
type WazeroEngine struct {
	runtime wazero.Runtime
	cfg     Config

	table *resource.Table
	envs  resource.Typed[*module.Env]
	inits resource.Typed[*initCall]

	libs map[string]*guestLibrary
	seq  uint64

	mu       sync.Mutex
	compiled map[string]wazero.CompiledModule
}

// NewWazeroEngine creates an engine and instantiates the modbridge host
// module in it.
func NewWazeroEngine(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	e := &WazeroEngine{
		table:    resource.NewTable(),
		libs:     make(map[string]*guestLibrary),
		compiled: make(map[string]wazero.CompiledModule),
	}
	if cfg != nil {
		e.cfg = *cfg
	}
	e.envs = resource.NewTyped[*module.Env](e.table, resource.TypeEnv)
	e.inits = resource.NewTyped[*initCall](e.table, resource.TypeRuntime)
	e.table.Subscribe(resource.ObserverFunc(func(ev resource.Event) {
		if ce := Logger().Check(zap.DebugLevel, "guest handle "+ev.Type.String()); ce != nil {
			ce.Write(zap.Uint32("handle", uint32(ev.Handle)), zap.Uint32("type", ev.TypeID))
		}
	}))

	runtimeCfg := wazero.NewRuntimeConfig()
	if e.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if err := e.instantiateHost(ctx); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, err
	}
	if e.cfg.EnableWASI {
		if _, err := instantiateWASI(ctx, e.runtime); err != nil {
			_ = e.runtime.Close(ctx)
			return nil, errs.Registration("wasi_snapshot_preview1", "*", err)
		}
	}
	return e, nil
}

// HandleWidth reports that guests see 32-bit handles.
func (e *WazeroEngine) HandleWidth() int { return int(module.Width32) }

// Open compiles and instantiates the wasm file at path.
func (e *WazeroEngine) Open(ctx context.Context, path string) (dynlib.Library, error) {
	compiled, err := e.compile(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.instantiate(ctx, path, compiled)
}

// OpenBytes compiles and instantiates an in-memory guest. name is used in
// diagnostics in place of a file path.
func (e *WazeroEngine) OpenBytes(ctx context.Context, name string, bin []byte) (dynlib.Library, error) {
	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errs.Compile(name, err)
	}
	return e.instantiate(ctx, name, compiled)
}

// Precompile compiles the files at paths concurrently and caches the
// results for Open.
func (e *WazeroEngine) Precompile(ctx context.Context, paths []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		g.Go(func() error {
			_, err := e.compile(gctx, path)
			return err
		})
	}
	return g.Wait()
}

func (e *WazeroEngine) compile(ctx context.Context, path string) (wazero.CompiledModule, error) {
	e.mu.Lock()
	cached, ok := e.compiled[path]
	e.mu.Unlock()
	if ok {
		return cached, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, errs.Compile(path, err)
	}
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Open(path, err)
	}
	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errs.Compile(path, err)
	}
	Logger().Debug("compiled guest", zap.String("path", path), zap.Int("bytes", len(bin)))

	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.compiled[path]; ok {
		_ = compiled.Close(ctx)
		return prev, nil
	}
	e.compiled[path] = compiled
	return compiled, nil
}

func (e *WazeroEngine) instantiate(ctx context.Context, path string, compiled wazero.CompiledModule) (*guestLibrary, error) {
	e.seq++
	name := fmt.Sprintf("%s#%d", path, e.seq)
	lib := &guestLibrary{e: e, path: path, name: name, ctx: context.WithoutCancel(ctx)}

	modCfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize")
	if e.cfg.EnableWASI {
		if e.cfg.Stdout != nil {
			modCfg = modCfg.WithStdout(e.cfg.Stdout)
		}
		if e.cfg.Stderr != nil {
			modCfg = modCfg.WithStderr(e.cfg.Stderr)
		}
	}

	if _, ok := compiled.ExportedMemories()[MemoryExport]; !ok {
		return nil, errs.New(errs.PhaseLink, errs.KindNotFound).
			Path(path).
			Symbol(MemoryExport).
			Detail("guest does not export its memory").
			Build()
	}

	// Registered first so host calls made by _initialize resolve.
	e.libs[name] = lib
	mod, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		delete(e.libs, name)
		return nil, errs.Instantiation(path, err)
	}
	lib.mod = mod
	lib.mem = mod.ExportedMemory(MemoryExport)
	lib.alloc = newAllocator(mod)

	Logger().Debug("instantiated guest", zap.String("path", path), zap.String("name", name))
	return lib, nil
}

// Libraries returns the number of open guest libraries.
func (e *WazeroEngine) Libraries() int { return len(e.libs) }

// Close closes the wazero runtime and every guest instantiated in it.
func (e *WazeroEngine) Close(ctx context.Context) error {
	e.libs = make(map[string]*guestLibrary)
	e.mu.Lock()
	e.compiled = make(map[string]wazero.CompiledModule)
	e.mu.Unlock()
	err := e.runtime.Close(ctx)
	if cerr := e.table.Close(); err == nil {
		err = cerr
	}
	return err
}
