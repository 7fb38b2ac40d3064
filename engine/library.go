package engine

import (
	"context"
	"encoding/binary"
	"slices"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	errs "github.com/wippyai/module-bridge/errors"
	"github.com/wippyai/module-bridge/module"
	"github.com/wippyai/module-bridge/resource"
)

// guestLibrary is an instantiated guest. It implements dynlib.Library.
type guestLibrary struct {
	e     *WazeroEngine
	mod   api.Module
	mem   api.Memory // the exported "memory"
	alloc *allocator
	ctx   context.Context
	path  string
	name  string // unique instance name
}

func (l *guestLibrary) Path() string { return l.path }

func (l *guestLibrary) HandleWidth() int { return int(module.Width32) }

// Lookup resolves the module symbols to Go values the loader accepts:
// the marker to true, module_init to a module.InitFunc and the version
// global to the NUL-terminated string it points at. Other names resolve
// to their api.Function.
func (l *guestLibrary) Lookup(name string) (any, error) {
	if l.mod == nil || l.mod.IsClosed() {
		return nil, errs.Closed(errs.PhaseResolve, l.path)
	}
	switch name {
	case module.MarkerSymbol:
		if l.mod.ExportedFunction(name) == nil && l.mod.ExportedGlobal(name) == nil {
			return nil, errs.SymbolNotFound(l.path, name)
		}
		return true, nil
	case module.InitSymbol:
		if err := l.checkSignature(name, GuestInit); err != nil {
			return nil, err
		}
		return module.InitFunc(l.init), nil
	case module.VersionSymbol:
		return l.version()
	}
	if f := l.mod.ExportedFunction(name); f != nil {
		return f, nil
	}
	return nil, errs.SymbolNotFound(l.path, name)
}

// checkSignature verifies the export name has the core signature of want.
func (l *guestLibrary) checkSignature(name string, want ABIFunc) error {
	def, ok := l.mod.ExportedFunctionDefinitions()[name]
	if !ok {
		return errs.SymbolNotFound(l.path, name)
	}
	params, results := want.Signature()
	if !slices.Equal(def.ParamTypes(), params) || !slices.Equal(def.ResultTypes(), results) {
		return errs.New(errs.PhaseResolve, errs.KindIncompatible).
			Path(l.path).
			Symbol(name).
			Detail("signature does not match %s", want.WIT()).
			Build()
	}
	return nil
}

// version reads the ABI version string the exported global points at.
func (l *guestLibrary) version() (any, error) {
	g := l.mod.ExportedGlobal(module.VersionSymbol)
	if g == nil {
		return nil, errs.SymbolNotFound(l.path, module.VersionSymbol)
	}
	if g.Type() != api.ValueTypeI32 {
		return nil, errs.SymbolType(l.path, module.VersionSymbol, g.Type(), "i32 global")
	}
	return l.cstring(uint32(g.Get()))
}

// cstring reads a NUL-terminated string from guest memory.
func (l *guestLibrary) cstring(ptr uint32) (string, error) {
	mem := l.mem
	for end := ptr; ; end++ {
		b, ok := mem.ReadByte(end)
		if !ok {
			return "", errs.OutOfBounds(errs.PhaseResolve, ptr, end-ptr+1)
		}
		if b == 0 {
			s, _ := mem.Read(ptr, end-ptr)
			return string(s), nil
		}
	}
}

// initCall is the state of one module_init call, reachable from the guest
// through its runtime handle.
type initCall struct {
	rt  *module.InitRuntime
	env resource.Handle
}

func (l *guestLibrary) init(rt *module.InitRuntime) int {
	ic := &initCall{rt: rt}
	h := l.e.inits.Insert(ic)
	defer func() {
		l.e.inits.Remove(h)
		if ic.env != 0 {
			l.e.envs.Remove(ic.env)
		}
	}()

	res, err := l.mod.ExportedFunction(module.InitSymbol).Call(l.ctx, uint64(h))
	if err != nil {
		env := rt.GetEnvironment(rt)
		module.ReportError(env, errs.Trap(module.InitSymbol, err))
		return 0
	}
	return int(api.DecodeI32(res[0]))
}

// guestFunc is the user data of a module function backed by a guest
// export.
type guestFunc struct {
	lib    *guestLibrary
	export string
	data   uint64
}

func (g *guestFunc) Describe() (path, symbol string) { return g.lib.path, g.export }

func (l *guestLibrary) guestFunc(export string, data uint64) (*guestFunc, error) {
	if err := l.checkSignature(export, GuestFunc); err != nil {
		return nil, err
	}
	return &guestFunc{lib: l, export: export, data: data}, nil
}

// call is the module.Func of every guest function. It hands the guest an
// environment handle and the argument handles in guest memory.
func (l *guestLibrary) call(env *module.Env, args []module.Value, data any) module.Value {
	g := data.(*guestFunc)
	if l.mod.IsClosed() {
		module.ReportError(env, errs.Closed(errs.PhaseGuest, l.path))
		return module.Nil
	}

	h := l.e.envs.Insert(env)
	defer l.e.envs.Remove(h)

	var ptr, size uint32
	if len(args) > 0 {
		size = uint32(4 * len(args))
		var err error
		ptr, err = l.alloc.Alloc(l.ctx, size, 4)
		if err != nil {
			module.ReportError(env, errs.AllocationFailed(errs.PhaseGuest, size, err))
			return module.Nil
		}
		defer l.alloc.Free(l.ctx, ptr, size, 4)
		buf := make([]byte, size)
		for i, a := range args {
			binary.LittleEndian.PutUint32(buf[4*i:], uint32(a))
		}
		if !l.mem.Write(ptr, buf) {
			module.ReportError(env, errs.OutOfBounds(errs.PhaseGuest, ptr, size))
			return module.Nil
		}
	}

	// A fresh api.Function per call keeps reentrant calls independent.
	fn := l.mod.ExportedFunction(g.export)
	res, err := fn.Call(l.ctx, uint64(h), uint64(ptr), uint64(len(args)), g.data)
	if err != nil {
		Logger().Debug("guest trapped", zap.String("path", l.path), zap.String("function", g.export), zap.Error(err))
		module.ReportError(env, errs.Trap(g.export, err))
		return module.Nil
	}
	return module.Value(uint32(res[0]))
}

// guestPtr is the user pointer of a guest: an address in its memory.
type guestPtr struct {
	lib *guestLibrary
	ptr uint32
}

// guestFinalizer runs module_finalize(fin, ptr) in the owning guest.
type guestFinalizer struct {
	lib *guestLibrary
	fin uint32
}

func (l *guestLibrary) finalizer(fin uint32) module.Finalizer {
	if fin == 0 {
		return nil
	}
	return &guestFinalizer{lib: l, fin: fin}
}

func (f *guestFinalizer) Finalize(ptr any) {
	l := f.lib
	gp, ok := ptr.(guestPtr)
	if !ok || gp.lib != l || l.mod == nil || l.mod.IsClosed() {
		return
	}
	fn := l.mod.ExportedFunction(FinalizeExport)
	if fn == nil {
		Logger().Warn("guest has finalizers but no "+FinalizeExport, zap.String("path", l.path))
		return
	}
	if _, err := fn.Call(l.ctx, uint64(f.fin), uint64(gp.ptr)); err != nil {
		Logger().Warn("guest finalizer trapped",
			zap.String("path", l.path),
			zap.Uint32("fin", f.fin),
			zap.Error(err))
	}
}

// Close closes the guest instance.
func (l *guestLibrary) Close() error {
	delete(l.e.libs, l.name)
	if l.mod == nil {
		return nil
	}
	return l.mod.Close(l.ctx)
}
