package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/module-bridge/dynlib"
	"github.com/wippyai/module-bridge/engine"
	"github.com/wippyai/module-bridge/engine/guest"
	errs "github.com/wippyai/module-bridge/errors"
	"github.com/wippyai/module-bridge/host"
	"github.com/wippyai/module-bridge/module"
	"github.com/wippyai/module-bridge/wasm"
)

type fixture struct {
	t   *testing.T
	ctx context.Context
	eng *engine.WazeroEngine
	b   *module.Bridge
	in  *host.Interp
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	eng, err := engine.NewWazeroEngine(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	in := host.New(nil)
	b := module.New(in, &module.Config{
		Opener: dynlib.NewMux(nil).HandleSuffix(".wasm", eng),
	})
	t.Cleanup(func() {
		_ = b.Close()
		_ = eng.Close(ctx)
	})
	return &fixture{t: t, ctx: ctx, eng: eng, b: b, in: in}
}

func (f *fixture) write(bin []byte) string {
	f.t.Helper()
	path := filepath.Join(f.t.TempDir(), "guest.wasm")
	if err := os.WriteFile(path, bin, 0o644); err != nil {
		f.t.Fatal(err)
	}
	return path
}

func (f *fixture) load(m *guest.Module) string {
	f.t.Helper()
	path := f.write(m.Encode())
	if err := f.b.Load(f.ctx, path); err != nil {
		f.t.Fatalf("Load: %v", err)
	}
	return path
}

func (f *fixture) call(name string, args ...host.Object) (host.Object, error) {
	return f.in.Call(f.in.Intern(name), args...)
}

func (f *fixture) mustCall(name string, args ...host.Object) host.Object {
	f.t.Helper()
	got, err := f.call(name, args...)
	if err != nil {
		f.t.Fatalf("%s: %v", name, err)
	}
	return got
}

// squareGuest defines wasm-square and provides wasm-demo.
func squareGuest() *guest.Module {
	m := guest.Standard("v1.0.0", func(m *guest.Module, c *wasm.Code, env uint32) {
		m.Defun(c, env, "wasm-square", "square", 1, 1, "Square N.")
		m.Provide(c, env, "wasm-demo")
	})
	c := wasm.NewCode().LocalGet(guest.Env).LocalGet(guest.Env)
	m.Call(guest.Arg(c, 0), "extract_integer").
		LocalTee(guest.FirstLocal).
		LocalGet(guest.FirstLocal).
		Op(wasm.OpI64Mul)
	m.Call(c, "make_integer").End()
	m.Func("square", c, wasm.LocalEntry{Count: 1, ValType: wasm.ValI64})
	return m
}

func TestLoadAndCall(t *testing.T) {
	f := newFixture(t)
	path := f.load(squareGuest())

	if got := f.mustCall("wasm-square", host.Fixnum(12)); got != host.Fixnum(144) {
		t.Errorf("(wasm-square 12) = %s", host.Print(got))
	}
	if got := f.mustCall("wasm-square", host.Fixnum(1<<20)); got != host.Fixnum(1<<40) {
		t.Errorf("(wasm-square 2^20) = %s", host.Print(got))
	}
	if !f.in.Featurep(f.in.Intern("wasm-demo")) {
		t.Error("feature not provided")
	}

	mods := f.b.Modules()
	if len(mods) != 1 || mods[0].Path != path || mods[0].Width != module.Width32 || mods[0].Version != "v1.0.0" {
		t.Errorf("Modules = %+v", mods)
	}

	_, err := f.call("wasm-square", f.in.MakeString("x"))
	if !host.Signaled(err, host.QwrongTypeArgument) {
		t.Fatalf("string arg: %v", err)
	}
	if got := host.Print(err.(*host.SignalError).Data); got != `(integerp "x")` {
		t.Errorf("data = %s", got)
	}

	_, err = f.call("wasm-square")
	if !host.Signaled(err, host.QwrongNumberOfArguments) {
		t.Fatalf("no args: %v", err)
	}
	desc := host.ListItems(err.(*host.SignalError).Data)[0].(*host.String).S
	if want := "#<module function square from " + path + ">"; desc != want {
		t.Errorf("description = %q, want %q", desc, want)
	}

	if f.b.ActiveEnvs() != 0 {
		t.Errorf("%d environments still active", f.b.ActiveEnvs())
	}
	if n := f.b.Codec(module.Width32).Len(); n != 0 {
		t.Errorf("%d handles leaked", n)
	}
}

func TestLoadFailures(t *testing.T) {
	i32 := []wasm.ValType{wasm.ValI32}
	initReturning := func(code *wasm.Code) *guest.Module {
		m := guest.New()
		m.Marker()
		m.Init(code)
		return m
	}

	tests := []struct {
		name    string
		guest   func() *guest.Module
		sym     *host.Symbol
		message string
	}{
		{
			name: "no marker",
			guest: func() *guest.Module {
				m := guest.New()
				m.Init(wasm.NewCode().I32Const(0).End())
				return m
			},
			sym:     host.Qerror,
			message: "is not GPL compatible",
		},
		{
			name: "init signature",
			guest: func() *guest.Module {
				m := guest.New()
				m.Marker()
				m.Export(module.InitSymbol, wasm.FuncType{Results: i32}, wasm.NewCode().I32Const(0).End())
				return m
			},
			sym:     host.Qerror,
			message: "does not have an init function",
		},
		{
			name:    "newer ABI",
			guest:   func() *guest.Module { return guest.Standard("v2.0.0", nil) },
			sym:     host.Qerror,
			message: "not supported",
		},
		{
			name:  "nonzero rc",
			guest: func() *guest.Module { return initReturning(wasm.NewCode().I32Const(7).End()) },
			sym:   module.QmoduleLoadFailed,
		},
		{
			name:    "init traps",
			guest:   func() *guest.Module { return initReturning(wasm.NewCode().Op(wasm.OpUnreachable).End()) },
			sym:     host.Qerror,
			message: "symbol module_init",
		},
		{
			name: "unknown export",
			guest: func() *guest.Module {
				return guest.Standard("", func(m *guest.Module, c *wasm.Code, env uint32) {
					m.Defun(c, env, "wasm-missing", "missing", 0, 0, "")
				})
			},
			sym:     host.Qerror,
			message: "symbol missing",
		},
		{
			name: "init signals",
			guest: func() *guest.Module {
				return guest.Standard("", func(m *guest.Module, c *wasm.Code, env uint32) {
					c.LocalGet(env)
					m.Sym(env, "arith-error")(c)
					m.Int(env, 3)(c)
					m.Call(c, "non_local_exit_signal")
				})
			},
			sym: host.QarithError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			path := f.write(tt.guest().Encode())
			err := f.b.Load(f.ctx, path)
			var se *host.SignalError
			if !errors.As(err, &se) {
				t.Fatalf("Load error = %v", err)
			}
			if se.Symbol != tt.sym {
				t.Errorf("symbol = %s, want %s", host.Print(se.Symbol), tt.sym.Name)
			}
			if tt.message != "" && !strings.Contains(err.Error(), tt.message) {
				t.Errorf("message %q does not contain %q", err.Error(), tt.message)
			}
			if len(f.b.Modules()) != 0 {
				t.Error("failed module recorded as loaded")
			}
			if f.b.ActiveEnvs() != 0 {
				t.Errorf("%d environments still active", f.b.ActiveEnvs())
			}
			if f.eng.Libraries() != 0 {
				t.Errorf("%d guest instances left open", f.eng.Libraries())
			}
		})
	}
}

func TestLoadInvalidBinary(t *testing.T) {
	f := newFixture(t)
	path := f.write([]byte("not wasm"))
	err := f.b.Load(f.ctx, path)
	if !host.Signaled(err, host.Qerror) || !strings.HasPrefix(err.Error(), "Cannot load file "+path) {
		t.Fatalf("error = %v", err)
	}
}

// TestLoadWithoutMemory loads a guest that has every module symbol but no
// memory. It must fail as a load error before any guest memory is read.
func TestLoadWithoutMemory(t *testing.T) {
	f := newFixture(t)
	i32 := []wasm.ValType{wasm.ValI32}
	b := wasm.NewBuilder()
	b.ExportFunc(module.MarkerSymbol, b.Func(wasm.FuncType{}, wasm.NewCode().End().Body()))
	b.ExportFunc(module.InitSymbol, b.Func(wasm.FuncType{Params: i32, Results: i32}, wasm.NewCode().I32Const(0).End().Body()))
	b.ExportGlobal(module.VersionSymbol, b.Global(wasm.ValI32, false, wasm.ConstI32(16)))
	path := f.write(b.Encode())

	err := f.b.Load(f.ctx, path)
	if !host.Signaled(err, host.Qerror) || !strings.HasPrefix(err.Error(), "Cannot load file "+path) {
		t.Fatalf("error = %v", err)
	}
	if !strings.Contains(err.Error(), engine.MemoryExport) {
		t.Errorf("message %q does not name the memory export", err.Error())
	}
	if len(f.b.Modules()) != 0 || f.eng.Libraries() != 0 {
		t.Errorf("rejected guest kept: %d modules, %d libraries", len(f.b.Modules()), f.eng.Libraries())
	}
}

func TestOpenBytes(t *testing.T) {
	ctx := context.Background()
	eng, err := engine.NewWazeroEngine(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	lib, err := eng.OpenBytes(ctx, "mem.wasm", squareGuest().Encode())
	if err != nil {
		t.Fatal(err)
	}
	if lib.Path() != "mem.wasm" {
		t.Errorf("Path = %q", lib.Path())
	}
	if w, ok := lib.(dynlib.HandleWidther); !ok || w.HandleWidth() != 32 {
		t.Error("guest library does not report 32-bit handles")
	}

	if _, err := lib.Lookup(module.MarkerSymbol); err != nil {
		t.Errorf("marker: %v", err)
	}
	if sym, err := lib.Lookup(module.InitSymbol); err != nil {
		t.Errorf("init: %v", err)
	} else if _, ok := sym.(module.InitFunc); !ok {
		t.Errorf("init has type %T", sym)
	}
	if v, err := lib.Lookup(module.VersionSymbol); err != nil || v != "v1.0.0" {
		t.Errorf("version = %v, %v", v, err)
	}
	if sym, err := lib.Lookup("square"); err != nil {
		t.Errorf("square: %v", err)
	} else if _, ok := sym.(api.Function); !ok {
		t.Errorf("square has type %T", sym)
	}
	if _, err := lib.Lookup("nope"); !errors.Is(err, &errs.Error{Phase: errs.PhaseResolve, Kind: errs.KindNotFound}) {
		t.Errorf("unknown symbol: %v", err)
	}

	if err := lib.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Lookup(module.MarkerSymbol); !errors.Is(err, &errs.Error{Phase: errs.PhaseResolve, Kind: errs.KindClosed}) {
		t.Errorf("lookup after close: %v", err)
	}

	if _, err := eng.OpenBytes(ctx, "junk.wasm", []byte{0, 1, 2}); !errors.Is(err, &errs.Error{Phase: errs.PhaseCompile, Kind: errs.KindInvalidData}) {
		t.Errorf("junk: %v", err)
	}
}

func TestOpenBytes_NoMemory(t *testing.T) {
	ctx := context.Background()
	eng, err := engine.NewWazeroEngine(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	b := wasm.NewBuilder()
	b.ExportFunc("f", b.Func(wasm.FuncType{}, wasm.NewCode().End().Body()))
	_, err = eng.OpenBytes(ctx, "nomem.wasm", b.Encode())
	if !errors.Is(err, &errs.Error{Phase: errs.PhaseLink, Kind: errs.KindNotFound}) {
		t.Errorf("error = %v", err)
	}
	if eng.Libraries() != 0 {
		t.Error("rejected guest left open")
	}
}

func TestPrecompile(t *testing.T) {
	f := newFixture(t)
	paths := []string{f.write(squareGuest().Encode()), f.write(squareGuest().Encode())}
	if err := f.eng.Precompile(f.ctx, paths); err != nil {
		t.Fatal(err)
	}
	for _, p := range paths {
		if err := f.b.Load(f.ctx, p); err != nil {
			t.Fatalf("Load %s: %v", p, err)
		}
	}
	if f.eng.Libraries() != 2 {
		t.Errorf("Libraries = %d", f.eng.Libraries())
	}

	err := f.eng.Precompile(f.ctx, []string{filepath.Join(t.TempDir(), "absent.wasm")})
	if !errors.Is(err, &errs.Error{Phase: errs.PhaseOpen, Kind: errs.KindNotFound}) {
		t.Errorf("missing file: %v", err)
	}
}

func TestMemoryLimit(t *testing.T) {
	ctx := context.Background()
	eng, err := engine.NewWazeroEngine(ctx, &engine.Config{MemoryLimitPages: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	// guest modules ask for two pages.
	if _, err := eng.OpenBytes(ctx, "big.wasm", squareGuest().Encode()); err == nil {
		t.Error("guest above the memory limit was instantiated")
	}
}

func TestWASI(t *testing.T) {
	ctx := context.Background()
	eng, err := engine.NewWazeroEngine(ctx, &engine.Config{EnableWASI: true})
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	b := wasm.NewBuilder()
	i32 := wasm.ValI32
	clock := b.ImportFunc("wasi_snapshot_preview1", "clock_time_get", wasm.FuncType{
		Params:  []wasm.ValType{i32, wasm.ValI64, i32},
		Results: []wasm.ValType{i32},
	})
	b.Memory(1)
	b.ExportFunc("now", b.Func(wasm.FuncType{Results: []wasm.ValType{i32}},
		wasm.NewCode().I32Const(0).I64Const(1).I32Const(8).Call(clock).End().Body()))

	lib, err := eng.OpenBytes(ctx, "wasi.wasm", b.Encode())
	if err != nil {
		t.Fatal(err)
	}
	defer lib.Close()
	sym, err := lib.Lookup("now")
	if err != nil {
		t.Fatal(err)
	}
	res, err := sym.(api.Function).Call(ctx)
	if err != nil || res[0] != 0 {
		t.Errorf("clock_time_get = %v, %v", res, err)
	}
}
