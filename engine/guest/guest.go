// Package guest assembles wasm guest modules against the modbridge ABI.
// It is used to build test fixtures and small demo modules without a wasm
// toolchain.
package guest

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/module-bridge/engine"
	"github.com/wippyai/module-bridge/module"
	"github.com/wippyai/module-bridge/wasm"
)

// Local indices inside a function registered with make_function.
const (
	Env   uint32 = 0
	Args  uint32 = 1
	Nargs uint32 = 2
	Data  uint32 = 3

	// FirstLocal is the index of the first declared local.
	FirstLocal uint32 = 4
)

// RT is the runtime handle parameter of module_init.
const RT uint32 = 0

const (
	pages    = 2
	dataBase = 1024
	heapBase = 65536
)

// Module is a guest under construction. It imports the whole environment
// table, defines a two-page memory and exports a bump allocator.
type Module struct {
	b     *wasm.Builder
	funcs map[string]uint32
	data  int32
}

// New returns a guest with the ABI imported and the allocator defined.
func New() *Module {
	m := &Module{b: wasm.NewBuilder(), funcs: make(map[string]uint32), data: dataBase}
	for _, f := range engine.ABI() {
		m.funcs[f.Name] = m.b.ImportFunc(engine.HostModule, f.Name, FuncType(f))
	}
	m.b.Memory(pages)

	// alloc(size) bumps the heap pointer by size rounded up to 8.
	heap := m.b.Global(wasm.ValI32, true, wasm.ConstI32(heapBase))
	alloc := m.b.Func(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		wasm.NewCode().
			GlobalGet(heap).
			GlobalGet(heap).LocalGet(0).Op(wasm.OpI32Add).
			I32Const(7).Op(wasm.OpI32Add).
			I32Const(-8).Op(wasm.OpI32And).
			GlobalSet(heap).
			End().Body())
	m.b.ExportFunc("alloc", alloc)
	return m
}

// FuncType flattens an ABI function to a core function type.
func FuncType(f engine.ABIFunc) wasm.FuncType {
	params, results := f.Signature()
	return wasm.FuncType{Params: valTypes(params), Results: valTypes(results)}
}

func valTypes(ts []api.ValueType) []wasm.ValType {
	out := make([]wasm.ValType, len(ts))
	for i, t := range ts {
		out[i] = wasm.ValType(t)
	}
	return out
}

// Import returns the function index of the ABI import name.
func (m *Module) Import(name string) uint32 {
	idx, ok := m.funcs[name]
	if !ok {
		panic(fmt.Sprintf("guest: no ABI function %q", name))
	}
	return idx
}

// Call appends a call to the ABI import name.
func (m *Module) Call(c *wasm.Code, name string) *wasm.Code {
	return c.Call(m.Import(name))
}

// Reserve sets aside n bytes of static memory and returns their address.
func (m *Module) Reserve(n int32) int32 {
	addr := m.data
	m.data += (n + 7) &^ 7
	if m.data > heapBase {
		panic("guest: static data overflows into the heap")
	}
	return addr
}

// Bytes places b in static memory.
func (m *Module) Bytes(b []byte) (ptr, n int32) {
	ptr = m.Reserve(int32(len(b)))
	if len(b) > 0 {
		m.b.Data(ptr, b)
	}
	return ptr, int32(len(b))
}

// String places s and a NUL terminator in static memory. n excludes the
// terminator.
func (m *Module) String(s string) (ptr, n int32) {
	ptr, _ = m.Bytes(append([]byte(s), 0))
	return ptr, int32(len(s))
}

// Marker exports plugin_is_GPL_compatible.
func (m *Module) Marker() {
	g := m.b.Global(wasm.ValI32, false, wasm.ConstI32(0))
	m.b.ExportGlobal(module.MarkerSymbol, g)
}

// Version exports module_abi_version pointing at v.
func (m *Module) Version(v string) {
	ptr, _ := m.String(v)
	g := m.b.Global(wasm.ValI32, false, wasm.ConstI32(ptr))
	m.b.ExportGlobal(module.VersionSymbol, g)
}

// Global defines a mutable i32 global initialized to 0 and exports it.
func (m *Module) Global(name string) uint32 {
	g := m.b.Global(wasm.ValI32, true, wasm.ConstI32(0))
	m.b.ExportGlobal(name, g)
	return g
}

// Export defines and exports a function of any signature.
func (m *Module) Export(name string, ft wasm.FuncType, c *wasm.Code, locals ...wasm.LocalEntry) uint32 {
	idx := m.b.Func(ft, c.Body(locals...))
	m.b.ExportFunc(name, idx)
	return idx
}

// Init exports module_init. The code sees the runtime handle in local RT
// and must leave an s32 return code.
func (m *Module) Init(c *wasm.Code, locals ...wasm.LocalEntry) {
	m.Export(module.InitSymbol, FuncType(engine.GuestInit), c, locals...)
}

// Func exports a function callable through make_function.
func (m *Module) Func(name string, c *wasm.Code, locals ...wasm.LocalEntry) {
	m.Export(name, FuncType(engine.GuestFunc), c, locals...)
}

// Finalize exports module_finalize.
func (m *Module) Finalize(c *wasm.Code, locals ...wasm.LocalEntry) {
	m.Export(engine.FinalizeExport, FuncType(engine.GuestFinalize), c, locals...)
}

// Encode returns the guest binary.
func (m *Module) Encode() []byte { return m.b.Encode() }

// Arg appends a load of argument i's handle.
func Arg(c *wasm.Code, i uint32) *wasm.Code {
	return c.LocalGet(Args).I32Load(4 * i)
}

// Push appends instructions leaving one value on the stack.
type Push func(c *wasm.Code)

// Sym pushes the handle of the interned symbol name.
func (m *Module) Sym(env uint32, name string) Push {
	ptr, n := m.String(name)
	return func(c *wasm.Code) {
		m.Call(c.LocalGet(env).I32Const(ptr).I32Const(n), "intern")
	}
}

// Str pushes the handle of a new string s.
func (m *Module) Str(env uint32, s string) Push {
	ptr, n := m.String(s)
	return func(c *wasm.Code) {
		m.Call(c.LocalGet(env).I32Const(ptr).I32Const(n), "make_string")
	}
}

// Int pushes the handle of integer n.
func (m *Module) Int(env uint32, n int64) Push {
	return func(c *wasm.Code) {
		m.Call(c.LocalGet(env).I64Const(n), "make_integer")
	}
}

// Local pushes local i.
func Local(i uint32) Push {
	return func(c *wasm.Code) { c.LocalGet(i) }
}

// ArgPush pushes the handle of argument i.
func ArgPush(i uint32) Push {
	return func(c *wasm.Code) { Arg(c, i) }
}

// Fn pushes a new module function backed by export.
func (m *Module) Fn(env uint32, export string, minArity, maxArity int32, doc string, data int64) Push {
	nptr, nlen := m.String(export)
	dptr, dlen := m.String(doc)
	return func(c *wasm.Code) {
		c.LocalGet(env).
			I32Const(minArity).I32Const(maxArity).
			I32Const(nptr).I32Const(nlen).
			I32Const(dptr).I32Const(dlen).
			I64Const(data)
		m.Call(c, "make_function")
	}
}

// Funcall appends a call of fn on args, leaving the result.
func (m *Module) Funcall(c *wasm.Code, env uint32, fn Push, args ...Push) *wasm.Code {
	var scratch int32
	if len(args) > 0 {
		scratch = m.Reserve(int32(4 * len(args)))
	}
	for i, a := range args {
		c.I32Const(scratch)
		a(c)
		c.I32Store(uint32(4 * i))
	}
	c.LocalGet(env)
	fn(c)
	c.I32Const(scratch).I32Const(int32(len(args)))
	return m.Call(c, "funcall")
}

// Defun appends (fset 'symbol <function backed by export>).
func (m *Module) Defun(c *wasm.Code, env uint32, symbol, export string, minArity, maxArity int32, doc string) *wasm.Code {
	return m.Funcall(c, env, m.Sym(env, "fset"),
		m.Sym(env, symbol),
		m.Fn(env, export, minArity, maxArity, doc, 0)).Drop()
}

// Provide appends (provide 'feature).
func (m *Module) Provide(c *wasm.Code, env uint32, feature string) *wasm.Code {
	return m.Funcall(c, env, m.Sym(env, "provide"), m.Sym(env, feature)).Drop()
}

// Standard returns a guest with the marker, the given ABI version (none
// when empty) and a module_init that fetches its environment, runs body
// with it and returns 0.
func Standard(version string, body func(m *Module, c *wasm.Code, env uint32)) *Module {
	m := New()
	m.Marker()
	if version != "" {
		m.Version(version)
	}
	c := wasm.NewCode()
	const env = RT + 1
	m.Call(c.LocalGet(RT), "get_environment").LocalSet(env)
	if body != nil {
		body(m, c, env)
	}
	c.I32Const(0).End()
	m.Init(c, wasm.LocalEntry{Count: 1, ValType: wasm.ValI32})
	return m
}
