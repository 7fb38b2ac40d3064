package engine

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/module-bridge/module"
)

// HostModule is the import module guests use for the environment table.
const HostModule = "modbridge"

// Guest exports looked up by the engine.
const (
	MemoryExport   = "memory"
	FinalizeExport = "module_finalize"

	CabiRealloc = "cabi_realloc"
	CabiFree    = "cabi_free"

	// Fallback allocator names used by older toolchains.
	legacyRealloc = "canonical_abi_realloc"
	legacyAlloc   = "allocate"
	simpleAlloc   = "alloc"
	legacyDealloc = "deallocate"
	simpleFree    = "free"
)

// Type is an ABI type: a WIT type, optionally shown under an alias.
type Type struct {
	WIT   wit.Type
	Alias string
}

// Param is a named ABI parameter.
type Param struct {
	Name string
	Type Type
}

// ABIFunc declares one function of the guest ABI.
type ABIFunc struct {
	Name    string
	Params  []Param
	Results []Type
}

var (
	tEnv    = Type{WIT: wit.U32{}, Alias: "env"}
	tValue  = Type{WIT: wit.U32{}, Alias: "value"}
	tValues = Type{WIT: &wit.TypeDef{Kind: &wit.List{Type: wit.U32{}}}, Alias: "list<value>"}
	tBytes  = Type{WIT: &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}}
	tString = Type{WIT: wit.String{}}
	tBool   = Type{WIT: wit.Bool{}}
	tU32    = Type{WIT: wit.U32{}}
	tS32    = Type{WIT: wit.S32{}}
	tU64    = Type{WIT: wit.U64{}}
	tS64    = Type{WIT: wit.S64{}}
	tF64    = Type{WIT: wit.F64{}}
)

func param(name string, t Type) Param { return Param{Name: name, Type: t} }

func decl(name string, results []Type, params ...Param) ABIFunc {
	return ABIFunc{Name: name, Params: params, Results: results}
}

func ret(t Type) []Type { return []Type{t} }

var envParam = param("env", tEnv)

// abi is the environment table in the order of module.Env.
var abi = []ABIFunc{
	decl("get_environment", ret(tEnv), param("rt", tEnv)),

	decl("make_global_ref", ret(tValue), envParam, param("v", tValue)),
	decl("free_global_ref", nil, envParam, param("v", tValue)),

	decl("non_local_exit_check", ret(tS32), envParam),
	decl("non_local_exit_clear", nil, envParam),
	decl("non_local_exit_get", ret(tS32), envParam, param("sym_ptr", tU32), param("data_ptr", tU32)),
	decl("non_local_exit_signal", nil, envParam, param("sym", tValue), param("data", tValue)),
	decl("non_local_exit_throw", nil, envParam, param("tag", tValue), param("value", tValue)),

	decl("make_function", ret(tValue), envParam,
		param("min_arity", tS32), param("max_arity", tS32),
		param("name", tString), param("doc", tString), param("data", tU64)),
	decl("funcall", ret(tValue), envParam, param("fn", tValue), param("args", tValues)),
	decl("intern", ret(tValue), envParam, param("name", tString)),
	decl("type_of", ret(tValue), envParam, param("v", tValue)),
	decl("is_not_nil", ret(tBool), envParam, param("v", tValue)),
	decl("eq", ret(tBool), envParam, param("a", tValue), param("b", tValue)),

	decl("extract_integer", ret(tS64), envParam, param("v", tValue)),
	decl("make_integer", ret(tValue), envParam, param("n", tS64)),
	decl("extract_float", ret(tF64), envParam, param("v", tValue)),
	decl("make_float", ret(tValue), envParam, param("f", tF64)),

	decl("copy_string_contents", ret(tBool), envParam, param("v", tValue), param("buf", tU32), param("len_ptr", tU32)),
	decl("make_string", ret(tValue), envParam, param("s", tBytes)),

	decl("make_user_ptr", ret(tValue), envParam, param("fin", tU32), param("ptr", tU32)),
	decl("get_user_ptr", ret(tU32), envParam, param("v", tValue)),
	decl("set_user_ptr", nil, envParam, param("v", tValue), param("ptr", tU32)),
	decl("get_user_finalizer", ret(tU32), envParam, param("v", tValue)),
	decl("set_user_finalizer", nil, envParam, param("v", tValue), param("fin", tU32)),

	decl("vec_set", nil, envParam, param("vec", tValue), param("i", tS64), param("val", tValue)),
	decl("vec_get", ret(tValue), envParam, param("vec", tValue), param("i", tS64)),
	decl("vec_size", ret(tS64), envParam, param("vec", tValue)),
}

// Guest exports with a fixed signature.
var (
	// GuestInit is the signature of module_init.
	GuestInit = decl(module.InitSymbol, ret(tS32), param("rt", tEnv))

	// GuestFunc is the signature of every function registered with
	// make_function.
	GuestFunc = decl("function", ret(tValue), envParam, param("args", tValues), param("data", tU64))

	// GuestFinalize is the signature of module_finalize.
	GuestFinalize = decl(FinalizeExport, nil, param("fin", tU32), param("ptr", tU32))

	// GuestRealloc is the signature of cabi_realloc.
	GuestRealloc = decl(CabiRealloc, ret(tU32),
		param("old_ptr", tU32), param("old_size", tU32), param("align", tU32), param("new_size", tU32))
)

// ABI returns the environment table imported from HostModule.
func ABI() []ABIFunc {
	return append([]ABIFunc(nil), abi...)
}

// Lookup returns the ABI function called name.
func Lookup(name string) (ABIFunc, bool) {
	for _, f := range abi {
		if f.Name == name {
			return f, true
		}
	}
	return ABIFunc{}, false
}

// Signature flattens f to core wasm value types.
func (f ABIFunc) Signature() (params, results []api.ValueType) {
	for _, p := range f.Params {
		params = append(params, flatten(p.Type.WIT)...)
	}
	for _, r := range f.Results {
		results = append(results, flatten(r.WIT)...)
	}
	return params, results
}

// flatten maps a WIT type to its flat core representation.
func flatten(t wit.Type) []api.ValueType {
	switch t := t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return []api.ValueType{api.ValueTypeI32}
	case wit.U64, wit.S64:
		return []api.ValueType{api.ValueTypeI64}
	case wit.F32:
		return []api.ValueType{api.ValueTypeF32}
	case wit.F64:
		return []api.ValueType{api.ValueTypeF64}
	case wit.String:
		return []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	case *wit.TypeDef:
		if _, ok := t.Kind.(*wit.List); ok {
			return []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
		}
	}
	panic(fmt.Sprintf("engine: no flat form for %T", t))
}

func witName(t wit.Type) string {
	switch t := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F64:
		return "f64"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if l, ok := t.Kind.(*wit.List); ok {
			return "list<" + witName(l.Type) + ">"
		}
	}
	return fmt.Sprintf("%T", t)
}

func (t Type) String() string {
	if t.Alias != "" {
		return t.Alias
	}
	return witName(t.WIT)
}

func kebab(s string) string { return strings.ReplaceAll(s, "_", "-") }

// WIT renders f as a WIT function declaration.
func (f ABIFunc) WIT() string {
	var b strings.Builder
	b.WriteString(kebab(f.Name))
	b.WriteString(": func(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(kebab(p.Name))
		b.WriteString(": ")
		b.WriteString(p.Type.String())
	}
	b.WriteByte(')')
	if len(f.Results) == 1 {
		b.WriteString(" -> ")
		b.WriteString(f.Results[0].String())
	}
	b.WriteByte(';')
	return b.String()
}

// Describe renders the guest ABI as a WIT package.
func Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "package %s:abi@%s;\n\n", HostModule, strings.TrimPrefix(module.ABIVersion, "v"))
	b.WriteString("interface env {\n")
	b.WriteString("    type env = u32;\n")
	b.WriteString("    type value = u32;\n\n")
	for _, f := range abi {
		b.WriteString("    ")
		b.WriteString(f.WIT())
		b.WriteByte('\n')
	}
	b.WriteString("}\n\nworld guest {\n    import env;\n    use env.{env, value};\n\n")
	for _, f := range []ABIFunc{GuestInit, GuestFinalize, GuestRealloc} {
		b.WriteString("    export ")
		b.WriteString(f.WIT())
		b.WriteByte('\n')
	}
	b.WriteString("}\n")
	return b.String()
}
