package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"

	errs "github.com/wippyai/module-bridge/errors"
	"github.com/wippyai/module-bridge/module"
	"github.com/wippyai/module-bridge/resource"
)

// instantiateHost exports every ABI function from the modbridge host
// module.
func (e *WazeroEngine) instantiateHost(ctx context.Context) error {
	builder := e.runtime.NewHostModuleBuilder(HostModule)
	for _, f := range abi {
		impl, ok := hostImpls[f.Name]
		if !ok {
			return errs.Registration(HostModule, f.Name, errs.Unsupported(errs.PhaseHost, "no implementation"))
		}
		params, results := f.Signature()
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(e.wrap(f.Name, impl), params, results).
			WithName(f.Name).
			Export(f.Name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return errs.Registration(HostModule, "*", err)
	}
	return nil
}

func (e *WazeroEngine) wrap(name string, impl func(*hostCall)) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		lib := e.libs[mod.Name()]
		if lib == nil {
			panic(errs.New(errs.PhaseGuest, errs.KindNotFound).
				Symbol(name).
				Detail("caller %q is not a loaded guest", mod.Name()).
				Build())
		}
		mem := lib.mem
		if mem == nil {
			// Still inside _initialize.
			mem = mod.ExportedMemory(MemoryExport)
		}
		impl(&hostCall{ctx: ctx, e: e, lib: lib, mem: mem, stack: stack, name: name})
	}
}

// hostCall is one call from a guest into the environment table. Invalid
// handles and out-of-bounds memory panic, which wazero turns into a trap
// of the calling guest.
type hostCall struct {
	ctx   context.Context
	e     *WazeroEngine
	lib   *guestLibrary
	mem   api.Memory
	stack []uint64
	name  string
}

func (c *hostCall) env() *module.Env {
	h := resource.Handle(uint32(c.stack[0]))
	env, ok := c.e.envs.Get(h)
	if !ok {
		panic(errs.InvalidInput(errs.PhaseGuest, fmt.Sprintf("%s: invalid environment handle %d", c.name, h)))
	}
	return env
}

func (c *hostCall) u32(i int) uint32 { return uint32(c.stack[i]) }
func (c *hostCall) i32(i int) int32 { return api.DecodeI32(c.stack[i]) }
func (c *hostCall) i64(i int) int64 { return int64(c.stack[i]) }
func (c *hostCall) f64(i int) float64 { return api.DecodeF64(c.stack[i]) }
func (c *hostCall) value(i int) module.Value { return module.Value(uint32(c.stack[i])) }
func (c *hostCall) retValue(v module.Value) { c.stack[0] = uint64(uint32(v)) }
func (c *hostCall) retU32(v uint32) { c.stack[0] = uint64(v) }
func (c *hostCall) retI32(v int32) { c.stack[0] = api.EncodeI32(v) }
func (c *hostCall) retI64(v int64) { c.stack[0] = uint64(v) }
func (c *hostCall) retF64(v float64) { c.stack[0] = api.EncodeF64(v) }
func (c *hostCall) retBool(ok bool) { c.stack[0] = boolToU64(ok) }

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// index converts a guest index to int, saturating where int is narrower
// so out-of-range indices still fail the bounds check.
func index(i int64) int {
	if i > math.MaxInt {
		return math.MaxInt
	}
	if i < math.MinInt {
		return math.MinInt
	}
	return int(i)
}

// bytes copies the (ptr, len) pair at stack[i], stack[i+1] out of guest
// memory.
func (c *hostCall) bytes(i int) []byte {
	ptr, n := c.u32(i), c.u32(i+1)
	b, ok := c.mem.Read(ptr, n)
	if !ok {
		panic(errs.OutOfBounds(errs.PhaseGuest, ptr, n))
	}
	return append([]byte(nil), b...)
}

func (c *hostCall) text(i int) string { return string(c.bytes(i)) }

// values reads a list<value> from guest memory.
func (c *hostCall) values(i int) []module.Value {
	ptr, n := c.u32(i), c.u32(i+1)
	if n == 0 {
		return nil
	}
	if uint64(n)*4 > math.MaxUint32 {
		panic(errs.OutOfBounds(errs.PhaseGuest, ptr, math.MaxUint32))
	}
	out := make([]module.Value, n)
	for j := range out {
		v, ok := c.mem.ReadUint32Le(ptr + 4*uint32(j))
		if !ok {
			panic(errs.OutOfBounds(errs.PhaseGuest, ptr, 4*n))
		}
		out[j] = module.Value(v)
	}
	return out
}

func (c *hostCall) readU32(ptr uint32) uint32 {
	v, ok := c.mem.ReadUint32Le(ptr)
	if !ok {
		panic(errs.OutOfBounds(errs.PhaseGuest, ptr, 4))
	}
	return v
}

func (c *hostCall) writeU32(ptr, v uint32) {
	if !c.mem.WriteUint32Le(ptr, v) {
		panic(errs.OutOfBounds(errs.PhaseGuest, ptr, 4))
	}
}

func (c *hostCall) write(ptr uint32, b []byte) {
	if !c.mem.Write(ptr, b) {
		panic(errs.OutOfBounds(errs.PhaseGuest, ptr, uint32(len(b))))
	}
}

// userPtr returns the guest address stored in a user pointer, or 0 when
// the pointer was not made by this guest.
func (c *hostCall) userPtr(ptr any) uint32 {
	if gp, ok := ptr.(guestPtr); ok && gp.lib == c.lib {
		return gp.ptr
	}
	return 0
}

var hostImpls = map[string]func(c *hostCall){
	"get_environment": func(c *hostCall) {
		h := resource.Handle(c.u32(0))
		ic, ok := c.e.inits.Get(h)
		if !ok {
			panic(errs.InvalidInput(errs.PhaseGuest, fmt.Sprintf("get_environment: invalid runtime handle %d", h)))
		}
		if ic.env == 0 {
			ic.env = c.e.envs.Insert(ic.rt.GetEnvironment(ic.rt))
		}
		c.retU32(uint32(ic.env))
	},

	"make_global_ref": func(c *hostCall) {
		env := c.env()
		c.retValue(env.MakeGlobalRef(env, c.value(1)))
	},
	"free_global_ref": func(c *hostCall) {
		env := c.env()
		env.FreeGlobalRef(env, c.value(1))
	},

	"non_local_exit_check": func(c *hostCall) {
		env := c.env()
		c.retI32(int32(env.NonLocalExitCheck(env)))
	},
	"non_local_exit_clear": func(c *hostCall) {
		env := c.env()
		env.NonLocalExitClear(env)
	},
	"non_local_exit_get": func(c *hostCall) {
		env := c.env()
		var sym, data module.Value
		exit := env.NonLocalExitGet(env, &sym, &data)
		if exit != module.FuncallExitReturn {
			if p := c.u32(1); p != 0 {
				c.writeU32(p, uint32(sym))
			}
			if p := c.u32(2); p != 0 {
				c.writeU32(p, uint32(data))
			}
		}
		c.retI32(int32(exit))
	},
	"non_local_exit_signal": func(c *hostCall) {
		env := c.env()
		env.NonLocalExitSignal(env, c.value(1), c.value(2))
	},
	"non_local_exit_throw": func(c *hostCall) {
		env := c.env()
		env.NonLocalExitThrow(env, c.value(1), c.value(2))
	},

	"make_function": func(c *hostCall) {
		env := c.env()
		name, doc := c.text(3), c.text(5)
		if env.NonLocalExitCheck(env) != module.FuncallExitReturn {
			c.retValue(module.Nil)
			return
		}
		g, err := c.lib.guestFunc(name, c.stack[7])
		if err != nil {
			module.ReportError(env, err)
			c.retValue(module.Nil)
			return
		}
		c.retValue(env.MakeFunction(env, int(c.i32(1)), int(c.i32(2)), c.lib.call, doc, g))
	},
	"funcall": func(c *hostCall) {
		env := c.env()
		c.retValue(env.Funcall(env, c.value(1), c.values(2)))
	},
	"intern": func(c *hostCall) {
		env := c.env()
		c.retValue(env.Intern(env, c.text(1)))
	},
	"type_of": func(c *hostCall) {
		env := c.env()
		c.retValue(env.TypeOf(env, c.value(1)))
	},
	"is_not_nil": func(c *hostCall) {
		env := c.env()
		c.retBool(env.IsNotNil(env, c.value(1)))
	},
	"eq": func(c *hostCall) {
		env := c.env()
		c.retBool(env.Eq(env, c.value(1), c.value(2)))
	},

	"extract_integer": func(c *hostCall) {
		env := c.env()
		c.retI64(env.ExtractInteger(env, c.value(1)))
	},
	"make_integer": func(c *hostCall) {
		env := c.env()
		c.retValue(env.MakeInteger(env, c.i64(1)))
	},
	"extract_float": func(c *hostCall) {
		env := c.env()
		c.retF64(env.ExtractFloat(env, c.value(1)))
	},
	"make_float": func(c *hostCall) {
		env := c.env()
		c.retValue(env.MakeFloat(env, c.f64(1)))
	},

	"copy_string_contents": func(c *hostCall) {
		env := c.env()
		v, buf, lenPtr := c.value(1), c.u32(2), c.u32(3)
		if buf == 0 {
			var n int
			ok := env.CopyStringContents(env, v, nil, &n)
			if ok {
				c.writeU32(lenPtr, uint32(n))
			}
			c.retBool(ok)
			return
		}
		var required int
		if !env.CopyStringContents(env, v, nil, &required) {
			c.retBool(false)
			return
		}
		// *len_ptr is guest controlled; never allocate past what the copy needs.
		n := int(int32(c.readU32(lenPtr)))
		tmp := make([]byte, min(max(n, 0), required))
		ok := env.CopyStringContents(env, v, tmp, &n)
		if ok {
			c.write(buf, tmp[:n])
		}
		c.writeU32(lenPtr, uint32(n))
		c.retBool(ok)
	},
	"make_string": func(c *hostCall) {
		env := c.env()
		c.retValue(env.MakeString(env, c.bytes(1)))
	},

	"make_user_ptr": func(c *hostCall) {
		env := c.env()
		ptr := guestPtr{lib: c.lib, ptr: c.u32(2)}
		c.retValue(env.MakeUserPtr(env, c.lib.finalizer(c.u32(1)), ptr))
	},
	"get_user_ptr": func(c *hostCall) {
		env := c.env()
		c.retU32(c.userPtr(env.GetUserPtr(env, c.value(1))))
	},
	"set_user_ptr": func(c *hostCall) {
		env := c.env()
		env.SetUserPtr(env, c.value(1), guestPtr{lib: c.lib, ptr: c.u32(2)})
	},
	"get_user_finalizer": func(c *hostCall) {
		env := c.env()
		var fin uint32
		if f, ok := env.GetUserFinalizer(env, c.value(1)).(*guestFinalizer); ok && f.lib == c.lib {
			fin = f.fin
		}
		c.retU32(fin)
	},
	"set_user_finalizer": func(c *hostCall) {
		env := c.env()
		env.SetUserFinalizer(env, c.value(1), c.lib.finalizer(c.u32(2)))
	},

	"vec_set": func(c *hostCall) {
		env := c.env()
		env.VecSet(env, c.value(1), index(c.i64(2)), c.value(3))
	},
	"vec_get": func(c *hostCall) {
		env := c.env()
		c.retValue(env.VecGet(env, c.value(1), index(c.i64(2))))
	},
	"vec_size": func(c *hostCall) {
		env := c.env()
		c.retI64(int64(env.VecSize(env, c.value(1))))
	},
}
