package module

import (
	"unsafe"

	"github.com/wippyai/module-bridge/host"
)

// Env is the environment handed to foreign code. Its function fields form
// the dispatch table; fields are only ever appended, so a module built
// against an older table can check Size before using a newer field.
//
// An Env is valid for the duration of the call it was passed to and must
// only be used on the interpreter goroutine.
type Env struct {
	// Size is the size of the structure in bytes.
	Size    uintptr
	private *envPrivate

	MakeGlobalRef func(env *Env, v Value) Value
	FreeGlobalRef func(env *Env, v Value)

	NonLocalExitCheck  func(env *Env) FuncallExit
	NonLocalExitClear  func(env *Env)
	NonLocalExitGet    func(env *Env, sym, data *Value) FuncallExit
	NonLocalExitSignal func(env *Env, sym, data Value)
	NonLocalExitThrow  func(env *Env, tag, value Value)

	MakeFunction func(env *Env, minArity, maxArity int, fn Func, doc string, data any) Value
	Funcall      func(env *Env, fn Value, args []Value) Value
	Intern       func(env *Env, name string) Value
	TypeOf       func(env *Env, v Value) Value
	IsNotNil     func(env *Env, v Value) bool
	Eq           func(env *Env, a, b Value) bool

	ExtractInteger func(env *Env, v Value) int64
	MakeInteger    func(env *Env, n int64) Value
	ExtractFloat   func(env *Env, v Value) float64
	MakeFloat      func(env *Env, f float64) Value

	// CopyStringContents copies the UTF-8 bytes of a string and a NUL
	// terminator into buf. With a nil buf it only stores the required
	// size in *length.
	CopyStringContents func(env *Env, v Value, buf []byte, length *int) bool
	MakeString         func(env *Env, b []byte) Value

	MakeUserPtr      func(env *Env, fin Finalizer, ptr any) Value
	GetUserPtr       func(env *Env, v Value) any
	SetUserPtr       func(env *Env, v Value, ptr any)
	GetUserFinalizer func(env *Env, v Value) Finalizer
	SetUserFinalizer func(env *Env, v Value, fin Finalizer)

	VecSet  func(env *Env, vec Value, i int, val Value)
	VecGet  func(env *Env, vec Value, i int) Value
	VecSize func(env *Env, vec Value) int
}

// EnvSize is the size of the current Env layout.
const EnvSize = unsafe.Sizeof(Env{})

// InitRuntime is passed to a module's init function.
type InitRuntime struct {
	// Size is the size of the structure in bytes.
	Size           uintptr
	private        *Env
	GetEnvironment func(rt *InitRuntime) *Env
}

// RuntimeSize is the size of the current InitRuntime layout.
const RuntimeSize = unsafe.Sizeof(InitRuntime{})

type envPrivate struct {
	bridge     *Bridge
	codec      *Codec
	exitSymbol host.Object
	exitData   host.Object
	introduced []uint64
	pending    FuncallExit
	live       bool
}

// Width returns the handle width used by env.
func (env *Env) Width() Width {
	return env.private.codec.width
}

func (b *Bridge) newEnv(c *Codec) *Env {
	env := &Env{
		Size:    EnvSize,
		private: &envPrivate{bridge: b, codec: c, live: true},

		MakeGlobalRef: moduleMakeGlobalRef,
		FreeGlobalRef: moduleFreeGlobalRef,

		NonLocalExitCheck:  moduleNonLocalExitCheck,
		NonLocalExitClear:  moduleNonLocalExitClear,
		NonLocalExitGet:    moduleNonLocalExitGet,
		NonLocalExitSignal: moduleNonLocalExitSignal,
		NonLocalExitThrow:  moduleNonLocalExitThrow,

		MakeFunction: moduleMakeFunction,
		Funcall:      moduleFuncall,
		Intern:       moduleIntern,
		TypeOf:       moduleTypeOf,
		IsNotNil:     moduleIsNotNil,
		Eq:           moduleEq,

		ExtractInteger: moduleExtractInteger,
		MakeInteger:    moduleMakeInteger,
		ExtractFloat:   moduleExtractFloat,
		MakeFloat:      moduleMakeFloat,

		CopyStringContents: moduleCopyStringContents,
		MakeString:         moduleMakeString,

		MakeUserPtr:      moduleMakeUserPtr,
		GetUserPtr:       moduleGetUserPtr,
		SetUserPtr:       moduleSetUserPtr,
		GetUserFinalizer: moduleGetUserFinalizer,
		SetUserFinalizer: moduleSetUserFinalizer,

		VecSet:  moduleVecSet,
		VecGet:  moduleVecGet,
		VecSize: moduleVecSize,
	}
	b.envs = append(b.envs, env)
	b.stats.EnvsCreated++
	return env
}

// finalizeEnv tears env down. Environments must be finalized in reverse
// order of creation.
func (b *Bridge) finalizeEnv(env *Env) {
	n := len(b.envs)
	if n == 0 || b.envs[n-1] != env {
		panic(contractViolation("environment finalized out of order"))
	}
	b.envs[n-1] = nil
	b.envs = b.envs[:n-1]

	p := env.private
	p.live = false
	p.codec.releaseEnv(p, b.refs.pinned)
	b.stats.EnvsFinalized++
}

func moduleGetEnvironment(rt *InitRuntime) *Env {
	env := rt.private
	env.private.check()
	return env
}
