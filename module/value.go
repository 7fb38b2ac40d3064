package module

import "github.com/wippyai/module-bridge/host"

// Value is an opaque handle to a host object. Handles compare equal iff the
// objects they stand for are eq. The zero Value is nil.
//
// A handle is valid until the call that produced it returns, unless the
// object is pinned with MakeGlobalRef.
type Value uint64

// Nil is the handle of the nil symbol.
const Nil Value = 0

// FuncallExit is the pending non-local exit state of an environment.
type FuncallExit int

const (
	// FuncallExitReturn means no exit is pending.
	FuncallExitReturn FuncallExit = iota
	// FuncallExitSignal means a host error is pending.
	FuncallExitSignal
	// FuncallExitThrow means an escape to a catch tag is pending.
	FuncallExitThrow
)

func (e FuncallExit) String() string {
	switch e {
	case FuncallExitReturn:
		return "return"
	case FuncallExitSignal:
		return "signal"
	case FuncallExitThrow:
		return "throw"
	default:
		return "unknown"
	}
}

// Variadic as the maximum arity accepts any number of arguments.
const Variadic = -2

// Func is a foreign function callable from host code through a module
// function object. args is valid for the duration of the call.
type Func func(env *Env, args []Value, data any) Value

// InitFunc is the module initialization entry point. A non-zero return
// fails the load.
type InitFunc func(rt *InitRuntime) int

// Finalizer is run for a user pointer after the host has reclaimed it.
type Finalizer = host.Finalizer

// Describer is implemented by user data that can name the function it
// belongs to. It takes precedence over address resolution when rendering
// a module function.
type Describer interface {
	Describe() (path, symbol string)
}

// Symbol names a module must export.
const (
	MarkerSymbol  = "plugin_is_GPL_compatible"
	InitSymbol    = "module_init"
	VersionSymbol = "module_abi_version"
)

// ABIVersion is the version of the environment table. Modules declaring a
// different major version or a newer minor version are refused.
const ABIVersion = "v1.0.0"

// Width is the bit width of the handles a module sees.
type Width int

const (
	// Width64 is used by modules running in the host process.
	Width64 Width = 64
	// Width32 is used by wasm32 guests.
	Width32 Width = 32
)

// Error symbols raised by the bridge.
var (
	QmoduleLoadFailed  = host.DefineSymbol("module-load-failed")
	QinvalidModuleCall = host.DefineSymbol("invalid-module-call")
	QinvalidArity      = host.DefineSymbol("invalid-arity")
)

func init() {
	host.DefineError(QmoduleLoadFailed, "Module load failed")
	host.DefineError(QinvalidModuleCall, "Invalid module call")
	host.DefineError(QinvalidArity, "Invalid function arity")
}
