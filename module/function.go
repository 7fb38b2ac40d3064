package module

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/module-bridge/dynlib"
	"github.com/wippyai/module-bridge/host"
)

// FunctionEnv describes a foreign function registered with MakeFunction.
// It is immutable once created.
type FunctionEnv struct {
	Fn       Func
	Data     any
	Doc      string
	MinArity int
	MaxArity int
}

// Function is the host object wrapping a FunctionEnv. Calling it re-enters
// the foreign function with a fresh environment.
type Function struct {
	env    *FunctionEnv
	bridge *Bridge
	width  Width
}

func (*Function) TypeName() string { return "module-function" }

// Env returns the function's description.
func (f *Function) Env() *FunctionEnv { return f.env }

// Call invokes the foreign function.
func (f *Function) Call(_ *host.Interp, args []host.Object) host.Object {
	return f.bridge.invoke(f, args)
}

func (f *Function) String() string { return f.env.describe() }

func validArity(minArity, maxArity int) bool {
	if minArity < 0 {
		return false
	}
	if maxArity < 0 {
		return maxArity == Variadic
	}
	return minArity <= maxArity
}

func (fe *FunctionEnv) accepts(n int) bool {
	return n >= fe.MinArity && (fe.MaxArity == Variadic || n <= fe.MaxArity)
}

// describe renders the function for error messages, preferring its symbol
// and library over its address.
func (fe *FunctionEnv) describe() string {
	if d, ok := fe.Data.(Describer); ok {
		path, sym := d.Describe()
		return fmt.Sprintf("#<module function %s from %s>", sym, path)
	}
	if path, sym, ok := dynlib.Addr(fe.Fn); ok {
		return fmt.Sprintf("#<module function %s from %s>", sym, path)
	}
	return fmt.Sprintf("#<module function at %#x>", reflect.ValueOf(fe.Fn).Pointer())
}

// newFunction validates the arity and wraps fn. It signals invalid-arity.
func (b *Bridge) newFunction(minArity, maxArity int, fn Func, doc string, data any, width Width) *Function {
	if !validArity(minArity, maxArity) {
		b.in.Signal(QinvalidArity, host.List(host.Fixnum(minArity), host.Fixnum(maxArity)))
	}
	if fn == nil {
		b.in.Signal(QinvalidModuleCall, host.List(host.NewString("nil function")))
	}
	b.stats.FunctionsMade++
	return &Function{
		env: &FunctionEnv{
			Fn:       fn,
			Data:     data,
			Doc:      doc,
			MinArity: minArity,
			MaxArity: maxArity,
		},
		bridge: b,
		width:  width,
	}
}

func moduleMakeFunction(env *Env, minArity, maxArity int, fn Func, doc string, data any) (r Value) {
	p := begin(env)
	if p == nil {
		return Nil
	}
	p.protect(func() {
		r = p.encode(p.bridge.newFunction(minArity, maxArity, fn, doc, data, p.codec.width))
	})
	return r
}

// invoke calls the foreign function behind f with a fresh environment and
// turns its pending exit into a host return, signal or throw. The
// environment is finalized before control leaves invoke on every path.
func (b *Bridge) invoke(f *Function, args []host.Object) host.Object {
	fe := f.env
	if !fe.accepts(len(args)) {
		b.in.Signal(host.QwrongNumberOfArguments,
			host.List(host.NewString(fe.describe()), host.Fixnum(len(args))))
	}
	b.stats.Calls++

	var (
		result  host.Object = host.Nil
		exit    FuncallExit
		tag     host.Object
		payload host.Object
	)
	func() {
		env := b.newEnv(b.codec(f.width))
		defer b.finalizeEnv(env)
		p := env.private

		vals := make([]Value, len(args))
		if !p.protect(func() {
			for i, a := range args {
				vals[i] = p.encode(a)
			}
		}) {
			exit, tag, payload = p.pending, p.exitSymbol, p.exitData
			return
		}

		ret := callForeign(env, fe, vals)
		if p.pending == FuncallExitReturn {
			p.protect(func() {
				result = p.decode(ret)
			})
		}
		exit, tag, payload = p.pending, p.exitSymbol, p.exitData
	}()

	switch exit {
	case FuncallExitSignal:
		b.in.Signal(tag, payload)
	case FuncallExitThrow:
		b.in.Throw(tag, payload)
	}
	return result
}

// callForeign runs the foreign function. Panics escaping it are recorded
// as the pending exit and never unwind into host frames.
func callForeign(env *Env, fe *FunctionEnv, args []Value) (ret Value) {
	p := env.private
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch x := r.(type) {
		case *host.SignalError, *host.ThrowError, contractViolation:
			p.capture(x)
		default:
			Logger().Warn("module function panicked",
				zap.String("function", fe.describe()),
				zap.Any("panic", r))
			p.signal1(QinvalidModuleCall,
				host.List(host.NewString(fe.describe()), host.NewString(fmt.Sprint(r))))
		}
		ret = Nil
	}()
	return fe.Fn(env, args, fe.Data)
}
