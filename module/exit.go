package module

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/module-bridge/host"
	"github.com/wippyai/module-bridge/module/internal/thread"
)

// contractViolation is raised for misuse that the bridge cannot report
// through the environment: a wrong thread, a dead environment, or
// out-of-order teardown. It is never converted into a pending exit.
type contractViolation string

func (c contractViolation) Error() string { return "module: " + string(c) }

// check enforces thread affinity and liveness when debugging is enabled.
func (p *envPrivate) check() {
	b := p.bridge
	if !b.cfg.Debug {
		return
	}
	if id := thread.ID(); id != b.mainThread {
		panic(contractViolation(fmt.Sprintf("environment used from thread %d, owner is %d", id, b.mainThread)))
	}
	if !p.live {
		panic(contractViolation("environment used after it was finalized"))
	}
}

// begin starts an environment operation. It returns nil when an exit is
// already pending, in which case the operation must return its sentinel.
func begin(env *Env) *envPrivate {
	p := env.private
	p.check()
	if p.pending != FuncallExitReturn {
		return nil
	}
	return p
}

// protect runs fn under a catch-all handler. A signal or throw raised by fn
// is recorded as the pending exit and protect reports false. If the handler
// cannot be installed fn is not run and memory-full is recorded.
func (p *envPrivate) protect(fn func()) (ok bool) {
	in := p.bridge.in
	h, err := in.PushHandler(host.CatchAll, nil)
	if err != nil {
		p.outOfMemory()
		return false
	}
	defer func() {
		r := recover()
		in.PopHandler(h)
		if r != nil {
			p.capture(r)
		}
	}()
	fn()
	return true
}

// capture records a recovered panic as the pending exit.
func (p *envPrivate) capture(r any) {
	switch x := r.(type) {
	case *host.SignalError:
		p.signal1(x.Symbol, x.Data)
	case *host.ThrowError:
		p.throw1(x.Tag, x.Value)
	case contractViolation:
		panic(x)
	default:
		Logger().Error("unexpected panic in environment function", zap.Any("panic", r))
		p.signal1(host.Qerror, host.List(host.NewString(fmt.Sprint(r))))
	}
}

func (p *envPrivate) signal1(sym, data host.Object) {
	if p.pending == FuncallExitReturn {
		p.pending = FuncallExitSignal
		p.exitSymbol = sym
		p.exitData = data
	}
}

func (p *envPrivate) throw1(tag, value host.Object) {
	if p.pending == FuncallExitReturn {
		p.pending = FuncallExitThrow
		p.exitSymbol = tag
		p.exitData = value
	}
}

func (p *envPrivate) wrongType(predicate *host.Symbol, value host.Object) {
	p.signal1(host.QwrongTypeArgument, host.List(predicate, value))
}

func (p *envPrivate) argsOutOfRange(a, b host.Object) {
	p.signal1(host.QargsOutOfRange, host.List(a, b))
}

func (p *envPrivate) overflow() {
	p.signal1(host.QoverflowError, host.Nil)
}

func (p *envPrivate) outOfMemory() {
	p.signal1(host.QmemoryFull, host.List(host.NewString("Memory exhausted")))
}

func (p *envPrivate) encode(o host.Object) Value { return p.codec.encode(p, o) }

func (p *envPrivate) decode(v Value) host.Object { return p.codec.decode(v) }

// tryDecode decodes v without raising. It records invalid-module-call for
// unknown handles.
func (p *envPrivate) tryDecode(v Value) (o host.Object, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.capture(r)
			o, ok = nil, false
		}
	}()
	return p.decode(v), true
}

// ReportError records err as the pending exit of env, unless one is already
// pending. Host errors and escapes are recorded unchanged; other errors
// become an error signal carrying the message.
func ReportError(env *Env, err error) {
	if err == nil {
		return
	}
	p := env.private
	var se *host.SignalError
	var te *host.ThrowError
	switch {
	case errors.As(err, &se):
		p.signal1(se.Symbol, se.Data)
	case errors.As(err, &te):
		p.throw1(te.Tag, te.Value)
	default:
		p.signal1(host.Qerror, host.List(host.NewString(err.Error())))
	}
}
