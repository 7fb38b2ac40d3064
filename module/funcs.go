package module

import (
	"golang.org/x/text/encoding/unicode"

	"github.com/wippyai/module-bridge/host"
)

func moduleMakeGlobalRef(env *Env, v Value) (r Value) {
	p := begin(env)
	if p == nil {
		return Nil
	}
	p.protect(func() {
		o := p.decode(v)
		h := p.encode(o)
		if !p.bridge.refs.ref(o) {
			p.overflow()
			return
		}
		r = h
	})
	return r
}

func moduleFreeGlobalRef(env *Env, v Value) {
	p := begin(env)
	if p == nil {
		return
	}
	p.protect(func() {
		o := p.decode(v)
		if !p.bridge.refs.unref(o) {
			return
		}
		// The current call keeps its handle until it returns.
		for _, c := range p.bridge.codecs {
			if c == p.codec {
				c.encode(p, o)
			} else {
				c.unpinned(o)
			}
		}
	})
}

func moduleNonLocalExitCheck(env *Env) FuncallExit {
	p := env.private
	p.check()
	return p.pending
}

func moduleNonLocalExitClear(env *Env) {
	p := env.private
	p.check()
	p.pending = FuncallExitReturn
	p.exitSymbol, p.exitData = nil, nil
}

func moduleNonLocalExitGet(env *Env, sym, data *Value) FuncallExit {
	p := env.private
	p.check()
	if p.pending == FuncallExitReturn {
		return FuncallExitReturn
	}
	// Encoding may itself fail; the recorded exit is left untouched.
	pending, s, d := p.pending, p.exitSymbol, p.exitData
	func() {
		defer func() {
			if r := recover(); r != nil {
				if cv, ok := r.(contractViolation); ok {
					panic(cv)
				}
				Logger().Debug("cannot encode pending exit")
			}
		}()
		sv, dv := p.encode(s), p.encode(d)
		if sym != nil {
			*sym = sv
		}
		if data != nil {
			*data = dv
		}
	}()
	return pending
}

func moduleNonLocalExitSignal(env *Env, sym, data Value) {
	p := env.private
	p.check()
	if p.pending != FuncallExitReturn {
		return
	}
	s, ok := p.tryDecode(sym)
	if !ok {
		return
	}
	d, ok := p.tryDecode(data)
	if !ok {
		return
	}
	p.signal1(s, d)
}

func moduleNonLocalExitThrow(env *Env, tag, value Value) {
	p := env.private
	p.check()
	if p.pending != FuncallExitReturn {
		return
	}
	t, ok := p.tryDecode(tag)
	if !ok {
		return
	}
	v, ok := p.tryDecode(value)
	if !ok {
		return
	}
	p.throw1(t, v)
}

func moduleFuncall(env *Env, fn Value, args []Value) (r Value) {
	p := begin(env)
	if p == nil {
		return Nil
	}
	p.protect(func() {
		f := p.decode(fn)
		objs := make([]host.Object, len(args))
		for i, a := range args {
			objs[i] = p.decode(a)
		}
		r = p.encode(p.bridge.in.Funcall(f, objs))
	})
	return r
}

func moduleIntern(env *Env, name string) (r Value) {
	p := begin(env)
	if p == nil {
		return Nil
	}
	p.protect(func() {
		r = p.encode(p.bridge.in.Intern(name))
	})
	return r
}

func moduleTypeOf(env *Env, v Value) (r Value) {
	p := begin(env)
	if p == nil {
		return Nil
	}
	p.protect(func() {
		r = p.encode(p.bridge.in.TypeOf(p.decode(v)))
	})
	return r
}

// Predicates return false on a poisoned environment instead of a sentinel
// exit, so they can be chained without checks.

func moduleIsNotNil(env *Env, v Value) (r bool) {
	p := begin(env)
	if p == nil {
		return false
	}
	p.protect(func() {
		r = !host.IsNil(p.decode(v))
	})
	return r
}

func moduleEq(env *Env, a, b Value) (r bool) {
	p := begin(env)
	if p == nil {
		return false
	}
	p.protect(func() {
		r = host.Eq(p.decode(a), p.decode(b))
	})
	return r
}

func moduleExtractInteger(env *Env, v Value) (r int64) {
	p := begin(env)
	if p == nil {
		return 0
	}
	p.protect(func() {
		o := p.decode(v)
		n, ok := o.(host.Fixnum)
		if !ok {
			p.wrongType(host.Qintegerp, o)
			return
		}
		r = int64(n)
	})
	return r
}

func moduleMakeInteger(env *Env, n int64) (r Value) {
	p := begin(env)
	if p == nil {
		return Nil
	}
	if !host.InRange(n) {
		p.overflow()
		return Nil
	}
	p.protect(func() {
		r = p.encode(host.Fixnum(n))
	})
	return r
}

func moduleExtractFloat(env *Env, v Value) (r float64) {
	p := begin(env)
	if p == nil {
		return 0
	}
	p.protect(func() {
		o := p.decode(v)
		f, ok := o.(*host.Float)
		if !ok {
			p.wrongType(host.Qfloatp, o)
			return
		}
		r = f.V
	})
	return r
}

func moduleMakeFloat(env *Env, f float64) (r Value) {
	p := begin(env)
	if p == nil {
		return Nil
	}
	p.protect(func() {
		r = p.encode(p.bridge.in.MakeFloat(f))
	})
	return r
}

func moduleCopyStringContents(env *Env, v Value, buf []byte, length *int) (r bool) {
	p := begin(env)
	if p == nil {
		return false
	}
	p.protect(func() {
		o := p.decode(v)
		s, ok := o.(*host.String)
		if !ok {
			p.wrongType(host.Qstringp, o)
			return
		}
		raw, err := unicode.UTF8.NewEncoder().String(s.S)
		if err != nil {
			p.bridge.in.Error("cannot encode string: %v", err)
		}
		required := len(raw) + 1
		if buf == nil {
			*length = required
			r = true
			return
		}
		if *length < required || len(buf) < required {
			*length = required
			p.signal1(host.QargsOutOfRange, host.Nil)
			return
		}
		*length = required
		copy(buf, raw)
		buf[len(raw)] = 0
		r = true
	})
	return r
}

func moduleMakeString(env *Env, b []byte) (r Value) {
	p := begin(env)
	if p == nil {
		return Nil
	}
	if len(b) > p.bridge.in.MaxStringBytes() {
		p.overflow()
		return Nil
	}
	p.protect(func() {
		s, err := unicode.UTF8.NewDecoder().Bytes(b)
		if err != nil {
			p.bridge.in.Error("cannot decode string: %v", err)
		}
		r = p.encode(p.bridge.in.MakeString(string(s)))
	})
	return r
}

func moduleMakeUserPtr(env *Env, fin Finalizer, ptr any) (r Value) {
	p := begin(env)
	if p == nil {
		return Nil
	}
	p.protect(func() {
		r = p.encode(p.bridge.in.MakeUserPtr(fin, ptr))
	})
	return r
}

func (p *envPrivate) userPtr(v Value) *host.UserPtr {
	o := p.decode(v)
	u, ok := o.(*host.UserPtr)
	if !ok {
		p.wrongType(host.QuserPtrp, o)
		return nil
	}
	return u
}

func moduleGetUserPtr(env *Env, v Value) (r any) {
	p := begin(env)
	if p == nil {
		return nil
	}
	p.protect(func() {
		if u := p.userPtr(v); u != nil {
			r = u.Ptr()
		}
	})
	return r
}

func moduleSetUserPtr(env *Env, v Value, ptr any) {
	p := begin(env)
	if p == nil {
		return
	}
	p.protect(func() {
		if u := p.userPtr(v); u != nil {
			u.SetPtr(ptr)
		}
	})
}

func moduleGetUserFinalizer(env *Env, v Value) (r Finalizer) {
	p := begin(env)
	if p == nil {
		return nil
	}
	p.protect(func() {
		if u := p.userPtr(v); u != nil {
			r = u.Finalizer()
		}
	})
	return r
}

func moduleSetUserFinalizer(env *Env, v Value, fin Finalizer) {
	p := begin(env)
	if p == nil {
		return
	}
	p.protect(func() {
		if u := p.userPtr(v); u != nil {
			u.SetFinalizer(fin)
		}
	})
}

// vector decodes vec and checks index i against its bounds. Indices that do
// not fit a fixnum signal overflow-error rather than args-out-of-range.
func (p *envPrivate) vector(vec Value, i int, indexed bool) *host.Vector {
	o := p.decode(vec)
	v, ok := o.(*host.Vector)
	if !ok {
		p.wrongType(host.Qvectorp, o)
		return nil
	}
	if indexed && (i < 0 || i >= len(v.Items)) {
		if host.InRange(int64(i)) {
			p.argsOutOfRange(v, host.Fixnum(i))
		} else {
			p.overflow()
		}
		return nil
	}
	return v
}

func moduleVecSet(env *Env, vec Value, i int, val Value) {
	p := begin(env)
	if p == nil {
		return
	}
	p.protect(func() {
		if v := p.vector(vec, i, true); v != nil {
			v.Items[i] = p.decode(val)
		}
	})
}

func moduleVecGet(env *Env, vec Value, i int) (r Value) {
	p := begin(env)
	if p == nil {
		return Nil
	}
	p.protect(func() {
		if v := p.vector(vec, i, true); v != nil {
			r = p.encode(v.Items[i])
		}
	})
	return r
}

func moduleVecSize(env *Env, vec Value) (r int) {
	p := begin(env)
	if p == nil {
		return 0
	}
	p.protect(func() {
		if v := p.vector(vec, 0, false); v != nil {
			r = len(v.Items)
		}
	})
	return r
}
