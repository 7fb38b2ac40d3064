package host

import (
	"math/bits"
	"strings"
)

func (in *Interp) installBuiltins() {
	limit := in.cfg.HeapLimit
	in.cfg.HeapLimit = 0
	defer func() {
		in.cfg.HeapLimit = limit
		in.allocated = 0
	}()

	in.Defsubr("fset", 2, 2, func(in *Interp, a []Object) Object {
		s := in.symbolArg(a[0])
		if s == Nil || s == T {
			in.Signal(QsettingConstant, List(s))
		}
		s.Function = a[1]
		return a[1]
	})
	in.Defsubr("symbol-function", 1, 1, func(in *Interp, a []Object) Object {
		f := in.symbolArg(a[0]).Function
		if f == nil {
			return Nil
		}
		return f
	})
	in.Defsubr("set", 2, 2, func(in *Interp, a []Object) Object {
		s := in.symbolArg(a[0])
		if s == Nil || s == T {
			in.Signal(QsettingConstant, List(s))
		}
		s.Value = a[1]
		return a[1]
	})
	in.Defsubr("symbol-value", 1, 1, func(in *Interp, a []Object) Object {
		s := in.symbolArg(a[0])
		if s.Value == nil {
			in.Signal(QvoidVariable, List(s))
		}
		return s.Value
	})
	in.Defsubr("intern", 1, 1, func(in *Interp, a []Object) Object {
		return in.Intern(in.stringArg(a[0]))
	})
	in.Defsubr("list", 0, Many, func(in *Interp, a []Object) Object {
		return in.MakeList(a...)
	})
	in.Defsubr("cons", 2, 2, func(in *Interp, a []Object) Object {
		return in.Cons(a[0], a[1])
	})
	in.Defsubr("car", 1, 1, func(in *Interp, a []Object) Object {
		if IsNil(a[0]) {
			return Nil
		}
		c, ok := a[0].(*Cons)
		if !ok {
			in.WrongType(Qlistp, a[0])
		}
		return c.Car
	})
	in.Defsubr("cdr", 1, 1, func(in *Interp, a []Object) Object {
		if IsNil(a[0]) {
			return Nil
		}
		c, ok := a[0].(*Cons)
		if !ok {
			in.WrongType(Qlistp, a[0])
		}
		return c.Cdr
	})
	in.Defsubr("vector", 0, Many, func(in *Interp, a []Object) Object {
		v := in.MakeVector(len(a), Nil)
		copy(v.Items, a)
		return v
	})
	in.Defsubr("make-vector", 2, 2, func(in *Interp, a []Object) Object {
		return in.MakeVector(int(in.fixnumArg(a[0])), a[1])
	})
	in.Defsubr("aref", 2, 2, func(in *Interp, a []Object) Object {
		v, ok := a[0].(*Vector)
		if !ok {
			in.WrongType(Qvectorp, a[0])
		}
		i := in.fixnumArg(a[1])
		if i < 0 || i >= Fixnum(len(v.Items)) {
			in.Signal(QargsOutOfRange, List(v, i))
		}
		return v.Items[i]
	})
	in.Defsubr("aset", 3, 3, func(in *Interp, a []Object) Object {
		v, ok := a[0].(*Vector)
		if !ok {
			in.WrongType(Qvectorp, a[0])
		}
		i := in.fixnumArg(a[1])
		if i < 0 || i >= Fixnum(len(v.Items)) {
			in.Signal(QargsOutOfRange, List(v, i))
		}
		v.Items[i] = a[2]
		return a[2]
	})
	in.Defsubr("length", 1, 1, func(in *Interp, a []Object) Object {
		switch x := a[0].(type) {
		case *Vector:
			return Fixnum(len(x.Items))
		case *String:
			return Fixnum(len([]rune(x.S)))
		case *Cons:
			return Fixnum(len(ListItems(x)))
		}
		if IsNil(a[0]) {
			return Fixnum(0)
		}
		in.WrongType(Qsequencep, a[0])
		return nil
	})
	in.Defsubr("+", 0, Many, func(in *Interp, a []Object) Object {
		return in.arith(a, Fixnum(0), addFixnum, func(x, y float64) float64 { return x + y })
	})
	in.Defsubr("*", 0, Many, func(in *Interp, a []Object) Object {
		return in.arith(a, Fixnum(1), mulFixnum, func(x, y float64) float64 { return x * y })
	})
	in.Defsubr("-", 0, Many, func(in *Interp, a []Object) Object {
		if len(a) == 1 {
			return in.arith([]Object{a[0]}, Fixnum(0), subFixnum, func(x, y float64) float64 { return x - y })
		}
		if len(a) == 0 {
			return Fixnum(0)
		}
		return in.arith(a[1:], a[0], subFixnum, func(x, y float64) float64 { return x - y })
	})
	in.Defsubr("concat", 0, Many, func(in *Interp, a []Object) Object {
		var b strings.Builder
		for _, x := range a {
			if IsNil(x) {
				continue
			}
			b.WriteString(in.stringArg(x))
		}
		return in.MakeString(b.String())
	})
	in.Defsubr("signal", 2, 2, func(in *Interp, a []Object) Object {
		in.Signal(a[0], a[1])
		return nil
	})
	in.Defsubr("throw", 2, 2, func(in *Interp, a []Object) Object {
		in.Throw(a[0], a[1])
		return nil
	})
	in.Defsubr("eq", 2, 2, func(in *Interp, a []Object) Object {
		return Bool(Eq(a[0], a[1]))
	})
	in.Defsubr("identity", 1, 1, func(in *Interp, a []Object) Object {
		return a[0]
	})
	in.Defsubr("funcall", 1, Many, func(in *Interp, a []Object) Object {
		return in.Funcall(a[0], a[1:])
	})
	in.Defsubr("type-of", 1, 1, func(in *Interp, a []Object) Object {
		return in.TypeOf(a[0])
	})
	in.Defsubr("garbage-collect", 0, 0, func(in *Interp, a []Object) Object {
		return Fixnum(in.GarbageCollect())
	})
	in.Defsubr("provide", 1, 1, func(in *Interp, a []Object) Object {
		in.Provide(in.symbolArg(a[0]))
		return a[0]
	})
	in.Defsubr("featurep", 1, 1, func(in *Interp, a []Object) Object {
		return Bool(in.Featurep(in.symbolArg(a[0])))
	})
}

// Eq reports object identity. Fixnums compare by value.
func Eq(a, b Object) bool {
	if IsNil(a) && IsNil(b) {
		return true
	}
	return a == b
}

func (in *Interp) symbolArg(o Object) *Symbol {
	if o == nil {
		return Nil
	}
	s, ok := o.(*Symbol)
	if !ok {
		in.WrongType(Qsymbolp, o)
	}
	return s
}

func (in *Interp) stringArg(o Object) string {
	s, ok := o.(*String)
	if !ok {
		in.WrongType(Qstringp, o)
	}
	return s.S
}

func (in *Interp) fixnumArg(o Object) Fixnum {
	n, ok := o.(Fixnum)
	if !ok {
		in.WrongType(Qintegerp, o)
	}
	return n
}

func addFixnum(x, y int64) (int64, bool) {
	s := x + y
	return s, (x >= 0) == (y >= 0) && (s >= 0) != (x >= 0)
}

func subFixnum(x, y int64) (int64, bool) {
	s := x - y
	return s, (x >= 0) != (y >= 0) && (s >= 0) != (x >= 0)
}

func mulFixnum(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, false
	}
	neg := (x < 0) != (y < 0)
	ux, uy := uint64(x), uint64(y)
	if x < 0 {
		ux = -ux
	}
	if y < 0 {
		uy = -uy
	}
	hi, lo := bits.Mul64(ux, uy)
	if hi != 0 || lo > 1<<63 || (lo == 1<<63 && !neg) {
		return 0, true
	}
	if neg {
		return int64(-lo), false
	}
	return int64(lo), false
}

func (in *Interp) arith(args []Object, acc Object, fix func(x, y int64) (int64, bool), flo func(x, y float64) float64) Object {
	switch acc.(type) {
	case Fixnum, *Float:
	default:
		in.WrongType(Qnumberp, acc)
	}
	for _, a := range args {
		switch y := a.(type) {
		case Fixnum:
			if x, ok := acc.(Fixnum); ok {
				r, over := fix(int64(x), int64(y))
				if over || !InRange(r) {
					in.Signal(QoverflowError, Nil)
				}
				acc = Fixnum(r)
				continue
			}
			acc = in.MakeFloat(flo(toFloat(acc), float64(y)))
		case *Float:
			acc = in.MakeFloat(flo(toFloat(acc), y.V))
		default:
			in.WrongType(Qnumberp, a)
		}
	}
	return acc
}

func toFloat(o Object) float64 {
	switch x := o.(type) {
	case Fixnum:
		return float64(x)
	case *Float:
		return x.V
	}
	return 0
}
