package host

import "runtime"

// Fixnum range. Values outside it are not representable as integers.
const (
	MostPositiveFixnum = 1<<61 - 1
	MostNegativeFixnum = -(1 << 61)
)

// StringBytesBound is the default upper bound for the byte length of a string.
const StringBytesBound = 1<<31 - 1

// Many marks a Subr that accepts any number of arguments.
const Many = -1

// Object is a host value.
//
// Fixnums are immediate values and compare by value; every other object is
// a pointer and compares by identity. Two objects are eq iff they are == as
// Go interface values.
type Object interface {
	TypeName() string
}

// Callable is implemented by objects that can be applied with Funcall.
type Callable interface {
	Object
	Call(in *Interp, args []Object) Object
}

// Fixnum is an immediate integer.
type Fixnum int64

func (Fixnum) TypeName() string { return "integer" }

// InRange reports whether n fits the fixnum range.
func InRange(n int64) bool {
	return n >= MostNegativeFixnum && n <= MostPositiveFixnum
}

// Symbol is an interned name with value and function cells and a property list.
type Symbol struct {
	Value    Object
	Function Object
	Name     string
	plist    []Object
}

func (*Symbol) TypeName() string { return "symbol" }

// Get returns the value of property prop, or Nil.
func (s *Symbol) Get(prop *Symbol) Object {
	for i := 0; i+1 < len(s.plist); i += 2 {
		if s.plist[i] == prop {
			return s.plist[i+1]
		}
	}
	return Nil
}

// Put sets property prop to val.
func (s *Symbol) Put(prop *Symbol, val Object) {
	for i := 0; i+1 < len(s.plist); i += 2 {
		if s.plist[i] == prop {
			s.plist[i+1] = val
			return
		}
	}
	s.plist = append(s.plist, prop, val)
}

// Float is a boxed double. Two floats are eq only if they are the same object.
type Float struct {
	V float64
}

func (*Float) TypeName() string { return "float" }

// String holds UTF-8 text.
type String struct {
	S string
}

func (*String) TypeName() string { return "string" }

// NewString returns a string object without heap accounting. It is meant for
// error data, which must be constructible even when the heap is exhausted.
func NewString(s string) *String {
	return &String{S: s}
}

// Cons is a pair.
type Cons struct {
	Car, Cdr Object
}

func (*Cons) TypeName() string { return "cons" }

// Vector is a fixed-size array of objects.
type Vector struct {
	Items []Object
}

func (*Vector) TypeName() string { return "vector" }

// Finalizer is run on the interpreter goroutine after the collector has
// reclaimed a user pointer.
type Finalizer interface {
	Finalize(ptr any)
}

// FinalizerFunc adapts a function to Finalizer.
type FinalizerFunc func(ptr any)

func (f FinalizerFunc) Finalize(ptr any) { f(ptr) }

type userPtrData struct {
	ptr any
	fin Finalizer
}

// UserPtr boxes an opaque native pointer with an optional finalizer.
type UserPtr struct {
	d       *userPtrData
	cleanup runtime.Cleanup
}

func (*UserPtr) TypeName() string { return "user-ptr" }

// Ptr returns the boxed pointer.
func (u *UserPtr) Ptr() any { return u.d.ptr }

// SetPtr replaces the boxed pointer.
func (u *UserPtr) SetPtr(p any) { u.d.ptr = p }

// Finalizer returns the finalizer, which may be nil.
func (u *UserPtr) Finalizer() Finalizer { return u.d.fin }

// SetFinalizer replaces the finalizer.
func (u *UserPtr) SetFinalizer(f Finalizer) { u.d.fin = f }

// Subr is a builtin function implemented in Go.
type Subr struct {
	Fn   func(in *Interp, args []Object) Object
	Name string
	Min  int
	Max  int
}

func (*Subr) TypeName() string { return "subr" }

// Call checks the arity and runs the builtin.
func (s *Subr) Call(in *Interp, args []Object) Object {
	if len(args) < s.Min || (s.Max != Many && len(args) > s.Max) {
		in.Signal(QwrongNumberOfArguments, List(s, Fixnum(len(args))))
	}
	return s.Fn(in, args)
}

// List builds a proper list without heap accounting.
func List(items ...Object) Object {
	var out Object = Nil
	for i := len(items) - 1; i >= 0; i-- {
		out = &Cons{Car: items[i], Cdr: out}
	}
	return out
}

// ListItems returns the elements of a proper list. It stops at the first
// non-cons tail.
func ListItems(o Object) []Object {
	var out []Object
	for {
		c, ok := o.(*Cons)
		if !ok {
			return out
		}
		out = append(out, c.Car)
		o = c.Cdr
	}
}

// IsNil reports whether o is nil. A Go nil is treated as Nil.
func IsNil(o Object) bool {
	return o == nil || o == Nil
}

// Bool converts a Go bool to T or Nil.
func Bool(b bool) Object {
	if b {
		return T
	}
	return Nil
}
