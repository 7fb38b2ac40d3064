package host

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Config holds interpreter limits. Zero values select defaults.
type Config struct {
	// HeapLimit is the number of objects that may be allocated between two
	// collections. 0 means unlimited.
	HeapLimit int64

	// MaxHandlers bounds the handler stack. Default 4096.
	MaxHandlers int

	// MaxEvalDepth bounds Funcall nesting. Default 1600.
	MaxEvalDepth int

	// MaxStringBytes bounds the byte length of strings built from foreign
	// data. Default StringBytesBound.
	MaxStringBytes int
}

const (
	defaultMaxHandlers  = 4096
	defaultMaxEvalDepth = 1600
)

// Interp is the host interpreter: obarray, heap accounting, handler stack
// and the call machinery. It is not safe for concurrent use; all methods
// must be called from the goroutine that owns it.
type Interp struct {
	obarray   map[string]*Symbol
	features  []Object
	handlers  []*Handler
	pending   pendingFinalizers
	cfg       Config
	allocated int64
	depth     int
}

type pendingFinalizers struct {
	items []*userPtrData
	mu    sync.Mutex
}

// New creates an interpreter with the builtins installed.
func New(cfg *Config) *Interp {
	in := &Interp{obarray: make(map[string]*Symbol, len(static)+64)}
	if cfg != nil {
		in.cfg = *cfg
	}
	if in.cfg.MaxHandlers <= 0 {
		in.cfg.MaxHandlers = defaultMaxHandlers
	}
	if in.cfg.MaxEvalDepth <= 0 {
		in.cfg.MaxEvalDepth = defaultMaxEvalDepth
	}
	if in.cfg.MaxStringBytes <= 0 {
		in.cfg.MaxStringBytes = StringBytesBound
	}
	for name, s := range static {
		in.obarray[name] = s
	}
	in.installBuiltins()
	return in
}

// MaxStringBytes returns the configured string length bound.
func (in *Interp) MaxStringBytes() int {
	return in.cfg.MaxStringBytes
}

// Intern returns the canonical symbol for name.
func (in *Interp) Intern(name string) *Symbol {
	if s, ok := in.obarray[name]; ok {
		return s
	}
	in.account(1)
	s := &Symbol{Name: name}
	in.obarray[name] = s
	return s
}

// InternSoft returns the symbol for name if it is interned.
func (in *Interp) InternSoft(name string) (*Symbol, bool) {
	s, ok := in.obarray[name]
	return s, ok
}

// Symbols calls fn for each interned symbol.
func (in *Interp) Symbols(fn func(*Symbol)) {
	for _, s := range in.obarray {
		fn(s)
	}
}

// account charges n objects to the heap, signalling memory-full past the limit.
func (in *Interp) account(n int64) {
	if in.cfg.HeapLimit > 0 && in.allocated+n > in.cfg.HeapLimit {
		Logger().Debug("heap limit reached",
			zap.Int64("allocated", in.allocated),
			zap.Int64("limit", in.cfg.HeapLimit))
		in.MemoryFull()
	}
	in.allocated += n
}

// Allocated returns the number of objects charged since the last collection.
func (in *Interp) Allocated() int64 {
	return in.allocated
}

// MemoryFull signals the standard out-of-memory error.
func (in *Interp) MemoryFull() {
	in.Signal(QmemoryFull, List(NewString("Memory exhausted")))
}

// MakeFloat allocates a float.
func (in *Interp) MakeFloat(v float64) *Float {
	in.account(1)
	return &Float{V: v}
}

// MakeString allocates a string.
func (in *Interp) MakeString(s string) *String {
	in.account(1)
	return &String{S: s}
}

// Cons allocates a pair.
func (in *Interp) Cons(car, cdr Object) *Cons {
	in.account(1)
	return &Cons{Car: car, Cdr: cdr}
}

// MakeList allocates a proper list.
func (in *Interp) MakeList(items ...Object) Object {
	var out Object = Nil
	for i := len(items) - 1; i >= 0; i-- {
		out = in.Cons(items[i], out)
	}
	return out
}

// MakeVector allocates a vector of n elements set to init.
func (in *Interp) MakeVector(n int, init Object) *Vector {
	if n < 0 {
		in.WrongType(Qwholenump, Fixnum(n))
	}
	in.account(1 + int64(n)/8)
	items := make([]Object, n)
	for i := range items {
		items[i] = init
	}
	return &Vector{Items: items}
}

// MakeUserPtr allocates a user pointer. When the Go collector reclaims it,
// its finalizer is queued and later run by RunFinalizers.
func (in *Interp) MakeUserPtr(fin Finalizer, ptr any) *UserPtr {
	in.account(1)
	d := &userPtrData{ptr: ptr, fin: fin}
	u := &UserPtr{d: d}
	u.cleanup = runtime.AddCleanup(u, in.pending.push, d)
	return u
}

func (p *pendingFinalizers) push(d *userPtrData) {
	p.mu.Lock()
	p.items = append(p.items, d)
	p.mu.Unlock()
}

func (p *pendingFinalizers) drain() []*userPtrData {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := p.items
	p.items = nil
	return items
}

// RunFinalizers runs the finalizers of reclaimed user pointers. A panicking
// finalizer is logged and does not stop the others.
func (in *Interp) RunFinalizers() int {
	items := in.pending.drain()
	for _, d := range items {
		if d.fin == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					Logger().Warn("user-ptr finalizer panicked", zap.Any("panic", r))
				}
			}()
			d.fin.Finalize(d.ptr)
		}()
	}
	return len(items)
}

// GarbageCollect runs the Go collector, resets heap accounting and runs
// pending finalizers. It returns the number of finalizers run.
func (in *Interp) GarbageCollect() int {
	runtime.GC()
	in.allocated = 0
	return in.RunFinalizers()
}

// Provide records feature as loaded.
func (in *Interp) Provide(feature *Symbol) {
	for _, f := range in.features {
		if f == feature {
			return
		}
	}
	in.features = append(in.features, feature)
}

// Featurep reports whether feature was provided.
func (in *Interp) Featurep(feature *Symbol) bool {
	for _, f := range in.features {
		if f == feature {
			return true
		}
	}
	return false
}

// TypeOf returns the type symbol of o.
func (in *Interp) TypeOf(o Object) *Symbol {
	if o == nil {
		return Qsymbol
	}
	return in.Intern(o.TypeName())
}

// WrongType signals wrong-type-argument with (predicate value).
func (in *Interp) WrongType(predicate *Symbol, value Object) {
	in.Signal(QwrongTypeArgument, List(predicate, value))
}

// Error signals a plain error with a formatted message.
func (in *Interp) Error(format string, args ...any) {
	in.Signal(Qerror, List(NewString(fmt.Sprintf(format, args...))))
}

// Defsubr installs a builtin as the function definition of name.
func (in *Interp) Defsubr(name string, minArgs, maxArgs int, fn func(in *Interp, args []Object) Object) *Subr {
	s := &Subr{Name: name, Min: minArgs, Max: maxArgs, Fn: fn}
	in.Intern(name).Function = s
	return s
}

// Funcall applies fn to args. Symbols are resolved through their function
// cells.
func (in *Interp) Funcall(fn Object, args []Object) Object {
	in.depth++
	defer func() { in.depth-- }()
	if in.depth > in.cfg.MaxEvalDepth {
		in.Signal(QexcessiveLispNesting, List(Fixnum(in.depth)))
	}

	f := fn
	for i := 0; ; i++ {
		s, ok := f.(*Symbol)
		if !ok {
			break
		}
		if IsNil(s) || i > 100 {
			in.Signal(QinvalidFunction, List(fn))
		}
		if IsNil(s.Function) {
			in.Signal(QvoidFunction, List(s))
		}
		f = s.Function
	}

	c, ok := f.(Callable)
	if !ok {
		in.Signal(QinvalidFunction, List(fn))
	}
	return c.Call(in, args)
}

// Protect runs fn as a top-level entry point. Host errors raised by fn are
// returned as *SignalError. A throw with no matching catch is signaled as
// no-catch, so *ThrowError comes back only when an enclosing catch-all
// handler let it through. Other panics propagate.
func (in *Interp) Protect(fn func() Object) (result Object, err error) {
	depth, handlers := in.depth, len(in.handlers)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		in.depth = depth
		in.handlers = in.handlers[:handlers]
		switch x := r.(type) {
		case *SignalError:
			err = x
		case *ThrowError:
			err = x
		default:
			panic(r)
		}
	}()
	in.RunFinalizers()
	return fn(), nil
}

// Call applies fn to args as a top-level entry point.
func (in *Interp) Call(fn Object, args ...Object) (Object, error) {
	return in.Protect(func() Object {
		return in.Funcall(fn, args)
	})
}
