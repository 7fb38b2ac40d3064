package host

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestIntern(t *testing.T) {
	in := New(nil)

	a := in.Intern("foo")
	b := in.Intern("foo")
	if a != b {
		t.Fatal("Intern returned different symbols for the same name")
	}
	if in.Intern("nil") != Nil {
		t.Error("nil is not the static Nil")
	}
	if in.Intern("wrong-type-argument") != QwrongTypeArgument {
		t.Error("static error symbol not interned")
	}
	if _, ok := in.InternSoft("never-interned"); ok {
		t.Error("InternSoft created a symbol")
	}
}

func TestCall_Builtins(t *testing.T) {
	in := New(nil)

	tests := []struct {
		name string
		fn   string
		args []Object
		want string
	}{
		{"add", "+", []Object{Fixnum(1), Fixnum(2), Fixnum(3)}, "6"},
		{"add float", "+", []Object{Fixnum(1), &Float{V: 0.5}}, "1.5"},
		{"negate", "-", []Object{Fixnum(4)}, "-4"},
		{"subtract", "-", []Object{Fixnum(10), Fixnum(4), Fixnum(1)}, "5"},
		{"multiply", "*", []Object{Fixnum(6), Fixnum(7)}, "42"},
		{"list", "list", []Object{Fixnum(1), NewString("a"), Nil}, `(1 "a" nil)`},
		{"cons", "cons", []Object{Fixnum(1), Fixnum(2)}, "(1 . 2)"},
		{"vector", "vector", []Object{Fixnum(1), Fixnum(2)}, "[1 2]"},
		{"make-vector", "make-vector", []Object{Fixnum(3), T}, "[t t t]"},
		{"concat", "concat", []Object{NewString("ab"), Nil, NewString("c")}, `"abc"`},
		{"length string", "length", []Object{NewString("héllo")}, "5"},
		{"length nil", "length", []Object{Nil}, "0"},
		{"type-of", "type-of", []Object{&Float{V: 1}}, "float"},
		{"eq fixnums", "eq", []Object{Fixnum(3), Fixnum(3)}, "t"},
		{"eq floats", "eq", []Object{&Float{V: 1}, &Float{V: 1}}, "nil"},
		{"funcall", "funcall", []Object{in.Intern("identity"), Fixnum(9)}, "9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.Call(in.Intern(tt.fn), tt.args...)
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if diff := cmp.Diff(tt.want, Print(got)); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCall_Errors(t *testing.T) {
	in := New(nil)

	tests := []struct {
		name string
		fn   Object
		args []Object
		want *Symbol
		data string
	}{
		{"wrong type", in.Intern("car"), []Object{Fixnum(1)}, QwrongTypeArgument, "(listp 1)"},
		{"too many args", in.Intern("car"), []Object{Nil, Nil}, QwrongNumberOfArguments, ""},
		{"overflow", in.Intern("+"), []Object{Fixnum(MostPositiveFixnum), Fixnum(1)}, QoverflowError, "nil"},
		{"overflow is arith-error", in.Intern("*"), []Object{Fixnum(MostPositiveFixnum), Fixnum(2)}, QarithError, "nil"},
		{"void function", in.Intern("no-such-function"), nil, QvoidFunction, "(no-such-function)"},
		{"invalid function", Fixnum(3), nil, QinvalidFunction, "(3)"},
		{"aref out of range", in.Intern("aref"), []Object{&Vector{Items: []Object{Nil}}, Fixnum(1)}, QargsOutOfRange, "([nil] 1)"},
		{"no catch", in.Intern("throw"), []Object{in.Intern("tag"), Fixnum(1)}, QnoCatch, "(tag 1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := in.Call(tt.fn, tt.args...)
			if !Signaled(err, tt.want) {
				t.Fatalf("Call error = %v, want signal %s", err, tt.want.Name)
			}
			var se *SignalError
			if !errors.As(err, &se) {
				t.Fatal("error is not a *SignalError")
			}
			if tt.data != "" && Print(se.Data) != tt.data {
				t.Errorf("data = %s, want %s", Print(se.Data), tt.data)
			}
			if in.Handlers() != 0 {
				t.Errorf("handler stack not unwound: %d", in.Handlers())
			}
		})
	}
}

func TestSignalError_Error(t *testing.T) {
	tests := []struct {
		err  *SignalError
		want string
	}{
		{&SignalError{Symbol: Qerror, Data: List(NewString("boom"))}, "boom"},
		{&SignalError{Symbol: QwrongTypeArgument, Data: List(Qintegerp, NewString("x"))}, `Wrong type argument: integerp, "x"`},
		{&SignalError{Symbol: QmemoryFull, Data: Nil}, "Memory exhausted"},
		{&SignalError{Symbol: &Symbol{Name: "test-undeclared"}, Data: List(Fixnum(1))}, "peculiar error: test-undeclared (1)"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestCatch(t *testing.T) {
	in := New(nil)
	tag := in.Intern("done")

	got, err := in.Protect(func() Object {
		return in.Catch(tag, func() Object {
			in.Funcall(in.Intern("throw"), []Object{tag, Fixnum(42)})
			return Fixnum(0)
		})
	})
	if err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if got != Fixnum(42) {
		t.Errorf("Catch = %s, want 42", Print(got))
	}
	if in.Handlers() != 0 {
		t.Errorf("handler stack not empty: %d", in.Handlers())
	}
}

func TestCatch_OtherTagPropagates(t *testing.T) {
	in := New(nil)
	outer, inner := in.Intern("outer"), in.Intern("inner")

	got, err := in.Protect(func() Object {
		return in.Catch(outer, func() Object {
			in.Catch(inner, func() Object {
				in.Throw(outer, NewString("out"))
				return Nil
			})
			return Nil
		})
	})
	if err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if Print(got) != `"out"` {
		t.Errorf("got %s", Print(got))
	}
}

func TestConditionCase(t *testing.T) {
	in := New(nil)

	_, err := in.Protect(func() Object {
		_, caught := in.ConditionCase(func() Object {
			in.Signal(QoverflowError, Nil)
			return Nil
		}, QarithError)
		if caught == nil || caught.Symbol != QoverflowError {
			t.Errorf("caught = %v", caught)
		}
		return Nil
	})
	if err != nil {
		t.Fatalf("Protect: %v", err)
	}

	_, err = in.Protect(func() Object {
		in.ConditionCase(func() Object {
			in.Signal(QwrongTypeArgument, Nil)
			return Nil
		}, QarithError)
		return Nil
	})
	if !Signaled(err, QwrongTypeArgument) {
		t.Errorf("unmatched signal not propagated: %v", err)
	}
}

func TestPushHandler_Overflow(t *testing.T) {
	in := New(&Config{MaxHandlers: 2})

	h1, err := in.PushHandler(CatchAll, nil)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := in.PushHandler(CatchAll, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := in.PushHandler(CatchAll, nil); !errors.Is(err, ErrHandlerOverflow) {
		t.Fatalf("third push error = %v, want ErrHandlerOverflow", err)
	}
	if in.Handlers() != 2 {
		t.Errorf("failed push changed the stack: %d", in.Handlers())
	}
	in.PopHandler(h2)
	in.PopHandler(h1)
	if in.Handlers() != 0 {
		t.Errorf("Handlers = %d after pops", in.Handlers())
	}
}

func TestHeapLimit(t *testing.T) {
	in := New(&Config{HeapLimit: 4})

	_, err := in.Protect(func() Object {
		for i := 0; i < 10; i++ {
			in.MakeFloat(float64(i))
		}
		return Nil
	})
	if !Signaled(err, QmemoryFull) {
		t.Fatalf("err = %v, want memory-full", err)
	}

	in.GarbageCollect()
	if in.Allocated() != 0 {
		t.Errorf("Allocated = %d after collection", in.Allocated())
	}
	if _, err := in.Protect(func() Object { return in.MakeFloat(1) }); err != nil {
		t.Errorf("allocation after collection failed: %v", err)
	}
}

func TestEvalDepth(t *testing.T) {
	in := New(&Config{MaxEvalDepth: 10})
	self := in.Intern("recurse")
	in.Defsubr("recurse", 0, 0, func(in *Interp, _ []Object) Object {
		return in.Funcall(self, nil)
	})

	_, err := in.Call(self)
	if !Signaled(err, QexcessiveLispNesting) {
		t.Fatalf("err = %v, want excessive-lisp-nesting", err)
	}
	if _, err := in.Call(in.Intern("identity"), Nil); err != nil {
		t.Errorf("depth not restored: %v", err)
	}
}

func TestUserPtrFinalizer(t *testing.T) {
	in := New(nil)
	done := 0

	func() {
		in.MakeUserPtr(FinalizerFunc(func(ptr any) {
			if ptr != "payload" {
				t.Errorf("finalizer got %v", ptr)
			}
			done++
		}), "payload")
	}()

	deadline := time.Now().Add(5 * time.Second)
	for done == 0 && time.Now().Before(deadline) {
		runtime.GC()
		in.RunFinalizers()
		time.Sleep(time.Millisecond)
	}
	if done != 1 {
		t.Fatalf("finalizer ran %d times, want 1", done)
	}
}

func TestPrint(t *testing.T) {
	tests := []struct {
		obj  Object
		want string
	}{
		{Fixnum(-3), "-3"},
		{&Float{V: 2}, "2.0"},
		{&Float{V: 0.25}, "0.25"},
		{NewString("a\"b"), `"a\"b"`},
		{List(T, List(Fixnum(1))), "(t (1))"},
		{&Cons{Car: Fixnum(1), Cdr: Fixnum(2)}, "(1 . 2)"},
		{&Vector{}, "[]"},
		{nil, "nil"},
	}
	for _, tt := range tests {
		if got := Print(tt.obj); got != tt.want {
			t.Errorf("Print = %q, want %q", got, tt.want)
		}
	}
}
