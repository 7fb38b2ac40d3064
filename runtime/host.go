package runtime

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	errs "github.com/wippyai/module-bridge/errors"
	"github.com/wippyai/module-bridge/host"
)

// Host is a struct-based set of builtins. Every exported method except
// Prefix is installed as a builtin named Prefix() followed by the method
// name in kebab-case: prefix "demo-" and method GetHTTPUrl give
// demo-get-http-url.
//
// Method parameters and results are converted as follows:
//
//	int, int64     integer (results outside the fixnum range signal overflow-error)
//	float64        float; integers are accepted as arguments
//	string         string
//	bool           any object as argument (non-nil is true), t or nil as result
//	*host.Symbol   symbol
//	host.Object    any object
//
// A leading *host.Interp parameter receives the interpreter and a final
// variadic ...host.Object parameter makes the builtin take &rest
// arguments. A trailing error result is signaled: host errors as they
// are, other errors as (error "message").
type Host interface {
	Prefix() string
}

// ExplicitRegistrar lets a host choose its builtin names. Register returns
// functions keyed by the full builtin name.
type ExplicitRegistrar interface {
	Register() map[string]any
}

var (
	objectType = reflect.TypeOf((*host.Object)(nil)).Elem()
	interpType = reflect.TypeOf((*host.Interp)(nil))
	symbolType = reflect.TypeOf((*host.Symbol)(nil))
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
)

// RegisterHost installs the methods of h as builtins.
func (r *Runtime) RegisterHost(h Host) error {
	if er, ok := h.(ExplicitRegistrar); ok {
		for name, fn := range er.Register() {
			if err := r.RegisterFunc(name, fn); err != nil {
				return err
			}
		}
		return nil
	}

	prefix := h.Prefix()
	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Prefix" {
			continue
		}
		if err := r.RegisterFunc(prefix+toKebabCase(method.Name), rv.Method(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// RegisterFunc installs fn as the builtin name. See Host for the
// accepted signatures.
func (r *Runtime) RegisterFunc(name string, fn any) error {
	if name == "" {
		return errs.InvalidInput(errs.PhaseHost, "function name cannot be empty")
	}
	b, err := newBuiltin(name, fn)
	if err != nil {
		return err
	}
	r.in.Defsubr(name, b.min, b.max, b.call)
	return nil
}

type builtin struct {
	fn       reflect.Value
	params   []reflect.Type // excluding the interpreter and the rest parameter
	interp   bool
	rest     bool
	min, max int
	result   reflect.Type // nil when fn returns only an error or nothing
	hasError bool
}

func newBuiltin(name string, fn any) (*builtin, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, errs.New(errs.PhaseHost, errs.KindInvalidInput).
			Symbol(name).
			Detail("handler must be a function, got %T", fn).
			Build()
	}
	t := rv.Type()
	b := &builtin{fn: rv}

	in := make([]reflect.Type, t.NumIn())
	for i := range in {
		in[i] = t.In(i)
	}
	if len(in) > 0 && in[0] == interpType {
		b.interp = true
		in = in[1:]
	}
	if t.IsVariadic() {
		if in[len(in)-1].Elem() != objectType {
			return nil, registrationError(name, "variadic parameter must be ...host.Object")
		}
		b.rest = true
		in = in[:len(in)-1]
	}
	for _, p := range in {
		if !convertible(p) {
			return nil, registrationError(name, "unsupported parameter type "+p.String())
		}
	}
	b.params = in
	b.min, b.max = len(in), len(in)
	if b.rest {
		b.max = host.Many
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			b.hasError = true
		} else {
			b.result = t.Out(0)
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, registrationError(name, "second result must be error")
		}
		b.result, b.hasError = t.Out(0), true
	default:
		return nil, registrationError(name, "too many results")
	}
	if b.result != nil && !convertible(b.result) {
		return nil, registrationError(name, "unsupported result type "+b.result.String())
	}
	return b, nil
}

func registrationError(name, detail string) error {
	return errs.Registration("builtin", name, stderrors.New(detail))
}

func convertible(t reflect.Type) bool {
	switch t {
	case objectType, symbolType:
		return true
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int64, reflect.Float64, reflect.String, reflect.Bool:
		return true
	}
	return false
}

func (b *builtin) call(in *host.Interp, args []host.Object) host.Object {
	vals := make([]reflect.Value, 0, len(args)+1)
	if b.interp {
		vals = append(vals, reflect.ValueOf(in))
	}
	for i, p := range b.params {
		vals = append(vals, fromObject(in, args[i], p))
	}
	for _, a := range args[len(b.params):] {
		vals = append(vals, reflect.ValueOf(&a).Elem())
	}

	out := b.fn.Call(vals)
	if b.hasError {
		if err, _ := out[len(out)-1].Interface().(error); err != nil {
			raise(in, err)
		}
	}
	if b.result == nil {
		return host.Nil
	}
	return toObject(in, out[0])
}

// fromObject converts an argument, signaling wrong-type-argument when it
// does not fit t.
func fromObject(in *host.Interp, o host.Object, t reflect.Type) reflect.Value {
	if t == objectType {
		return reflect.ValueOf(&o).Elem()
	}
	if t == symbolType {
		s, ok := o.(*host.Symbol)
		if !ok {
			in.WrongType(host.Qsymbolp, o)
		}
		return reflect.ValueOf(s)
	}
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int64:
		n, ok := o.(host.Fixnum)
		if !ok {
			in.WrongType(host.Qintegerp, o)
		}
		v.SetInt(int64(n))
	case reflect.Float64:
		switch x := o.(type) {
		case *host.Float:
			v.SetFloat(x.V)
		case host.Fixnum:
			v.SetFloat(float64(x))
		default:
			in.WrongType(host.Qnumberp, o)
		}
	case reflect.String:
		s, ok := o.(*host.String)
		if !ok {
			in.WrongType(host.Qstringp, o)
		}
		v.SetString(s.S)
	case reflect.Bool:
		v.SetBool(!host.IsNil(o))
	}
	return v
}

func toObject(in *host.Interp, v reflect.Value) host.Object {
	switch v.Kind() {
	case reflect.Int, reflect.Int64:
		n := v.Int()
		if !host.InRange(n) {
			in.Signal(host.QoverflowError, host.List(in.MakeString(fmt.Sprint(n))))
		}
		return host.Fixnum(n)
	case reflect.Float64:
		return in.MakeFloat(v.Float())
	case reflect.String:
		return in.MakeString(v.String())
	case reflect.Bool:
		return host.Bool(v.Bool())
	}
	if v.IsNil() {
		return host.Nil
	}
	return v.Interface().(host.Object)
}

func raise(in *host.Interp, err error) {
	var se *host.SignalError
	if stderrors.As(err, &se) {
		in.Signal(se.Symbol, se.Data)
	}
	var te *host.ThrowError
	if stderrors.As(err, &te) {
		in.Throw(te.Tag, te.Value)
	}
	in.Error("%v", err)
}

// toKebabCase converts PascalCase to kebab-case. An acronym ends where a
// capital is followed by a lowercase letter: GetHTTPUrl -> get-http-url.
// Adjacent acronyms stay one word: GetHTTPURL -> get-httpurl.
func toKebabCase(s string) string {
	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			result.WriteRune(r)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// The last capital before a lowercase letter starts the next word.
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}
		if i > 0 {
			result.WriteByte('-')
		}
		for j := i; j < end; j++ {
			result.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}
	return result.String()
}
