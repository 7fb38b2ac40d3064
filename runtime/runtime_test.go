package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wippyai/module-bridge/dynlib"
	"github.com/wippyai/module-bridge/engine/guest"
	"github.com/wippyai/module-bridge/host"
	"github.com/wippyai/module-bridge/module"
	"github.com/wippyai/module-bridge/wasm"
)

// lenInit defines rt-len, the byte length of a string.
func lenInit(rt *module.InitRuntime) int {
	env := rt.GetEnvironment(rt)
	length := func(env *module.Env, args []module.Value, _ any) module.Value {
		var n int
		if !env.CopyStringContents(env, args[0], nil, &n) {
			return module.Nil
		}
		return env.MakeInteger(env, int64(n-1))
	}
	f := env.MakeFunction(env, 1, 1, length, "Length of S in bytes.", nil)
	env.Funcall(env, env.Intern(env, "fset"), []module.Value{env.Intern(env, "rt-len"), f})
	return 0
}

// relayGuest defines symbol as a function of two arguments that calls
// target on them.
func relayGuest(symbol, target string) []byte {
	m := guest.Standard("", func(m *guest.Module, c *wasm.Code, env uint32) {
		m.Defun(c, env, symbol, "relay", 2, 2, "Call "+target+".")
	})
	c := wasm.NewCode()
	m.Funcall(c, guest.Env, m.Sym(guest.Env, target), guest.ArgPush(0), guest.ArgPush(1))
	m.Func("relay", c.End())
	return m.Encode()
}

func newTestRuntime(t *testing.T, cfg *Config) *Runtime {
	t.Helper()
	ctx := context.Background()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Static == nil {
		cfg.Static = dynlib.NewRegistry()
		cfg.Static.Register("rt", map[string]any{
			module.MarkerSymbol: true,
			module.InitSymbol:   module.InitFunc(lenInit),
		})
	}
	rt, err := New(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := rt.Close(ctx); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return rt
}

func writeFile(t *testing.T, name string, bin []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, bin, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRuntime_LoadAll(t *testing.T) {
	rt := newTestRuntime(t, nil)
	ctx := context.Background()

	paths := []string{
		"static:rt",
		writeFile(t, "plus.wasm", relayGuest("rt-plus", "+")),
		writeFile(t, "cons.wasm", relayGuest("rt-cons", "cons")),
	}
	if err := rt.LoadAll(ctx, paths); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"rt-len", []string{"héllo"}, "6"},
		{"rt-plus", []string{"2", "40"}, "42"},
		{"rt-plus", []string{"1.5", "1"}, "2.5"},
		{"rt-cons", []string{"'a", "nil"}, "(a)"},
	}
	for _, tt := range tests {
		got, err := rt.Call(tt.name, rt.ParseArgs(tt.args)...)
		if err != nil {
			t.Errorf("%s %v: %v", tt.name, tt.args, err)
			continue
		}
		if s := host.Print(got); s != tt.want {
			t.Errorf("%s %v = %s, want %s", tt.name, tt.args, s, tt.want)
		}
	}

	want := []FunctionInfo{
		{Name: "rt-cons", Doc: "Call cons.", MinArity: 2, MaxArity: 2},
		{Name: "rt-len", Doc: "Length of S in bytes.", MinArity: 1, MaxArity: 1},
		{Name: "rt-plus", Doc: "Call +.", MinArity: 2, MaxArity: 2},
	}
	got := rt.Functions()
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(FunctionInfo{}, "Description")); diff != "" {
		t.Errorf("Functions mismatch (-want +got):\n%s", diff)
	}
	if len(got) == 3 && got[0].Description != "#<module function relay from "+paths[2]+">" {
		t.Errorf("Description = %q", got[0].Description)
	}

	mods := rt.Bridge().Modules()
	if len(mods) != 3 || mods[0].Width != module.Width64 || mods[1].Width != module.Width32 {
		t.Errorf("Modules = %+v", mods)
	}
}

func TestRuntime_LoadErrors(t *testing.T) {
	rt := newTestRuntime(t, nil)
	ctx := context.Background()

	tests := []struct {
		path string
		want string
	}{
		{filepath.Join(t.TempDir(), "absent.wasm"), "Cannot load file"},
		{"static:nope", "Cannot load file static:nope"},
		{writeFile(t, "junk.wasm", []byte("junk")), "Cannot load file"},
	}
	for _, tt := range tests {
		err := rt.Load(ctx, tt.path)
		if !host.Signaled(err, host.Qerror) || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Load(%s) = %v, want error containing %q", tt.path, err, tt.want)
		}
	}

	err := rt.LoadAll(ctx, []string{
		writeFile(t, "a.wasm", relayGuest("rt-a", "+")),
		filepath.Join(t.TempDir(), "gone.wasm"),
	})
	if err == nil {
		t.Fatal("LoadAll with a missing file succeeded")
	}
	if len(rt.Bridge().Modules()) != 0 {
		t.Error("LoadAll loaded modules after failing to compile")
	}
}

func TestRuntime_CallUnknown(t *testing.T) {
	rt := newTestRuntime(t, nil)
	_, err := rt.Call("no-such-function")
	if !host.Signaled(err, host.QvoidFunction) {
		t.Errorf("err = %v", err)
	}
	if _, ok := rt.Interp().InternSoft("no-such-function"); ok {
		t.Error("Call interned an unknown name")
	}
}

func TestParseArg(t *testing.T) {
	rt := newTestRuntime(t, nil)
	tests := []struct {
		in   string
		want string
		typ  string
	}{
		{"42", "42", "integer"},
		{"-7", "-7", "integer"},
		{"1.5", "1.5", "float"},
		{"2e3", "2000.0", "float"},
		{"'foo", "foo", "symbol"},
		{"nil", "nil", "symbol"},
		{"t", "t", "symbol"},
		{`"a\tb"`, `"a\tb"`, "string"},
		{`"unterminated`, `"\"unterminated"`, "string"},
		{"hello", `"hello"`, "string"},
		{"'", `"'"`, "string"},
		{"99999999999999999999", `"99999999999999999999"`, "string"},
	}
	for _, tt := range tests {
		got := rt.ParseArg(tt.in)
		if host.Print(got) != tt.want || got.TypeName() != tt.typ {
			t.Errorf("ParseArg(%q) = %s (%s), want %s (%s)", tt.in, host.Print(got), got.TypeName(), tt.want, tt.typ)
		}
	}
}

var errDivZero = errors.New("division by zero")

type mathHost struct {
	calls int
}

func (h *mathHost) Prefix() string { return "m-" }

func (h *mathHost) Add(a, b int64) int64 {
	h.calls++
	return a + b
}

func (h *mathHost) Div(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivZero
	}
	return a / b, nil
}

func (h *mathHost) Join(sep string, parts ...host.Object) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = host.Print(p)
	}
	return strings.Join(s, sep)
}

func (h *mathHost) IsEven(n int) bool { return n%2 == 0 }

func (h *mathHost) GetHTTPUrl() string { return "http://example.invalid" }

func (h *mathHost) Fail(in *host.Interp, sym *host.Symbol) error {
	return &host.SignalError{Symbol: sym, Data: host.List(in.MakeString("from go"))}
}

func (h *mathHost) Huge() int64 { return 1 << 62 }

func (h *mathHost) Same(o host.Object) host.Object { return o }

func TestRegisterHost(t *testing.T) {
	rt := newTestRuntime(t, nil)
	h := &mathHost{}
	if err := rt.RegisterHost(h); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
		sig  *host.Symbol
	}{
		{name: "m-add", args: []string{"2", "3"}, want: "5"},
		{name: "m-add", args: []string{"2"}, sig: host.QwrongNumberOfArguments},
		{name: "m-add", args: []string{"x", "3"}, sig: host.QwrongTypeArgument},
		{name: "m-div", args: []string{"1", "4"}, want: "0.25"},
		{name: "m-div", args: []string{"1", "0"}, sig: host.Qerror},
		{name: "m-join", args: []string{"-", "1", "'a", "2.5"}, want: `"1-a-2.5"`},
		{name: "m-join", args: []string{","}, want: `""`},
		{name: "m-is-even", args: []string{"4"}, want: "t"},
		{name: "m-is-even", args: []string{"3"}, want: "nil"},
		{name: "m-get-http-url", want: `"http://example.invalid"`},
		{name: "m-fail", args: []string{"'arith-error"}, sig: host.QarithError},
		{name: "m-huge", sig: host.QoverflowError},
		{name: "m-same", args: []string{"'x"}, want: "x"},
	}
	for _, tt := range tests {
		got, err := rt.Call(tt.name, rt.ParseArgs(tt.args)...)
		if tt.sig != nil {
			if !host.Signaled(err, tt.sig) {
				t.Errorf("%s %v: err = %v, want %s", tt.name, tt.args, err, tt.sig.Name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s %v: %v", tt.name, tt.args, err)
			continue
		}
		if s := host.Print(got); s != tt.want {
			t.Errorf("%s %v = %s, want %s", tt.name, tt.args, s, tt.want)
		}
	}
	if h.calls != 1 {
		t.Errorf("Add ran %d times", h.calls)
	}

	_, err := rt.Call("m-div", host.Fixnum(1), host.Fixnum(0))
	if err == nil || err.Error() != errDivZero.Error() {
		t.Errorf("m-div by zero = %v", err)
	}
}

func TestRegisterHost_CalledFromGuest(t *testing.T) {
	rt := newTestRuntime(t, nil)
	if err := rt.RegisterHost(&mathHost{}); err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, "relay.wasm", relayGuest("rt-relay", "m-add"))
	if err := rt.Load(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	got, err := rt.Call("rt-relay", host.Fixnum(20), host.Fixnum(22))
	if err != nil || got != host.Fixnum(42) {
		t.Errorf("rt-relay 20 22 = %v, %v", got, err)
	}
	if _, err := rt.Call("rt-relay", rt.ParseArg("x"), host.Fixnum(1)); !host.Signaled(err, host.QwrongTypeArgument) {
		t.Errorf("rt-relay x 1: %v", err)
	}
}

type explicitHost struct{}

func (explicitHost) Prefix() string { return "ignored-" }

func (explicitHost) Register() map[string]any {
	return map[string]any{"answer": func() int { return 42 }}
}

func TestRegisterHost_Explicit(t *testing.T) {
	rt := newTestRuntime(t, nil)
	if err := rt.RegisterHost(explicitHost{}); err != nil {
		t.Fatal(err)
	}
	if got, err := rt.Call("answer"); err != nil || got != host.Fixnum(42) {
		t.Errorf("answer = %v, %v", got, err)
	}
	if _, ok := rt.Interp().InternSoft("ignored-register"); ok {
		t.Error("explicit host registered its methods too")
	}
}

func TestRegisterFunc_Invalid(t *testing.T) {
	rt := newTestRuntime(t, nil)
	tests := []struct {
		name string
		fn   any
	}{
		{"", func() {}},
		{"not-func", 42},
		{"chan-param", func(chan int) {}},
		{"int-rest", func(...int) {}},
		{"three-results", func() (int, int, error) { return 0, 0, nil }},
		{"second-not-error", func() (int, int) { return 0, 0 }},
		{"map-result", func() map[string]int { return nil }},
	}
	for _, tt := range tests {
		if err := rt.RegisterFunc(tt.name, tt.fn); err == nil {
			t.Errorf("RegisterFunc(%q, %T) succeeded", tt.name, tt.fn)
		}
	}
}

func TestToKebabCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Add", "add"},
		{"IsEven", "is-even"},
		{"GetHTTPUrl", "get-http-url"},
		{"GetHTTPURL", "get-httpurl"},
		{"HTTPServer", "http-server"},
		{"ID", "id"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := toKebabCase(tt.in); got != tt.want {
			t.Errorf("toKebabCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
