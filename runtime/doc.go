// Package runtime is the high-level API: one host interpreter with the
// module bridge and the wasm engine wired behind a single opener.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	if err := rt.Load(ctx, "square.wasm"); err != nil {
//	    log.Fatal(err)
//	}
//	result, err := rt.Call("square", host.Fixnum(12))
//	fmt.Println(host.Print(result)) // 144
//
// # Module Paths
//
// Load picks the opener by path:
//
//	foo.wasm        wasm32 guest on wazero (32-bit handles)
//	static:foo      Go module registered with dynlib.Register
//	anything else   Go plugin built with -buildmode=plugin
//
// # Host Functions
//
// Go functions become builtins that modules reach through funcall:
//
//	rt.RegisterFunc("greet", func(name string) string {
//	    return "Hello, " + name
//	})
//
// or a whole struct at once with RegisterHost.
package runtime
