// Package modbridge connects dynamically loaded modules to an embeddable
// host interpreter.
//
// A module is a library exporting an init function. The bridge calls it
// with a runtime from which the module obtains an environment: a table of
// functions for creating and inspecting host values, defining functions
// the host can call, signaling errors and managing global references.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	modbridge/
//	├── host/        Host interpreter: objects, symbols, signals, builtins
//	├── module/      The bridge: value codec, environments, non-local exits,
//	│                function registration, global references, the loader
//	├── dynlib/      Library openers: Go plugins, static registry, routing mux
//	├── engine/      wasm32 guest modules on wazero and the guest ABI
//	│   └── guest/   Guest module assembler for tests and demos
//	├── wasm/        Core wasm binary encoder
//	├── resource/    Handle table for environments seen by guests
//	├── errors/      Structured error types for debugging
//	├── runtime/     High-level API wiring all of the above
//	└── cmd/modload  Command-line loader with an interactive mode
//
// # Quick Start
//
// Load a module and call a function it defines:
//
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
//
// # Writing Modules in Go
//
// A Go module exports plugin_is_GPL_compatible and module_init. Register it
// statically or build it with -buildmode=plugin:
//
//	func init() {
//	    dynlib.Register("demo", map[string]any{
//	        module.MarkerSymbol: true,
//	        module.InitSymbol:   module.InitFunc(demoInit),
//	    })
//	}
//
//	func demoInit(rt *module.InitRuntime) int {
//	    env := rt.GetEnvironment(rt)
//	    double := func(env *module.Env, args []module.Value, _ any) module.Value {
//	        return env.MakeInteger(env, 2*env.ExtractInteger(env, args[0]))
//	    }
//	    f := env.MakeFunction(env, 1, 1, double, "Double N.", nil)
//	    env.Funcall(env, env.Intern(env, "fset"), []module.Value{env.Intern(env, "double"), f})
//	    return 0
//	}
//
// # Writing Modules in WebAssembly
//
// A wasm module imports the environment functions from the "modbridge"
// host module and sees 32-bit handles. `modload -abi` prints the interface
// as WIT.
//
// # Thread Safety
//
// The interpreter, the bridge and the runtime are used from a single
// goroutine. Config.Debug turns misuse from other threads into panics.
package modbridge
