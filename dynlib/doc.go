// Package dynlib opens module libraries and resolves their symbols.
//
// Three sources are supported out of the box:
//
//   - Registry serves modules compiled into the program under
//     "static:<name>" paths. The process-wide Static registry is what
//     module.New wires by default.
//   - PluginOpener loads Go plugins built with -buildmode=plugin.
//   - engine.WazeroEngine (in another package) opens .wasm guests.
//
// Mux routes a path to one of them by prefix or suffix.
//
// Addr maps a function value back to the library and symbol it came from,
// which is how module functions describe themselves in error messages.
package dynlib
