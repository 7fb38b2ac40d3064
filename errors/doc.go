// Package errors provides structured error types for Go-level failures of the
// module bridge: opening libraries, resolving symbols, compiling and linking
// guests, and guest traps.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the library path, the symbol involved and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindIncompatible).
//		Path("/usr/lib/mod.wasm").
//		Symbol("module_abi_version").
//		Detail("abi %s not supported", v).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.SymbolNotFound(path, "module_init")
//	err := errors.OutOfBounds(errors.PhaseGuest, ptr, size)
//
// Failures raised inside the host interpreter are host signals
// (*host.SignalError), which the bridge never converts into *Error.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
