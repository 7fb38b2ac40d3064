// Package engine runs wasm32 guest modules on wazero.
//
// A guest is a core wasm module that imports the environment table from the
// host module "modbridge" and exports:
//
//	memory                     its linear memory
//	plugin_is_GPL_compatible   any export, marks compatibility
//	module_init(rt) -> s32     the init function
//	module_abi_version         optional i32 global pointing at a C string
//	cabi_realloc or alloc      allocator for argument arrays
//	module_finalize(fin, ptr)  optional, runs user-pointer finalizers
//
// Functions registered with make_function are guest exports with the
// signature of GuestFunc: they receive an environment handle, the argument
// handles as a list<value> in guest memory and the 64-bit user data given
// at registration.
//
// Handles crossing the boundary are 32 bits wide. Environment and runtime
// handles index a resource.Table and are valid only during the call they
// were passed to.
//
// The ABI is declared with WIT types and flattened to core types the way the
// canonical ABI does; Describe renders it as a WIT package:
//
//	WIT Type        Core Representation
//	─────────────────────────────────────
//	bool, u32, s32  i32
//	u64, s64        i64
//	f64             f64
//	string, list<T> (ptr, len) as i32×2
//
// Traps inside a guest, and host calls with invalid handles or addresses,
// become error signals on the environment of the call.
//
// WazeroEngine implements dynlib.Opener; route .wasm paths to it with a
// dynlib.Mux. Compilation may run concurrently (see Precompile), while
// instantiation and calls happen on the interpreter goroutine.
package engine
