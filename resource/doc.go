// Package resource provides handle tables for host values exposed to wasm
// guests.
//
// A guest cannot hold a Go pointer. When the engine passes an environment
// or an init runtime to guest code it inserts the value into a Table and
// hands the guest the resulting 32-bit handle; guest imports resolve the
// handle back:
//
//	table := resource.NewTable()
//	envs := resource.NewTyped[*module.Env](table, resource.TypeEnv)
//
//	h := envs.Insert(env)
//	defer envs.Remove(h)
//
//	env, ok := envs.Get(h) // false for stale or foreign handles
//
// Handle 0 is never issued. Released handles are reused.
//
// Observers registered with Subscribe see every insert and removal, which
// the engine uses for debug logging.
package resource
