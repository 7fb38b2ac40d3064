// Package module bridges foreign modules into a host interpreter.
//
// A module is a library exporting three symbols: a compatibility marker
// (plugin_is_GPL_compatible), an init function (module_init) and an
// optional ABI version string (module_abi_version). Loading it runs the
// init function with an InitRuntime, from which the module obtains an Env:
//
//	func ModuleInit(rt *module.InitRuntime) int {
//		env := rt.GetEnvironment(rt)
//		f := env.MakeFunction(env, 1, 1, double, "Double N.", nil)
//		env.Funcall(env, env.Intern(env, "fset"),
//			[]module.Value{env.Intern(env, "double"), f})
//		return 0
//	}
//
// Env is a table of function fields. Host objects cross it as opaque Value
// handles that compare equal iff the objects are eq. Handles live until the
// call that produced them returns unless pinned with MakeGlobalRef.
//
// Host errors and escapes never unwind through foreign code. Every Env
// operation that can raise records the exit on the environment and returns
// a zero sentinel; once an exit is pending all further operations are
// no-ops until NonLocalExitClear. When a module function returns, its
// pending exit is re-raised in the host.
//
// Environments, handles and the global reference table belong to the
// goroutine that owns the interpreter. Config.Debug enforces this.
package module
