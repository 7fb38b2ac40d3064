// Package host is a small embeddable interpreter core: the value heap,
// obarray, error and escape machinery, and builtins that module bridges call
// into.
//
// Errors and escapes are Go panics carrying *SignalError or *ThrowError.
// They are raised by Interp.Signal and Interp.Throw and intercepted by
// Catch, ConditionCase, or a handler pushed with PushHandler. Code entering
// the interpreter from plain Go should use Interp.Call or Interp.Protect,
// which turn them into ordinary error values:
//
//	in := host.New(nil)
//	v, err := in.Call(in.Intern("+"), host.Fixnum(1), host.Fixnum(2))
//	if host.Signaled(err, host.QoverflowError) {
//		// ...
//	}
//
// An Interp is owned by one goroutine. User-pointer finalizers queued by the
// Go collector run on that goroutine from RunFinalizers or GarbageCollect.
package host
