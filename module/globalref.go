package module

import "github.com/wippyai/module-bridge/host"

// globalRefs counts global references per object identity. Pinned objects
// keep their handles valid across calls.
//
// Like the rest of the bridge it is only touched from the interpreter
// goroutine and needs no locking.
type globalRefs struct {
	counts map[host.Object]int64
	max    int64
}

func newGlobalRefs(max int64) *globalRefs {
	if max <= 0 {
		max = host.MostPositiveFixnum
	}
	return &globalRefs{counts: make(map[host.Object]int64), max: max}
}

// ref increments the count of o. It reports false if the count would
// exceed the limit.
func (g *globalRefs) ref(o host.Object) bool {
	o = canonical(o)
	n := g.counts[o] + 1
	if n > g.max {
		return false
	}
	g.counts[o] = n
	return true
}

// unref decrements the count of o and reports whether the last reference
// was dropped. Freeing an object that holds no reference does nothing.
func (g *globalRefs) unref(o host.Object) bool {
	o = canonical(o)
	n, ok := g.counts[o]
	if !ok {
		return false
	}
	if n > 1 {
		g.counts[o] = n - 1
		return false
	}
	delete(g.counts, o)
	return true
}

func (g *globalRefs) pinned(o host.Object) bool {
	_, ok := g.counts[canonical(o)]
	return ok
}

func (g *globalRefs) count(o host.Object) int64 {
	return g.counts[canonical(o)]
}

func canonical(o host.Object) host.Object {
	if o == nil {
		return host.Nil
	}
	return o
}
