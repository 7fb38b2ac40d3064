package module

import (
	"fmt"

	"github.com/wippyai/module-bridge/host"
)

// Handle layout: 0 is nil, low bits 01 carry an immediate fixnum, low bits
// 00 carry a slot id.
const (
	tagMask   = 3
	tagFixnum = 1
	tagBits   = 2
)

// Immediate fixnum range of 32-bit handles.
const (
	maxImmediate32 = 1<<29 - 1
	minImmediate32 = -(1 << 29)
)

type slot struct {
	// obj is what the slot holds: the object itself, or a box for a
	// fixnum that has no immediate encoding.
	obj host.Object
	// key is the decoded object, used for identity lookups.
	key host.Object
	// owner is the environment that introduced the slot. Slots without an
	// owner are pinned by global references.
	owner *envPrivate
}

// Codec converts between host objects and handles of one width.
//
// Heap objects are entered into a slot table keyed by identity, so every
// object has at most one live handle and handle equality tracks eq. Slots
// live as long as the environment that introduced them, or as long as the
// object is pinned in the global reference table.
type Codec struct {
	in    *host.Interp
	slots map[uint64]*slot
	index map[host.Object]uint64
	// mark is the private cdr of fixnum boxes.
	mark    *host.Cons
	free    []uint64
	next    uint64
	maxID   uint64
	width   Width
	boxings uint64
}

func newCodec(in *host.Interp, width Width) *Codec {
	c := &Codec{
		in:    in,
		width: width,
		slots: make(map[uint64]*slot),
		index: make(map[host.Object]uint64),
		mark:  &host.Cons{Car: host.Nil, Cdr: host.Nil},
	}
	if width == Width32 {
		c.maxID = 1<<30 - 1
	} else {
		c.maxID = 1<<62 - 1
	}
	return c
}

// Width returns the handle width.
func (c *Codec) Width() Width { return c.width }

// Len returns the number of live slots.
func (c *Codec) Len() int { return len(c.slots) }

// Boxings returns how many fixnums were boxed.
func (c *Codec) Boxings() uint64 { return c.boxings }

func (c *Codec) immediate(n int64) bool {
	if c.width == Width32 {
		return n >= minImmediate32 && n <= maxImmediate32
	}
	return true
}

// encode returns the handle of o, introducing a slot owned by p if needed.
// It may signal memory-full.
func (c *Codec) encode(p *envPrivate, o host.Object) Value {
	if host.IsNil(o) {
		return Nil
	}
	if n, ok := o.(host.Fixnum); ok && c.immediate(int64(n)) {
		v := uint64(int64(n)<<tagBits) | tagFixnum
		if c.width == Width32 {
			v &= 0xffffffff
		}
		return Value(v)
	}
	if id, ok := c.index[o]; ok {
		if s := c.slots[id]; s.owner == nil && p != nil {
			s.owner = p
			p.introduced = append(p.introduced, id)
		}
		return Value(id << tagBits)
	}

	stored := o
	if n, ok := o.(host.Fixnum); ok {
		stored = c.in.Cons(n, c.mark)
		c.boxings++
	}
	id := c.alloc()
	c.slots[id] = &slot{obj: stored, key: o, owner: p}
	c.index[o] = id
	if p != nil {
		p.introduced = append(p.introduced, id)
	}
	return Value(id << tagBits)
}

// decode returns the object of v. Unknown handles signal invalid-module-call.
func (c *Codec) decode(v Value) host.Object {
	u := uint64(v)
	if u == 0 {
		return host.Nil
	}
	if c.width == Width32 && u > 0xffffffff {
		c.invalid(v)
	}
	switch u & tagMask {
	case tagFixnum:
		if c.width == Width32 {
			return host.Fixnum(int64(int32(uint32(u))) >> tagBits)
		}
		return host.Fixnum(int64(u) >> tagBits)
	case 0:
	default:
		c.invalid(v)
	}
	s, ok := c.slots[u>>tagBits]
	if !ok {
		c.invalid(v)
	}
	if box, ok := s.obj.(*host.Cons); ok && box.Cdr == c.mark {
		return box.Car
	}
	return s.obj
}

func (c *Codec) invalid(v Value) {
	c.in.Signal(QinvalidModuleCall, host.List(host.NewString(fmt.Sprintf("invalid value handle %#x", uint64(v)))))
}

func (c *Codec) alloc() uint64 {
	if n := len(c.free); n > 0 {
		id := c.free[n-1]
		c.free = c.free[:n-1]
		return id
	}
	if c.next >= c.maxID {
		c.in.MemoryFull()
	}
	c.next++
	return c.next
}

func (c *Codec) release(id uint64) {
	s, ok := c.slots[id]
	if !ok {
		return
	}
	delete(c.index, s.key)
	delete(c.slots, id)
	c.free = append(c.free, id)
}

// releaseEnv drops the slots p introduced. Slots of pinned objects are
// orphaned instead and released by unpinned.
func (c *Codec) releaseEnv(p *envPrivate, pinned func(host.Object) bool) {
	for _, id := range p.introduced {
		s, ok := c.slots[id]
		if !ok || s.owner != p {
			continue
		}
		if pinned(s.key) {
			s.owner = nil
			continue
		}
		c.release(id)
	}
	p.introduced = nil
}

// unpinned releases the orphaned slot of o, if any.
func (c *Codec) unpinned(o host.Object) {
	id, ok := c.index[o]
	if !ok {
		return
	}
	if c.slots[id].owner == nil {
		c.release(id)
	}
}
