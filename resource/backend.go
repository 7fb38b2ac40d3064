package resource

import (
	"sync"

	errs "github.com/wippyai/module-bridge/errors"
)

// ErrClosed is returned when the backend no longer accepts values.
var ErrClosed = errs.Closed(errs.PhaseGuest, "handle table")

// LocalBackend is an in-memory slot store with handle reuse.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value  any
	typeID uint32
	valid  bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 16),
		freeList: make([]Handle, 0, 8),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(typeID uint32, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := entry{typeID: typeID, value: value, valid: true}
	if n := len(b.freeList); n > 0 {
		handle := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		b.entries[handle-1] = e
		return handle, nil
	}
	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), nil
}

func (b *LocalBackend) lookup(handle Handle) (entry, bool) {
	if handle == 0 {
		return entry{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := int(handle) - 1
	if idx >= len(b.entries) || !b.entries[idx].valid {
		return entry{}, false
	}
	return b.entries[idx], true
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	e, ok := b.lookup(handle)
	return e.value, ok
}

// TypeID returns the type ID of a handle.
func (b *LocalBackend) TypeID(handle Handle) (uint32, bool) {
	e, ok := b.lookup(handle)
	return e.typeID, ok
}

// Drop removes a value and returns it.
func (b *LocalBackend) Drop(handle Handle) (any, bool) {
	if handle == 0 {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := int(handle) - 1
	if idx >= len(b.entries) || !b.entries[idx].valid {
		return nil, false
	}
	value := b.entries[idx].value
	b.entries[idx] = entry{}
	b.freeList = append(b.freeList, handle)
	return value, true
}

// Len returns the number of live values.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries) - len(b.freeList)
}

// Each calls fn for every live value until fn returns false.
func (b *LocalBackend) Each(fn func(Handle, uint32, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid && !fn(Handle(i+1), e.typeID, e.value) {
			return
		}
	}
}

// Close drops every value, running Droppers, and rejects further inserts.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for i := range b.entries {
		if b.entries[i].valid {
			if d, ok := b.entries[i].value.(Dropper); ok {
				d.Drop()
			}
		}
	}
	b.entries = nil
	b.freeList = nil
	return nil
}
