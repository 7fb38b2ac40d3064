package resource

import "sync"

// Table maps guest-visible handles to host values, with type tags and
// lifecycle observers.
type Table struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{backend: NewLocalBackend()}
}

// Insert adds a value and returns its handle, or 0 once the table is closed.
func (t *Table) Insert(typeID uint32, value any) Handle {
	handle, err := t.backend.Create(typeID, value)
	if err != nil {
		return 0
	}
	t.notify(Event{Type: EventCreated, Handle: handle, TypeID: typeID, Value: value})
	return handle
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it was inserted with typeID.
func (t *Table) GetTyped(handle Handle, typeID uint32) (any, bool) {
	actual, ok := t.backend.TypeID(handle)
	if !ok || actual != typeID {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Remove drops a value, running its Dropper, and returns it.
func (t *Table) Remove(handle Handle) (any, bool) {
	typeID, _ := t.backend.TypeID(handle)
	value, ok := t.backend.Drop(handle)
	if !ok {
		return nil, false
	}
	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventDropped, Handle: handle, TypeID: typeID, Value: value})
	return value, true
}

// Lookup returns the handle of the first live value for which match
// returns true.
func (t *Table) Lookup(match func(typeID uint32, value any) bool) (Handle, bool) {
	var found Handle
	t.backend.Each(func(h Handle, typeID uint32, value any) bool {
		if match(typeID, value) {
			found = h
			return false
		}
		return true
	})
	return found, found != 0
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live values.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Close releases all values and stops accepting inserts.
func (t *Table) Close() error {
	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}

// Typed is a view of a Table restricted to one type ID.
type Typed[T any] struct {
	table  *Table
	typeID uint32
}

// NewTyped returns a typed view of table.
func NewTyped[T any](table *Table, typeID uint32) Typed[T] {
	return Typed[T]{table: table, typeID: typeID}
}

// Insert adds a value and returns its handle.
func (t Typed[T]) Insert(value T) Handle {
	return t.table.Insert(t.typeID, value)
}

// Get retrieves a value of the view's type.
func (t Typed[T]) Get(handle Handle) (T, bool) {
	v, ok := t.table.GetTyped(handle, t.typeID)
	if !ok {
		var zero T
		return zero, false
	}
	x, ok := v.(T)
	return x, ok
}

// Remove drops a value of the view's type.
func (t Typed[T]) Remove(handle Handle) (T, bool) {
	var zero T
	if _, ok := t.table.GetTyped(handle, t.typeID); !ok {
		return zero, false
	}
	v, ok := t.table.Remove(handle)
	if !ok {
		return zero, false
	}
	x, ok := v.(T)
	return x, ok
}
