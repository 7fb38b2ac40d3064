package wasm

import "slices"

// Module is the subset of a core module a guest needs: imported and
// defined functions, at most one memory, globals and active data.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []uint32 // type index of each defined function
	Memory  *Memory
	Globals []Global
	Exports []Export
	Code    []FuncBody
	Data    []DataSegment
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// ValType is a value type.
type ValType byte

// Import is an imported function.
type Import struct {
	Module string
	Name   string
	Type   uint32
}

// Memory is memory 0, growable without a maximum.
type Memory struct {
	MinPages uint32
}

// GlobalType describes a global.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a defined global. Init is a constant expression ending in
// OpEnd.
type Global struct {
	Type GlobalType
	Init []byte
}

// Export exports an item by index.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// FuncBody is the code of a defined function, ending in OpEnd.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// DataSegment is copied into memory 0 at Offset, a constant expression.
type DataSegment struct {
	Offset []byte
	Init   []byte
}

// AddType returns the index of ft, appending it if not yet present.
func (m *Module) AddType(ft FuncType) uint32 {
	i := slices.IndexFunc(m.Types, func(t FuncType) bool {
		return slices.Equal(t.Params, ft.Params) && slices.Equal(t.Results, ft.Results)
	})
	if i < 0 {
		m.Types = append(m.Types, ft)
		i = len(m.Types) - 1
	}
	return uint32(i)
}
