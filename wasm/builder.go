package wasm

import "fmt"

// Builder assembles a Module, tracking the function and global index
// spaces. Imports must be declared before definitions.
type Builder struct {
	m       Module
	defined bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// ImportFunc imports a function and returns its index.
func (b *Builder) ImportFunc(module, name string, ft FuncType) uint32 {
	if b.defined {
		panic(fmt.Sprintf("wasm: import %s.%s after definitions", module, name))
	}
	b.m.Imports = append(b.m.Imports, Import{Module: module, Name: name, Type: b.m.AddType(ft)})
	return uint32(len(b.m.Imports) - 1)
}

// Memory defines memory 0 with min pages and exports it as "memory".
func (b *Builder) Memory(min uint32) {
	b.m.Memory = &Memory{MinPages: min}
	b.m.Exports = append(b.m.Exports, Export{Name: "memory", Kind: KindMemory})
}

// Func defines a function and returns its index.
func (b *Builder) Func(ft FuncType, body FuncBody) uint32 {
	b.defined = true
	b.m.Funcs = append(b.m.Funcs, b.m.AddType(ft))
	b.m.Code = append(b.m.Code, body)
	return uint32(len(b.m.Imports) + len(b.m.Funcs) - 1)
}

// ExportFunc exports function idx as name.
func (b *Builder) ExportFunc(name string, idx uint32) {
	b.m.Exports = append(b.m.Exports, Export{Name: name, Kind: KindFunc, Idx: idx})
}

// Global defines a global and returns its index.
func (b *Builder) Global(t ValType, mutable bool, init []byte) uint32 {
	b.defined = true
	b.m.Globals = append(b.m.Globals, Global{Type: GlobalType{ValType: t, Mutable: mutable}, Init: init})
	return uint32(len(b.m.Globals) - 1)
}

// ExportGlobal exports global idx as name.
func (b *Builder) ExportGlobal(name string, idx uint32) {
	b.m.Exports = append(b.m.Exports, Export{Name: name, Kind: KindGlobal, Idx: idx})
}

// Data places init at offset in memory 0.
func (b *Builder) Data(offset int32, init []byte) {
	b.m.Data = append(b.m.Data, DataSegment{Offset: ConstI32(offset), Init: init})
}

// Encode encodes the assembled module.
func (b *Builder) Encode() []byte { return b.m.Encode() }
