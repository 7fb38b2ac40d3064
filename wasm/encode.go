package wasm

import (
	"github.com/wippyai/module-bridge/wasm/internal/binary"
)

// Encode returns the binary form of m. Empty sections are omitted.
func (m *Module) Encode() []byte {
	out := binary.NewWriter()
	out.WriteU32LE(Magic)
	out.WriteU32LE(Version)

	section := func(id byte, n int, item func(w *binary.Writer, i int)) {
		if n == 0 {
			return
		}
		w := binary.NewWriter()
		w.WriteU32(uint32(n))
		for i := range n {
			item(w, i)
		}
		out.Byte(id)
		out.WriteU32(uint32(w.Len()))
		out.WriteBytes(w.Bytes())
	}

	section(SectionType, len(m.Types), func(w *binary.Writer, i int) {
		w.Byte(FuncTypeByte)
		valTypes(w, m.Types[i].Params)
		valTypes(w, m.Types[i].Results)
	})
	section(SectionImport, len(m.Imports), func(w *binary.Writer, i int) {
		imp := m.Imports[i]
		w.WriteName(imp.Module)
		w.WriteName(imp.Name)
		w.Byte(KindFunc)
		w.WriteU32(imp.Type)
	})
	section(SectionFunction, len(m.Funcs), func(w *binary.Writer, i int) {
		w.WriteU32(m.Funcs[i])
	})
	if m.Memory != nil {
		section(SectionMemory, 1, func(w *binary.Writer, _ int) {
			w.Byte(LimitsNoMax)
			w.WriteU32(m.Memory.MinPages)
		})
	}
	section(SectionGlobal, len(m.Globals), func(w *binary.Writer, i int) {
		g := m.Globals[i]
		w.Byte(byte(g.Type.ValType))
		w.Byte(boolByte(g.Type.Mutable))
		w.WriteBytes(g.Init)
	})
	section(SectionExport, len(m.Exports), func(w *binary.Writer, i int) {
		e := m.Exports[i]
		w.WriteName(e.Name)
		w.Byte(e.Kind)
		w.WriteU32(e.Idx)
	})
	section(SectionCode, len(m.Code), func(w *binary.Writer, i int) {
		body := binary.NewWriter()
		body.WriteU32(uint32(len(m.Code[i].Locals)))
		for _, l := range m.Code[i].Locals {
			body.WriteU32(l.Count)
			body.Byte(byte(l.ValType))
		}
		body.WriteBytes(m.Code[i].Code)
		w.WriteU32(uint32(body.Len()))
		w.WriteBytes(body.Bytes())
	})
	section(SectionData, len(m.Data), func(w *binary.Writer, i int) {
		w.WriteU32(0) // active, memory 0
		w.WriteBytes(m.Data[i].Offset)
		w.WriteU32(uint32(len(m.Data[i].Init)))
		w.WriteBytes(m.Data[i].Init)
	})
	return out.Bytes()
}

func valTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
