// Package wasm encodes core WebAssembly modules.
//
// It covers the subset a guest module needs: function types, function
// imports, defined functions, one linear memory, globals, exports and
// active data segments. Builder tracks the index spaces and Code emits
// instruction sequences:
//
//	b := wasm.NewBuilder()
//	add := b.Func(wasm.FuncType{
//		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
//		Results: []wasm.ValType{wasm.ValI32},
//	}, wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).End().Body())
//	b.ExportFunc("add", add)
//	bin := b.Encode()
package wasm
