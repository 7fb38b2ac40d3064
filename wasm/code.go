package wasm

import (
	"github.com/wippyai/module-bridge/wasm/internal/binary"
)

// Code builds an instruction sequence. Methods append one instruction and
// return the receiver so sequences read top to bottom.
type Code struct {
	w *binary.Writer
}

// NewCode returns an empty instruction sequence.
func NewCode() *Code {
	return &Code{w: binary.NewWriter()}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte { return c.w.Bytes() }

// Op appends a bare opcode.
func (c *Code) Op(op byte) *Code {
	c.w.Byte(op)
	return c
}

func (c *Code) index(op byte, idx uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(idx)
	return c
}

// memarg appends a memory instruction with natural alignment.
func (c *Code) memarg(op byte, align, offset uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(align)
	c.w.WriteU32(offset)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteS64(int64(v))
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.w.Byte(OpI64Const)
	c.w.WriteS64(v)
	return c
}

func (c *Code) F64Const(v float64) *Code {
	c.w.Byte(OpF64Const)
	c.w.WriteF64(v)
	return c
}

func (c *Code) LocalGet(i uint32) *Code  { return c.index(OpLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.index(OpLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code  { return c.index(OpLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.index(OpGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.index(OpGlobalSet, i) }
func (c *Code) Call(fn uint32) *Code     { return c.index(OpCall, fn) }
func (c *Code) Br(depth uint32) *Code    { return c.index(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code  { return c.index(OpBrIf, depth) }

func (c *Code) I32Load(offset uint32) *Code   { return c.memarg(OpI32Load, 2, offset) }
func (c *Code) I64Load(offset uint32) *Code   { return c.memarg(OpI64Load, 3, offset) }
func (c *Code) F64Load(offset uint32) *Code   { return c.memarg(OpF64Load, 3, offset) }
func (c *Code) I32Load8U(offset uint32) *Code { return c.memarg(OpI32Load8U, 0, offset) }
func (c *Code) I32Store(offset uint32) *Code  { return c.memarg(OpI32Store, 2, offset) }
func (c *Code) I64Store(offset uint32) *Code  { return c.memarg(OpI64Store, 3, offset) }
func (c *Code) F64Store(offset uint32) *Code  { return c.memarg(OpF64Store, 3, offset) }
func (c *Code) I32Store8(offset uint32) *Code { return c.memarg(OpI32Store8, 0, offset) }

// Block opens a block producing no value.
func (c *Code) Block() *Code {
	c.w.Byte(OpBlock)
	c.w.Byte(BlockEmpty)
	return c
}

// Loop opens a loop producing no value.
func (c *Code) Loop() *Code {
	c.w.Byte(OpLoop)
	c.w.Byte(BlockEmpty)
	return c
}

// If opens a conditional producing no value.
func (c *Code) If() *Code {
	c.w.Byte(OpIf)
	c.w.Byte(BlockEmpty)
	return c
}

// IfResult opens a conditional whose arms produce a value of type t.
func (c *Code) IfResult(t ValType) *Code {
	c.w.Byte(OpIf)
	c.w.Byte(byte(t))
	return c
}

func (c *Code) Else() *Code   { return c.Op(OpElse) }
func (c *Code) End() *Code    { return c.Op(OpEnd) }
func (c *Code) Return() *Code { return c.Op(OpReturn) }
func (c *Code) Drop() *Code   { return c.Op(OpDrop) }

// Body wraps the sequence, which must already end with End, as a
// function body.
func (c *Code) Body(locals ...LocalEntry) FuncBody {
	return FuncBody{Locals: locals, Code: c.Bytes()}
}

// ConstI32 returns the constant expression for v, for global
// initializers and data offsets.
func ConstI32(v int32) []byte {
	return NewCode().I32Const(v).End().Bytes()
}
