package wasm

const (
	// Magic is the wasm binary magic number ("\0asm" little-endian).
	Magic uint32 = 0x6D736100

	// Version is the binary format version.
	Version uint32 = 0x01
)

// IDs of the sections Encode writes, in the order they must appear.
const (
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionCode     byte = 10
	SectionData     byte = 11
)

// Import and export kinds.
const (
	KindFunc   byte = 0
	KindMemory byte = 2
	KindGlobal byte = 3
)

// Value types.
const (
	ValI32 ValType = 0x7F
	ValI64 ValType = 0x7E
	ValF32 ValType = 0x7D
	ValF64 ValType = 0x7C
)

// BlockEmpty is the block type of a block producing no value.
const BlockEmpty byte = 0x40

// Opcodes emitted by Code.
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0B
	OpBr          byte = 0x0C
	OpBrIf        byte = 0x0D
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A
	OpSelect      byte = 0x1B

	OpLocalGet  byte = 0x20
	OpLocalSet  byte = 0x21
	OpLocalTee  byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24

	OpI32Load   byte = 0x28
	OpI64Load   byte = 0x29
	OpF64Load   byte = 0x2B
	OpI32Load8U byte = 0x2D
	OpI32Store  byte = 0x36
	OpI64Store  byte = 0x37
	OpF64Store  byte = 0x39
	OpI32Store8 byte = 0x3A

	OpI32Const byte = 0x41
	OpI64Const byte = 0x42
	OpF64Const byte = 0x44

	OpI32Eqz byte = 0x45
	OpI32Eq  byte = 0x46
	OpI32Ne  byte = 0x47
	OpI32LtS byte = 0x48
	OpI32Add byte = 0x6A
	OpI32Sub byte = 0x6B
	OpI32Mul byte = 0x6C
	OpI32And byte = 0x71
	OpI64Add byte = 0x7C
	OpI64Sub byte = 0x7D
	OpI64Mul byte = 0x7E
	OpF64Add byte = 0xA0
	OpF64Mul byte = 0xA2

	OpI32WrapI64    byte = 0xA7
	OpI64ExtendI32S byte = 0xAC
	OpI64ExtendI32U byte = 0xAD
)

// LimitsNoMax flags limits that have only a minimum.
const LimitsNoMax byte = 0x00

// FuncTypeByte introduces a function type.
const FuncTypeByte byte = 0x60
