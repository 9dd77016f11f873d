package wasm

// Opcode identifies one instruction. Reef decodes the full Wasm MVP
// instruction set into this internal tagged form rather than dispatching on
// raw bytes at interpret time, following the teacher's practice of
// translating to an internal IR once at decode time.
type Opcode uint16

const (
	OpUnreachable Opcode = iota
	OpNop
	OpBlock
	OpLoop
	OpIf
	OpElse
	OpEnd
	OpBr
	OpBrIf
	OpBrTable
	OpReturn
	OpCall
	OpCallIndirect
	OpDrop
	OpSelect
	OpLocalGet
	OpLocalSet
	OpLocalTee
	OpGlobalGet
	OpGlobalSet
	OpTableGet
	OpTableSet
	OpRefNull
	OpRefFunc

	OpI32Load
	OpI64Load
	OpF32Load
	OpF64Load
	OpI32Load8S
	OpI32Load8U
	OpI32Load16S
	OpI32Load16U
	OpI64Load8S
	OpI64Load8U
	OpI64Load16S
	OpI64Load16U
	OpI64Load32S
	OpI64Load32U
	OpI32Store
	OpI64Store
	OpF32Store
	OpF64Store
	OpI32Store8
	OpI32Store16
	OpI64Store8
	OpI64Store16
	OpI64Store32
	OpMemorySize
	OpMemoryGrow

	OpI32Const
	OpI64Const
	OpF32Const
	OpF64Const

	OpI32Eqz
	OpI32Eq
	OpI32Ne
	OpI32LtS
	OpI32LtU
	OpI32GtS
	OpI32GtU
	OpI32LeS
	OpI32LeU
	OpI32GeS
	OpI32GeU
	OpI64Eqz
	OpI64Eq
	OpI64Ne
	OpI64LtS
	OpI64LtU
	OpI64GtS
	OpI64GtU
	OpI64LeS
	OpI64LeU
	OpI64GeS
	OpI64GeU
	OpF32Eq
	OpF32Ne
	OpF32Lt
	OpF32Gt
	OpF32Le
	OpF32Ge
	OpF64Eq
	OpF64Ne
	OpF64Lt
	OpF64Gt
	OpF64Le
	OpF64Ge

	OpI32Clz
	OpI32Ctz
	OpI32Popcnt
	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32DivS
	OpI32DivU
	OpI32RemS
	OpI32RemU
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32ShrS
	OpI32ShrU
	OpI32Rotl
	OpI32Rotr
	OpI64Clz
	OpI64Ctz
	OpI64Popcnt
	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64DivS
	OpI64DivU
	OpI64RemS
	OpI64RemU
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU
	OpI64Rotl
	OpI64Rotr
	OpF32Abs
	OpF32Neg
	OpF32Ceil
	OpF32Floor
	OpF32Trunc
	OpF32Nearest
	OpF32Sqrt
	OpF32Add
	OpF32Sub
	OpF32Mul
	OpF32Div
	OpF32Min
	OpF32Max
	OpF32Copysign
	OpF64Abs
	OpF64Neg
	OpF64Ceil
	OpF64Floor
	OpF64Trunc
	OpF64Nearest
	OpF64Sqrt
	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Min
	OpF64Max
	OpF64Copysign

	OpI32WrapI64
	OpI32TruncF32S
	OpI32TruncF32U
	OpI32TruncF64S
	OpI32TruncF64U
	OpI64ExtendI32S
	OpI64ExtendI32U
	OpI64TruncF32S
	OpI64TruncF32U
	OpI64TruncF64S
	OpI64TruncF64U
	OpF32ConvertI32S
	OpF32ConvertI32U
	OpF32ConvertI64S
	OpF32ConvertI64U
	OpF32DemoteF64
	OpF64ConvertI32S
	OpF64ConvertI32U
	OpF64ConvertI64S
	OpF64ConvertI64U
	OpF64PromoteF32
	OpI32ReinterpretF32
	OpI64ReinterpretF64
	OpF32ReinterpretI32
	OpF64ReinterpretI64
	OpI32Extend8S
	OpI32Extend16S
	OpI64Extend8S
	OpI64Extend16S
	OpI64Extend32S

	OpI32TruncSatF32S
	OpI32TruncSatF32U
	OpI32TruncSatF64S
	OpI32TruncSatF64U
	OpI64TruncSatF32S
	OpI64TruncSatF32U
	OpI64TruncSatF64S
	OpI64TruncSatF64U

	OpMemoryCopy
	OpMemoryFill
	OpMemoryInit
	OpDataDrop
	OpTableInit
	OpElemDrop
	OpTableCopy
	OpTableGrow
	OpTableSize
	OpTableFill

	// OpFusedLocalGetLocalGet, OpFusedLocalTeeLocalGet, and
	// OpFusedLocalGetConstAddI32 are peephole super-instructions (see
	// internal/decoder/peephole.go). They are only ever produced by the
	// optional peephole pass; the decoder never emits them directly.
	OpFusedLocalGetLocalGet
	OpFusedLocalTeeLocalGet
	OpFusedLocalGetConstAddI32
)

// BlockKind distinguishes the structured-control-flow frame kinds.
type BlockKind byte

const (
	BlockKindBlock BlockKind = iota
	BlockKindLoop
	BlockKindIf
	BlockKindElse
)

// Instruction is the decoded, internal form of one Wasm instruction. Block
// instructions (Block/Loop/If) and If carry pre-computed jump offsets so the
// interpreter never re-scans the instruction stream to find a matching End
// or Else at run time.
type Instruction struct {
	Op Opcode

	// Immediate operands. Which fields are populated depends on Op.
	I32          int32
	I64          int64
	F32          float32
	F64          float64
	LocalIndex   uint32
	GlobalIndex  uint32
	FuncIndex    uint32
	TableIndex   uint32
	TypeIndex    uint32
	MemArgOffset uint32
	MemArgAlign  uint32

	// BrTargets holds the label indices for BrTable: len-1 entries plus a
	// trailing default.
	BrTargets []uint32

	// Block holds the structured-control-flow metadata for
	// Block/Loop/If/Else instructions.
	Block *BlockInfo

	// Fused2 is the second local index for OpFusedLocalGetLocalGet and
	// OpFusedLocalTeeLocalGet, or holds the constant addend for
	// OpFusedLocalGetConstAddI32.
	Fused2 int32
}

// BlockInfo is the structured-control-flow metadata attached to
// Block/Loop/If instructions by the decoder.
type BlockInfo struct {
	Type *FunctionType // block's param/result arity, from a resolved block type
	// EndOffset is the instruction index of this block's matching End,
	// i.e. the interpreter jumps to EndOffset+1 to execute "past the end".
	EndOffset uint32
	// ElseOffset is the instruction index of this block's Else, only valid
	// when Op == OpIf and an else branch is present. Zero otherwise.
	ElseOffset uint32
	HasElse    bool
}
