package interpreter

import (
	"math"
	"math/bits"

	"github.com/reef-runtime/reef/internal/moremath"
	"github.com/reef-runtime/reef/internal/wasm"
)

// execNumeric dispatches every instruction not handled directly by step:
// arithmetic, comparison, conversion, memory, and table operations (spec
// §4.5). Each case pops its operands, computes, and pushes the result;
// IP advancement is left to the caller.
func (h *ExecHandle) execNumeric(instr wasm.Instruction) error {
	switch instr.Op {
	case wasm.OpI32Const:
		h.pushValue(uint64(uint32(instr.I32)))
	case wasm.OpI64Const:
		h.pushValue(uint64(instr.I64))
	case wasm.OpF32Const:
		h.pushValue(uint64(math.Float32bits(instr.F32)))
	case wasm.OpF64Const:
		h.pushValue(math.Float64bits(instr.F64))

	case wasm.OpI32Eqz:
		h.pushValue(b2u(h.popI32() == 0))
	case wasm.OpI32Eq:
		a, b := h.popI32Pair()
		h.pushValue(b2u(a == b))
	case wasm.OpI32Ne:
		a, b := h.popI32Pair()
		h.pushValue(b2u(a != b))
	case wasm.OpI32LtS:
		a, b := h.popI32Pair()
		h.pushValue(b2u(a < b))
	case wasm.OpI32LtU:
		a, b := h.popU32Pair()
		h.pushValue(b2u(a < b))
	case wasm.OpI32GtS:
		a, b := h.popI32Pair()
		h.pushValue(b2u(a > b))
	case wasm.OpI32GtU:
		a, b := h.popU32Pair()
		h.pushValue(b2u(a > b))
	case wasm.OpI32LeS:
		a, b := h.popI32Pair()
		h.pushValue(b2u(a <= b))
	case wasm.OpI32LeU:
		a, b := h.popU32Pair()
		h.pushValue(b2u(a <= b))
	case wasm.OpI32GeS:
		a, b := h.popI32Pair()
		h.pushValue(b2u(a >= b))
	case wasm.OpI32GeU:
		a, b := h.popU32Pair()
		h.pushValue(b2u(a >= b))

	case wasm.OpI64Eqz:
		h.pushValue(b2u(h.popI64() == 0))
	case wasm.OpI64Eq:
		a, b := h.popI64Pair()
		h.pushValue(b2u(a == b))
	case wasm.OpI64Ne:
		a, b := h.popI64Pair()
		h.pushValue(b2u(a != b))
	case wasm.OpI64LtS:
		a, b := h.popI64Pair()
		h.pushValue(b2u(a < b))
	case wasm.OpI64LtU:
		a, b := h.popU64Pair()
		h.pushValue(b2u(a < b))
	case wasm.OpI64GtS:
		a, b := h.popI64Pair()
		h.pushValue(b2u(a > b))
	case wasm.OpI64GtU:
		a, b := h.popU64Pair()
		h.pushValue(b2u(a > b))
	case wasm.OpI64LeS:
		a, b := h.popI64Pair()
		h.pushValue(b2u(a <= b))
	case wasm.OpI64LeU:
		a, b := h.popU64Pair()
		h.pushValue(b2u(a <= b))
	case wasm.OpI64GeS:
		a, b := h.popI64Pair()
		h.pushValue(b2u(a >= b))
	case wasm.OpI64GeU:
		a, b := h.popU64Pair()
		h.pushValue(b2u(a >= b))

	case wasm.OpF32Eq:
		a, b := h.popF32Pair()
		h.pushValue(b2u(a == b))
	case wasm.OpF32Ne:
		a, b := h.popF32Pair()
		h.pushValue(b2u(a != b))
	case wasm.OpF32Lt:
		a, b := h.popF32Pair()
		h.pushValue(b2u(a < b))
	case wasm.OpF32Gt:
		a, b := h.popF32Pair()
		h.pushValue(b2u(a > b))
	case wasm.OpF32Le:
		a, b := h.popF32Pair()
		h.pushValue(b2u(a <= b))
	case wasm.OpF32Ge:
		a, b := h.popF32Pair()
		h.pushValue(b2u(a >= b))
	case wasm.OpF64Eq:
		a, b := h.popF64Pair()
		h.pushValue(b2u(a == b))
	case wasm.OpF64Ne:
		a, b := h.popF64Pair()
		h.pushValue(b2u(a != b))
	case wasm.OpF64Lt:
		a, b := h.popF64Pair()
		h.pushValue(b2u(a < b))
	case wasm.OpF64Gt:
		a, b := h.popF64Pair()
		h.pushValue(b2u(a > b))
	case wasm.OpF64Le:
		a, b := h.popF64Pair()
		h.pushValue(b2u(a <= b))
	case wasm.OpF64Ge:
		a, b := h.popF64Pair()
		h.pushValue(b2u(a >= b))

	case wasm.OpI32Clz:
		h.pushI32(int32(bits.LeadingZeros32(uint32(h.popI32()))))
	case wasm.OpI32Ctz:
		h.pushI32(int32(bits.TrailingZeros32(uint32(h.popI32()))))
	case wasm.OpI32Popcnt:
		h.pushI32(int32(bits.OnesCount32(uint32(h.popI32()))))
	case wasm.OpI32Add:
		a, b := h.popI32Pair()
		h.pushI32(a + b)
	case wasm.OpI32Sub:
		a, b := h.popI32Pair()
		h.pushI32(a - b)
	case wasm.OpI32Mul:
		a, b := h.popI32Pair()
		h.pushI32(a * b)
	case wasm.OpI32DivS:
		a, b := h.popI32Pair()
		if b == 0 {
			return &wasm.TrapError{Kind: wasm.TrapDivideByZero}
		}
		if a == math.MinInt32 && b == -1 {
			return &wasm.TrapError{Kind: wasm.TrapIntegerOverflow}
		}
		h.pushI32(a / b)
	case wasm.OpI32DivU:
		a, b := h.popU32Pair()
		if b == 0 {
			return &wasm.TrapError{Kind: wasm.TrapDivideByZero}
		}
		h.pushValue(uint64(a / b))
	case wasm.OpI32RemS:
		a, b := h.popI32Pair()
		if b == 0 {
			return &wasm.TrapError{Kind: wasm.TrapDivideByZero}
		}
		if a == math.MinInt32 && b == -1 {
			h.pushI32(0)
		} else {
			h.pushI32(a % b)
		}
	case wasm.OpI32RemU:
		a, b := h.popU32Pair()
		if b == 0 {
			return &wasm.TrapError{Kind: wasm.TrapDivideByZero}
		}
		h.pushValue(uint64(a % b))
	case wasm.OpI32And:
		a, b := h.popU32Pair()
		h.pushValue(uint64(a & b))
	case wasm.OpI32Or:
		a, b := h.popU32Pair()
		h.pushValue(uint64(a | b))
	case wasm.OpI32Xor:
		a, b := h.popU32Pair()
		h.pushValue(uint64(a ^ b))
	case wasm.OpI32Shl:
		a, b := h.popU32Pair()
		h.pushValue(uint64(a << (b % 32)))
	case wasm.OpI32ShrS:
		a, b := h.popI32Pair()
		h.pushI32(a >> (uint32(b) % 32))
	case wasm.OpI32ShrU:
		a, b := h.popU32Pair()
		h.pushValue(uint64(a >> (b % 32)))
	case wasm.OpI32Rotl:
		a, b := h.popU32Pair()
		h.pushValue(uint64(bits.RotateLeft32(a, int(b))))
	case wasm.OpI32Rotr:
		a, b := h.popU32Pair()
		h.pushValue(uint64(bits.RotateLeft32(a, -int(b))))

	case wasm.OpI64Clz:
		h.pushValue(uint64(bits.LeadingZeros64(h.popU64())))
	case wasm.OpI64Ctz:
		h.pushValue(uint64(bits.TrailingZeros64(h.popU64())))
	case wasm.OpI64Popcnt:
		h.pushValue(uint64(bits.OnesCount64(h.popU64())))
	case wasm.OpI64Add:
		a, b := h.popI64Pair()
		h.pushValue(uint64(a + b))
	case wasm.OpI64Sub:
		a, b := h.popI64Pair()
		h.pushValue(uint64(a - b))
	case wasm.OpI64Mul:
		a, b := h.popI64Pair()
		h.pushValue(uint64(a * b))
	case wasm.OpI64DivS:
		a, b := h.popI64Pair()
		if b == 0 {
			return &wasm.TrapError{Kind: wasm.TrapDivideByZero}
		}
		if a == math.MinInt64 && b == -1 {
			return &wasm.TrapError{Kind: wasm.TrapIntegerOverflow}
		}
		h.pushValue(uint64(a / b))
	case wasm.OpI64DivU:
		a, b := h.popU64Pair()
		if b == 0 {
			return &wasm.TrapError{Kind: wasm.TrapDivideByZero}
		}
		h.pushValue(a / b)
	case wasm.OpI64RemS:
		a, b := h.popI64Pair()
		if b == 0 {
			return &wasm.TrapError{Kind: wasm.TrapDivideByZero}
		}
		if a == math.MinInt64 && b == -1 {
			h.pushValue(0)
		} else {
			h.pushValue(uint64(a % b))
		}
	case wasm.OpI64RemU:
		a, b := h.popU64Pair()
		if b == 0 {
			return &wasm.TrapError{Kind: wasm.TrapDivideByZero}
		}
		h.pushValue(a % b)
	case wasm.OpI64And:
		a, b := h.popU64Pair()
		h.pushValue(a & b)
	case wasm.OpI64Or:
		a, b := h.popU64Pair()
		h.pushValue(a | b)
	case wasm.OpI64Xor:
		a, b := h.popU64Pair()
		h.pushValue(a ^ b)
	case wasm.OpI64Shl:
		a, b := h.popU64Pair()
		h.pushValue(a << (b % 64))
	case wasm.OpI64ShrS:
		a, b := h.popI64Pair()
		h.pushValue(uint64(a >> (uint64(b) % 64)))
	case wasm.OpI64ShrU:
		a, b := h.popU64Pair()
		h.pushValue(a >> (b % 64))
	case wasm.OpI64Rotl:
		a, b := h.popU64Pair()
		h.pushValue(bits.RotateLeft64(a, int(b)))
	case wasm.OpI64Rotr:
		a, b := h.popU64Pair()
		h.pushValue(bits.RotateLeft64(a, -int(b)))

	case wasm.OpF32Abs:
		h.pushF32(float32(math.Abs(float64(h.popF32()))))
	case wasm.OpF32Neg:
		h.pushF32(-h.popF32())
	case wasm.OpF32Ceil:
		h.pushF32(float32(math.Ceil(float64(h.popF32()))))
	case wasm.OpF32Floor:
		h.pushF32(float32(math.Floor(float64(h.popF32()))))
	case wasm.OpF32Trunc:
		h.pushF32(float32(math.Trunc(float64(h.popF32()))))
	case wasm.OpF32Nearest:
		h.pushF32(moremath.WasmCompatNearestF32(h.popF32()))
	case wasm.OpF32Sqrt:
		h.pushF32(float32(math.Sqrt(float64(h.popF32()))))
	case wasm.OpF32Add:
		a, b := h.popF32Pair()
		h.pushF32(a + b)
	case wasm.OpF32Sub:
		a, b := h.popF32Pair()
		h.pushF32(a - b)
	case wasm.OpF32Mul:
		a, b := h.popF32Pair()
		h.pushF32(a * b)
	case wasm.OpF32Div:
		a, b := h.popF32Pair()
		h.pushF32(a / b)
	case wasm.OpF32Min:
		a, b := h.popF32Pair()
		h.pushF32(float32(moremath.WasmCompatMin(float64(a), float64(b))))
	case wasm.OpF32Max:
		a, b := h.popF32Pair()
		h.pushF32(float32(moremath.WasmCompatMax(float64(a), float64(b))))
	case wasm.OpF32Copysign:
		a, b := h.popF32Pair()
		h.pushF32(float32(math.Copysign(float64(a), float64(b))))

	case wasm.OpF64Abs:
		h.pushValue(math.Float64bits(math.Abs(h.popF64())))
	case wasm.OpF64Neg:
		h.pushValue(math.Float64bits(-h.popF64()))
	case wasm.OpF64Ceil:
		h.pushValue(math.Float64bits(math.Ceil(h.popF64())))
	case wasm.OpF64Floor:
		h.pushValue(math.Float64bits(math.Floor(h.popF64())))
	case wasm.OpF64Trunc:
		h.pushValue(math.Float64bits(math.Trunc(h.popF64())))
	case wasm.OpF64Nearest:
		h.pushValue(math.Float64bits(moremath.WasmCompatNearestF64(h.popF64())))
	case wasm.OpF64Sqrt:
		h.pushValue(math.Float64bits(math.Sqrt(h.popF64())))
	case wasm.OpF64Add:
		a, b := h.popF64Pair()
		h.pushValue(math.Float64bits(a + b))
	case wasm.OpF64Sub:
		a, b := h.popF64Pair()
		h.pushValue(math.Float64bits(a - b))
	case wasm.OpF64Mul:
		a, b := h.popF64Pair()
		h.pushValue(math.Float64bits(a * b))
	case wasm.OpF64Div:
		a, b := h.popF64Pair()
		h.pushValue(math.Float64bits(a / b))
	case wasm.OpF64Min:
		a, b := h.popF64Pair()
		h.pushValue(math.Float64bits(moremath.WasmCompatMin(a, b)))
	case wasm.OpF64Max:
		a, b := h.popF64Pair()
		h.pushValue(math.Float64bits(moremath.WasmCompatMax(a, b)))
	case wasm.OpF64Copysign:
		a, b := h.popF64Pair()
		h.pushValue(math.Float64bits(math.Copysign(a, b)))

	case wasm.OpI32WrapI64:
		h.pushI32(int32(h.popU64()))
	case wasm.OpI64ExtendI32S:
		h.pushValue(uint64(int64(h.popI32())))
	case wasm.OpI64ExtendI32U:
		h.pushValue(uint64(uint32(h.popI32())))
	case wasm.OpF32DemoteF64:
		h.pushF32(float32(h.popF64()))
	case wasm.OpF64PromoteF32:
		h.pushValue(math.Float64bits(float64(h.popF32())))
	case wasm.OpF32ConvertI32S:
		h.pushF32(float32(h.popI32()))
	case wasm.OpF32ConvertI32U:
		h.pushF32(float32(uint32(h.popI32())))
	case wasm.OpF32ConvertI64S:
		h.pushF32(float32(int64(h.popU64())))
	case wasm.OpF32ConvertI64U:
		h.pushF32(float32(h.popU64()))
	case wasm.OpF64ConvertI32S:
		h.pushValue(math.Float64bits(float64(h.popI32())))
	case wasm.OpF64ConvertI32U:
		h.pushValue(math.Float64bits(float64(uint32(h.popI32()))))
	case wasm.OpF64ConvertI64S:
		h.pushValue(math.Float64bits(float64(int64(h.popU64()))))
	case wasm.OpF64ConvertI64U:
		h.pushValue(math.Float64bits(float64(h.popU64())))
	case wasm.OpI32ReinterpretF32, wasm.OpF32ReinterpretI32, wasm.OpI64ReinterpretF64, wasm.OpF64ReinterpretI64:
		// No-op at the raw-value level: the operand stack is untyped.
	case wasm.OpI32Extend8S:
		h.pushI32(int32(int8(h.popI32())))
	case wasm.OpI32Extend16S:
		h.pushI32(int32(int16(h.popI32())))
	case wasm.OpI64Extend8S:
		h.pushValue(uint64(int64(int8(h.popU64()))))
	case wasm.OpI64Extend16S:
		h.pushValue(uint64(int64(int16(h.popU64()))))
	case wasm.OpI64Extend32S:
		h.pushValue(uint64(int64(int32(h.popU64()))))

	case wasm.OpI32TruncF32S:
		return h.truncToI32(float64(h.popF32()), math.MinInt32, math.MaxInt32, false)
	case wasm.OpI32TruncF32U:
		return h.truncToI32(float64(h.popF32()), 0, math.MaxUint32, true)
	case wasm.OpI32TruncF64S:
		return h.truncToI32(h.popF64(), math.MinInt32, math.MaxInt32, false)
	case wasm.OpI32TruncF64U:
		return h.truncToI32(h.popF64(), 0, math.MaxUint32, true)
	case wasm.OpI64TruncF32S:
		return h.truncToI64(float64(h.popF32()), false)
	case wasm.OpI64TruncF32U:
		return h.truncToI64(float64(h.popF32()), true)
	case wasm.OpI64TruncF64S:
		return h.truncToI64(h.popF64(), false)
	case wasm.OpI64TruncF64U:
		return h.truncToI64(h.popF64(), true)

	case wasm.OpI32TruncSatF32S:
		h.pushI32(satTruncI32(float64(h.popF32()), false))
	case wasm.OpI32TruncSatF32U:
		h.pushI32(satTruncI32(float64(h.popF32()), true))
	case wasm.OpI32TruncSatF64S:
		h.pushI32(satTruncI32(h.popF64(), false))
	case wasm.OpI32TruncSatF64U:
		h.pushI32(satTruncI32(h.popF64(), true))
	case wasm.OpI64TruncSatF32S:
		h.pushValue(satTruncI64(float64(h.popF32()), false))
	case wasm.OpI64TruncSatF32U:
		h.pushValue(satTruncI64(float64(h.popF32()), true))
	case wasm.OpI64TruncSatF64S:
		h.pushValue(satTruncI64(h.popF64(), false))
	case wasm.OpI64TruncSatF64U:
		h.pushValue(satTruncI64(h.popF64(), true))

	case wasm.OpMemorySize:
		h.pushValue(uint64(h.Inst.Memory0().Pages))
	case wasm.OpMemoryGrow:
		delta := uint32(h.popI32())
		h.pushI32(h.Inst.Memory0().Grow(delta))

	case wasm.OpI32Load:
		return h.load(instr, 4, func(b []byte) uint64 { return uint64(leU32(b)) })
	case wasm.OpI64Load:
		return h.load(instr, 8, func(b []byte) uint64 { return leU64(b) })
	case wasm.OpF32Load:
		return h.load(instr, 4, func(b []byte) uint64 { return uint64(leU32(b)) })
	case wasm.OpF64Load:
		return h.load(instr, 8, func(b []byte) uint64 { return leU64(b) })
	case wasm.OpI32Load8S:
		return h.load(instr, 1, func(b []byte) uint64 { return uint64(uint32(int32(int8(b[0])))) })
	case wasm.OpI32Load8U:
		return h.load(instr, 1, func(b []byte) uint64 { return uint64(b[0]) })
	case wasm.OpI32Load16S:
		return h.load(instr, 2, func(b []byte) uint64 { return uint64(uint32(int32(int16(leU32(b))))) })
	case wasm.OpI32Load16U:
		return h.load(instr, 2, func(b []byte) uint64 { return uint64(uint16(leU32(b))) })
	case wasm.OpI64Load8S:
		return h.load(instr, 1, func(b []byte) uint64 { return uint64(int64(int8(b[0]))) })
	case wasm.OpI64Load8U:
		return h.load(instr, 1, func(b []byte) uint64 { return uint64(b[0]) })
	case wasm.OpI64Load16S:
		return h.load(instr, 2, func(b []byte) uint64 { return uint64(int64(int16(leU32(b)))) })
	case wasm.OpI64Load16U:
		return h.load(instr, 2, func(b []byte) uint64 { return uint64(uint16(leU32(b))) })
	case wasm.OpI64Load32S:
		return h.load(instr, 4, func(b []byte) uint64 { return uint64(int64(int32(leU32(b)))) })
	case wasm.OpI64Load32U:
		return h.load(instr, 4, func(b []byte) uint64 { return uint64(leU32(b)) })

	case wasm.OpI32Store:
		return h.store4(instr)
	case wasm.OpF32Store:
		return h.store4(instr)
	case wasm.OpI64Store:
		return h.store8(instr)
	case wasm.OpF64Store:
		return h.store8(instr)
	case wasm.OpI32Store8, wasm.OpI64Store8:
		v := byte(h.popU64())
		return h.storeBytes(instr, []byte{v})
	case wasm.OpI32Store16, wasm.OpI64Store16:
		v := uint16(h.popU64())
		return h.storeBytes(instr, leBytes16(v))
	case wasm.OpI64Store32:
		v := uint32(h.popU64())
		return h.storeBytes(instr, leBytes32(v))

	case wasm.OpMemoryCopy:
		return h.memoryCopy()
	case wasm.OpMemoryFill:
		return h.memoryFill()
	case wasm.OpMemoryInit:
		return h.memoryInit(instr.FuncIndex)
	case wasm.OpDataDrop:
		h.Inst.Store.Datas[instr.FuncIndex].Bytes = nil

	case wasm.OpTableGet:
		i := uint32(h.popI32())
		el, err := h.Inst.Store.Tables[instr.TableIndex].Get(i)
		if err != nil {
			return err
		}
		h.pushValue(uint64(el.FuncIndex))
	case wasm.OpTableSet:
		v := uint32(h.popI32())
		i := uint32(h.popI32())
		if err := h.Inst.Store.Tables[instr.TableIndex].Set(i, v); err != nil {
			return err
		}
	case wasm.OpTableSize:
		h.pushI32(int32(len(h.Inst.Store.Tables[instr.TableIndex].Elements)))
	case wasm.OpTableGrow:
		delta := uint32(h.popI32())
		h.pushI32(h.Inst.Store.Tables[instr.TableIndex].Grow(delta))
	case wasm.OpTableFill:
		return h.tableFill(instr.TableIndex)
	case wasm.OpTableCopy:
		return h.tableCopy(instr.TableIndex, instr.FuncIndex)
	case wasm.OpTableInit:
		return h.tableInit(instr.TableIndex, instr.FuncIndex)
	case wasm.OpElemDrop:
		h.Inst.Store.Elements[instr.FuncIndex].Funcs = nil

	default:
		fail("interpreter: unimplemented opcode %v", instr.Op)
	}
	return nil
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (h *ExecHandle) popI32() int32      { return int32(h.popValue()) }
func (h *ExecHandle) popU32() uint32     { return uint32(h.popValue()) }
func (h *ExecHandle) popI64() int64      { return int64(h.popValue()) }
func (h *ExecHandle) popU64() uint64     { return h.popValue() }
func (h *ExecHandle) popF32() float32    { return math.Float32frombits(uint32(h.popValue())) }
func (h *ExecHandle) popF64() float64    { return math.Float64frombits(h.popValue()) }

func (h *ExecHandle) popI32Pair() (a, b int32) { b = h.popI32(); a = h.popI32(); return }
func (h *ExecHandle) popU32Pair() (a, b uint32) { b = h.popU32(); a = h.popU32(); return }
func (h *ExecHandle) popI64Pair() (a, b int64) { b = h.popI64(); a = h.popI64(); return }
func (h *ExecHandle) popU64Pair() (a, b uint64) { b = h.popU64(); a = h.popU64(); return }
func (h *ExecHandle) popF32Pair() (a, b float32) { b = h.popF32(); a = h.popF32(); return }
func (h *ExecHandle) popF64Pair() (a, b float64) { b = h.popF64(); a = h.popF64(); return }

func (h *ExecHandle) pushI32(v int32)   { h.pushValue(uint64(uint32(v))) }
func (h *ExecHandle) pushF32(v float32) { h.pushValue(uint64(math.Float32bits(v))) }

func leU32(b []byte) uint32 {
	var v uint32
	for i := 0; i < len(b) && i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}
func leU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < len(b) && i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
func leBytes16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func leBytes32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func (h *ExecHandle) effectiveAddr(instr wasm.Instruction) uint32 {
	return instr.MemArgOffset + uint32(h.popI32())
}

func (h *ExecHandle) load(instr wasm.Instruction, size uint32, decode func([]byte) uint64) error {
	addr := h.effectiveAddr(instr)
	b, err := h.Inst.Memory0().ReadBytes(addr, size)
	if err != nil {
		return err
	}
	h.pushValue(decode(b))
	return nil
}

func (h *ExecHandle) store4(instr wasm.Instruction) error {
	v := uint32(h.popU64())
	return h.storeAt(instr.MemArgOffset, leBytes32(v))
}
func (h *ExecHandle) store8(instr wasm.Instruction) error {
	v := h.popU64()
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return h.storeAt(instr.MemArgOffset, b)
}
func (h *ExecHandle) storeBytes(instr wasm.Instruction, b []byte) error {
	return h.storeAt(instr.MemArgOffset, b)
}
func (h *ExecHandle) storeAt(memArgOffset uint32, b []byte) error {
	addr := memArgOffset + uint32(h.popI32())
	return h.Inst.Memory0().WriteBytes(addr, b)
}

func (h *ExecHandle) truncToI32(f float64, min, max float64, unsigned bool) error {
	if math.IsNaN(f) {
		return &wasm.TrapError{Kind: wasm.TrapInvalidConversionToInteger}
	}
	t := math.Trunc(f)
	if t < min || t > max {
		return &wasm.TrapError{Kind: wasm.TrapIntegerOverflow}
	}
	if unsigned {
		h.pushValue(uint64(uint32(int64(t))))
	} else {
		h.pushI32(int32(t))
	}
	return nil
}

func (h *ExecHandle) truncToI64(f float64, unsigned bool) error {
	if math.IsNaN(f) {
		return &wasm.TrapError{Kind: wasm.TrapInvalidConversionToInteger}
	}
	t := math.Trunc(f)
	if unsigned {
		if t < 0 || t >= math.MaxUint64 {
			return &wasm.TrapError{Kind: wasm.TrapIntegerOverflow}
		}
		h.pushValue(uint64(t))
	} else {
		if t < math.MinInt64 || t >= math.MaxInt64 {
			return &wasm.TrapError{Kind: wasm.TrapIntegerOverflow}
		}
		h.pushValue(uint64(int64(t)))
	}
	return nil
}

func satTruncI32(f float64, unsigned bool) int32 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	if unsigned {
		if t <= 0 {
			return 0
		}
		if t >= math.MaxUint32 {
			return int32(uint32(math.MaxUint32))
		}
		return int32(uint32(t))
	}
	if t <= math.MinInt32 {
		return math.MinInt32
	}
	if t >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(t)
}

func satTruncI64(f float64, unsigned bool) uint64 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	if unsigned {
		if t <= 0 {
			return 0
		}
		if t >= math.MaxUint64 {
			return math.MaxUint64
		}
		return uint64(t)
	}
	if t <= math.MinInt64 {
		return uint64(int64(math.MinInt64))
	}
	if t >= math.MaxInt64 {
		return uint64(int64(math.MaxInt64))
	}
	return uint64(int64(t))
}

func (h *ExecHandle) memoryCopy() error {
	n := uint32(h.popI32())
	src := uint32(h.popI32())
	dst := uint32(h.popI32())
	mem := h.Inst.Memory0()
	b, err := mem.ReadBytes(src, n)
	if err != nil {
		return err
	}
	return mem.WriteBytes(dst, append([]byte(nil), b...))
}

func (h *ExecHandle) memoryFill() error {
	n := uint32(h.popI32())
	v := byte(h.popI32())
	dst := uint32(h.popI32())
	mem := h.Inst.Memory0()
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = v
	}
	return mem.WriteBytes(dst, buf)
}

func (h *ExecHandle) memoryInit(dataIdx uint32) error {
	n := uint32(h.popI32())
	src := uint32(h.popI32())
	dst := uint32(h.popI32())
	data := h.Inst.Store.Datas[dataIdx]
	if src+n > uint32(len(data.Bytes)) {
		return &wasm.TrapError{Kind: wasm.TrapMemoryOutOfBounds}
	}
	return h.Inst.Memory0().WriteBytes(dst, data.Bytes[src:src+n])
}

func (h *ExecHandle) tableFill(tableIdx uint32) error {
	n := uint32(h.popI32())
	v := uint32(h.popI32())
	i := uint32(h.popI32())
	tbl := h.Inst.Store.Tables[tableIdx]
	for k := uint32(0); k < n; k++ {
		if err := tbl.Set(i+k, v); err != nil {
			return err
		}
	}
	return nil
}

func (h *ExecHandle) tableCopy(dstIdx, srcIdx uint32) error {
	n := uint32(h.popI32())
	src := uint32(h.popI32())
	dst := uint32(h.popI32())
	srcTbl := h.Inst.Store.Tables[srcIdx]
	dstTbl := h.Inst.Store.Tables[dstIdx]
	if int(src+n) > len(srcTbl.Elements) || int(dst+n) > len(dstTbl.Elements) {
		return &wasm.TrapError{Kind: wasm.TrapTableOutOfBounds}
	}
	copy(dstTbl.Elements[dst:dst+n], srcTbl.Elements[src:src+n])
	return nil
}

func (h *ExecHandle) tableInit(tableIdx, elemIdx uint32) error {
	n := uint32(h.popI32())
	src := uint32(h.popI32())
	dst := uint32(h.popI32())
	elem := h.Inst.Store.Elements[elemIdx]
	if src+n > uint32(len(elem.Funcs)) {
		return &wasm.TrapError{Kind: wasm.TrapTableOutOfBounds}
	}
	tbl := h.Inst.Store.Tables[tableIdx]
	for k := uint32(0); k < n; k++ {
		if err := tbl.Set(dst+k, elem.Funcs[src+k]); err != nil {
			return err
		}
	}
	return nil
}
