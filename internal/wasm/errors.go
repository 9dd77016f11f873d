package wasm

import "fmt"

// TrapKind enumerates the runtime errors that halt an execution, per
// spec §7. A trap is a well-defined failure of the executed program, as
// distinct from a parse or link error (rejected before execution starts)
// or an internal consistency violation (a validator bug, which panics
// instead of being represented here).
type TrapKind int

const (
	TrapUnreachable TrapKind = iota
	TrapMemoryOutOfBounds
	TrapTableOutOfBounds
	TrapDivideByZero
	TrapIntegerOverflow
	TrapInvalidConversionToInteger
	TrapCallStackOverflow
	TrapUndefinedElement
	TrapUninitializedElement
	TrapIndirectCallTypeMismatch
)

func (k TrapKind) String() string {
	switch k {
	case TrapUnreachable:
		return "unreachable"
	case TrapMemoryOutOfBounds:
		return "memory out of bounds"
	case TrapTableOutOfBounds:
		return "table out of bounds"
	case TrapDivideByZero:
		return "integer divide by zero"
	case TrapIntegerOverflow:
		return "integer overflow"
	case TrapInvalidConversionToInteger:
		return "invalid conversion to integer"
	case TrapCallStackOverflow:
		return "call stack overflow"
	case TrapUndefinedElement:
		return "undefined element"
	case TrapUninitializedElement:
		return "uninitialized element"
	case TrapIndirectCallTypeMismatch:
		return "indirect call type mismatch"
	default:
		return "unknown trap"
	}
}

// TrapError is returned by the interpreter when execution halts because of
// one of the TrapKind conditions. It ends the job (§7 propagation policy).
type TrapError struct {
	Kind    TrapKind
	Message string
}

func (e *TrapError) Error() string {
	if e.Message == "" {
		return "trap: " + e.Kind.String()
	}
	return fmt.Sprintf("trap: %s: %s", e.Kind, e.Message)
}

// NewMemoryOutOfBoundsError builds the TrapMemoryOutOfBounds error with the
// offset/length/limit detail required by spec §4.5.
func NewMemoryOutOfBoundsError(offset, length, max uint32) *TrapError {
	return &TrapError{
		Kind:    TrapMemoryOutOfBounds,
		Message: fmt.Sprintf("access [%d, %d) exceeds memory of %d bytes", offset, uint64(offset)+uint64(length), max),
	}
}

// NewIndirectCallTypeMismatchError builds the TrapIndirectCallTypeMismatch
// error carrying the expected/actual signatures (§8 scenario 6).
func NewIndirectCallTypeMismatchError(expected, actual *FunctionType) *TrapError {
	return &TrapError{
		Kind:    TrapIndirectCallTypeMismatch,
		Message: fmt.Sprintf("expected %s, have %s", expected, actual),
	}
}

// LinkErrorKind enumerates the errors the linker can raise while resolving
// imports, per spec §4.2/§7. These are only ever raised during
// instantiation, never mid-execution.
type LinkErrorKind int

const (
	LinkErrorUnknownImport LinkErrorKind = iota
	LinkErrorIncompatibleImportType
)

// LinkError is returned by the linker when an import cannot be resolved.
type LinkError struct {
	Kind       LinkErrorKind
	ModuleName string
	FieldName  string
	Detail     string
}

func (e *LinkError) Error() string {
	switch e.Kind {
	case LinkErrorUnknownImport:
		return fmt.Sprintf("unknown import: %s.%s", e.ModuleName, e.FieldName)
	default:
		return fmt.Sprintf("incompatible import type: %s.%s: %s", e.ModuleName, e.FieldName, e.Detail)
	}
}

// ParseErrorKind enumerates the errors the decoder can raise, per spec §7.
type ParseErrorKind int

const (
	ParseErrorMalformedSection ParseErrorKind = iota
	ParseErrorUnsupportedFeature
	ParseErrorInvalidUTF8
	ParseErrorLEBOverflow
	ParseErrorValidation
)

// ParseError is returned by internal/decoder.Parse.
type ParseError struct {
	Kind   ParseErrorKind
	Detail string
	Offset int
}

func (e *ParseError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Detail)
	}
	return fmt.Sprintf("parse error: %s", e.Detail)
}
