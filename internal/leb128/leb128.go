// Package leb128 implements the variable-length integer encodings used
// throughout the Wasm binary format: unsigned and signed LEB128, with
// overflow detection at the encoding's natural bit width.
package leb128

import (
	"errors"
	"io"
)

// ErrOverflow32 is returned when a 32-bit LEB128 value's continuation bytes
// encode more than 32 bits of magnitude.
var ErrOverflow32 = errors.New("leb128: overflows 32 bits")

// ErrOverflow64 is returned when a 64-bit LEB128 value's continuation bytes
// encode more than 64 bits of magnitude.
var ErrOverflow64 = errors.New("leb128: overflows 64 bits")

const (
	maxVarint32Len = 5 // ceil(32/7)
	maxVarint64Len = 10
)

// DecodeUint32 reads an unsigned LEB128-encoded 32-bit value from r.
func DecodeUint32(r io.ByteReader) (uint32, uint32, error) {
	var result uint32
	var shift uint32
	var size uint32
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size++
		if shift == 28 && (b&0x70) != 0 {
			// The top nibble of the 5th byte must only contribute the
			// remaining 4 bits of a 32-bit value.
			return 0, 0, ErrOverflow32
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if size > maxVarint32Len {
			return 0, 0, ErrOverflow32
		}
	}
	return result, size, nil
}

// DecodeInt32 reads a signed LEB128-encoded 32-bit value from r.
func DecodeInt32(r io.ByteReader) (int32, uint32, error) {
	var result int64
	var shift uint
	var size uint32
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if size > maxVarint32Len {
			return 0, 0, ErrOverflow32
		}
	}
	if shift < 64 && (b&0x40) != 0 {
		result |= -1 << shift
	}
	if result < -(1<<31) || result > (1<<31)-1 {
		return 0, 0, ErrOverflow32
	}
	return int32(result), size, nil
}

// DecodeInt64 reads a signed LEB128-encoded 64-bit value from r.
func DecodeInt64(r io.ByteReader) (int64, uint32, error) {
	var result int64
	var shift uint
	var size uint32
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size++
		if shift == 63 && b != 0 && b != 0x7f {
			return 0, 0, ErrOverflow64
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if size > maxVarint64Len {
			return 0, 0, ErrOverflow64
		}
	}
	if shift < 64 && (b&0x40) != 0 {
		result |= -1 << shift
	}
	return result, size, nil
}

// EncodeUint32 encodes v as unsigned LEB128, used by tests constructing
// binaries by hand.
func EncodeUint32(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

// EncodeInt32 encodes v as signed LEB128.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 encodes v as signed LEB128.
func EncodeInt64(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
