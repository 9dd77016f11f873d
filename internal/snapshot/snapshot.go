// Package snapshot implements the on-disk layout of §4.7: a self-describing,
// little-endian, length-prefixed encoding of an execution's stacks, memory
// (minus the ignored byte region), globals, and an opaque host extra_data
// blob. The format is framework-agnostic by design — no reflection-based
// codec, just explicit field writes — so it round-trips across
// implementations rather than tying snapshots to a particular Go encoding
// library. internal/interpreter owns the ExecHandle <-> State conversion;
// this package owns only the wire framing and the optional gzip wrap.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// CallFrame is the serialized form of one call-stack entry (spec §4.4/§4.7).
type CallFrame struct {
	FuncIndex      uint32
	IP             uint32
	BlockStackBase uint32
	ResultCount    uint32
	Locals         []uint64
}

// BlockFrame is the serialized form of one block-stack entry.
type BlockFrame struct {
	Kind           byte
	BodyStart      uint32
	EndOffset      uint32
	ValueStackBase uint32
	ParamCount     uint32
	ResultCount    uint32
}

// Memory is the serialized form of one linear memory, split around the
// ignored byte region per §4.3/§4.7 so the dataset carve-out is never
// emitted.
type Memory struct {
	MaxPages        uint32 // meaningful only when HasMax is set
	HasMax          bool
	PageCount       uint32
	IgnoredOffset   uint32
	IgnoredLength   uint32
	BytesBefore     []byte
	BytesAfter      []byte
}

// State is everything §4.7 requires to resume an execution on a fresh
// instance of the same module.
type State struct {
	CallStack  []CallFrame
	ValueStack []uint64
	BlockStack []BlockFrame
	Memory     Memory
	Globals    []uint64
	ExtraData  []byte
}

// magic distinguishes a raw-framed snapshot from a gzip-wrapped one; gzip
// streams always start with 0x1f 0x8b, which this magic deliberately avoids.
var magic = [4]byte{'R', 'E', 'E', 'F'}

// Encode writes s in the §4.7 field order. When gzipWrap is true the whole
// frame is gzip-compressed; the host scheduler decides this per spec §4.7
// ("the host layer wraps this in (optionally) a gzip stream").
func Encode(s *State, gzipWrap bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(magic[:])
	if err := encodeFrame(&buf, s); err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	if !gzipWrap {
		return buf.Bytes(), nil
	}
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("snapshot: gzip: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: gzip: %w", err)
	}
	return gz.Bytes(), nil
}

// Decode reads a snapshot produced by Encode, transparently detecting a
// gzip wrap by its magic bytes.
func Decode(data []byte) (*State, error) {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("snapshot: gzip: %w", err)
		}
		defer r.Close()
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("snapshot: gzip: %w", err)
		}
		data = raw
	}
	r := bytes.NewReader(data)
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return nil, fmt.Errorf("snapshot: truncated header: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("snapshot: bad magic %q", got)
	}
	return decodeFrame(r)
}

func encodeFrame(w *bytes.Buffer, s *State) error {
	if err := encodeCallStack(w, s.CallStack); err != nil {
		return err
	}
	writeU32(w, uint32(len(s.ValueStack)))
	for _, v := range s.ValueStack {
		writeU64(w, v)
	}
	encodeBlockStack(w, s.BlockStack)
	encodeMemory(w, s.Memory)
	writeU32(w, uint32(len(s.Globals)))
	for _, v := range s.Globals {
		writeU64(w, v)
	}
	writeBytes(w, s.ExtraData)
	return nil
}

func encodeCallStack(w *bytes.Buffer, frames []CallFrame) error {
	writeU32(w, uint32(len(frames)))
	for _, f := range frames {
		writeU32(w, f.FuncIndex)
		writeU32(w, f.IP)
		writeU32(w, f.BlockStackBase)
		writeU32(w, f.ResultCount)
		writeU32(w, uint32(len(f.Locals)))
		for _, v := range f.Locals {
			writeU64(w, v)
		}
	}
	return nil
}

func encodeBlockStack(w *bytes.Buffer, frames []BlockFrame) {
	writeU32(w, uint32(len(frames)))
	for _, f := range frames {
		w.WriteByte(f.Kind)
		writeU32(w, f.BodyStart)
		writeU32(w, f.EndOffset)
		writeU32(w, f.ValueStackBase)
		writeU32(w, f.ParamCount)
		writeU32(w, f.ResultCount)
	}
}

func encodeMemory(w *bytes.Buffer, m Memory) {
	w.WriteByte(boolByte(m.HasMax))
	writeU32(w, m.MaxPages)
	writeU32(w, m.PageCount)
	writeU32(w, m.IgnoredOffset)
	writeU32(w, m.IgnoredLength)
	writeBytes(w, m.BytesBefore)
	writeBytes(w, m.BytesAfter)
}

func decodeFrame(r *bytes.Reader) (*State, error) {
	s := &State{}
	var err error
	if s.CallStack, err = decodeCallStack(r); err != nil {
		return nil, err
	}
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	s.ValueStack = make([]uint64, n)
	for i := range s.ValueStack {
		if s.ValueStack[i], err = readU64(r); err != nil {
			return nil, err
		}
	}
	if s.BlockStack, err = decodeBlockStack(r); err != nil {
		return nil, err
	}
	if s.Memory, err = decodeMemory(r); err != nil {
		return nil, err
	}
	if n, err = readU32(r); err != nil {
		return nil, err
	}
	s.Globals = make([]uint64, n)
	for i := range s.Globals {
		if s.Globals[i], err = readU64(r); err != nil {
			return nil, err
		}
	}
	if s.ExtraData, err = readBytes(r); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeCallStack(r *bytes.Reader) ([]CallFrame, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	frames := make([]CallFrame, n)
	for i := range frames {
		f := &frames[i]
		if f.FuncIndex, err = readU32(r); err != nil {
			return nil, err
		}
		if f.IP, err = readU32(r); err != nil {
			return nil, err
		}
		if f.BlockStackBase, err = readU32(r); err != nil {
			return nil, err
		}
		if f.ResultCount, err = readU32(r); err != nil {
			return nil, err
		}
		localCount, err := readU32(r)
		if err != nil {
			return nil, err
		}
		f.Locals = make([]uint64, localCount)
		for j := range f.Locals {
			if f.Locals[j], err = readU64(r); err != nil {
				return nil, err
			}
		}
	}
	return frames, nil
}

func decodeBlockStack(r *bytes.Reader) ([]BlockFrame, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	frames := make([]BlockFrame, n)
	for i := range frames {
		f := &frames[i]
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		f.Kind = kind
		if f.BodyStart, err = readU32(r); err != nil {
			return nil, err
		}
		if f.EndOffset, err = readU32(r); err != nil {
			return nil, err
		}
		if f.ValueStackBase, err = readU32(r); err != nil {
			return nil, err
		}
		if f.ParamCount, err = readU32(r); err != nil {
			return nil, err
		}
		if f.ResultCount, err = readU32(r); err != nil {
			return nil, err
		}
	}
	return frames, nil
}

func decodeMemory(r *bytes.Reader) (Memory, error) {
	var m Memory
	hasMax, err := r.ReadByte()
	if err != nil {
		return m, err
	}
	m.HasMax = hasMax != 0
	if m.MaxPages, err = readU32(r); err != nil {
		return m, err
	}
	if m.PageCount, err = readU32(r); err != nil {
		return m, err
	}
	if m.IgnoredOffset, err = readU32(r); err != nil {
		return m, err
	}
	if m.IgnoredLength, err = readU32(r); err != nil {
		return m, err
	}
	if m.BytesBefore, err = readBytes(r); err != nil {
		return m, err
	}
	if m.BytesAfter, err = readBytes(r); err != nil {
		return m, err
	}
	return m, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeU32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeU64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func writeBytes(w *bytes.Buffer, b []byte) {
	writeU32(w, uint32(len(b)))
	w.Write(b)
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("snapshot: truncated u32: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("snapshot: truncated u64: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("snapshot: truncated blob: %w", err)
	}
	return b, nil
}
