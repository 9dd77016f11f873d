package decoder

import (
	"bytes"
	"encoding/binary"
	"math"
)

func readF32(r *bytes.Reader) (float32, error) {
	var buf [4]byte
	if _, err := r.Read(buf[:]); err != nil {
		return 0, wrapEOF(err)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[:])), nil
}

func readF64(r *bytes.Reader) (float64, error) {
	var buf [8]byte
	if _, err := r.Read(buf[:]); err != nil {
		return 0, wrapEOF(err)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}
