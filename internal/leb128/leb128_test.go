package leb128_test

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reef-runtime/reef/internal/leb128"
)

func reader(b []byte) *bufio.Reader { return bufio.NewReader(bytes.NewReader(b)) }

func TestDecodeUint32_RoundTripsEncodeUint32(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 300, 1 << 20, 1<<32 - 1} {
		got, size, err := leb128.DecodeUint32(reader(leb128.EncodeUint32(v)))
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, uint32(len(leb128.EncodeUint32(v))), size)
	}
}

func TestDecodeUint32_OverflowDetected(t *testing.T) {
	// 5 continuation bytes whose top nibble exceeds the 4 remaining bits of
	// a 32-bit value.
	_, _, err := leb128.DecodeUint32(reader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}))
	require.ErrorIs(t, err, leb128.ErrOverflow32)
}

func TestDecodeInt32_RoundTripsEncodeInt32(t *testing.T) {
	for _, v := range []int32{0, -1, 63, -64, 1000, -1000, 1<<31 - 1, -(1 << 31)} {
		got, _, err := leb128.DecodeInt32(reader(leb128.EncodeInt32(v)))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestDecodeInt64_RoundTripsEncodeInt64(t *testing.T) {
	for _, v := range []int64{0, -1, 1 << 40, -(1 << 40), 1<<63 - 1, -(1 << 63)} {
		got, _, err := leb128.DecodeInt64(reader(leb128.EncodeInt64(v)))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestDecodeUint32_TruncatedInputErrors(t *testing.T) {
	_, _, err := leb128.DecodeUint32(reader([]byte{0x80}))
	require.Error(t, err)
}
