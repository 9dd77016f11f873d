package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTripState() *State {
	return &State{
		CallStack: []CallFrame{
			{FuncIndex: 1, IP: 4, BlockStackBase: 0, ResultCount: 1, Locals: []uint64{10, 20}},
		},
		ValueStack: []uint64{1, 2, 3},
		BlockStack: []BlockFrame{
			{Kind: 1, BodyStart: 2, EndOffset: 9, ValueStackBase: 1, ParamCount: 0, ResultCount: 1},
		},
		Memory: Memory{
			HasMax:        true,
			MaxPages:      10,
			PageCount:     2,
			IgnoredOffset: 100,
			IgnoredLength: 5,
			BytesBefore:   []byte("before"),
			BytesAfter:    []byte("after"),
		},
		Globals:   []uint64{42, 7},
		ExtraData: []byte("result-stash"),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := roundTripState()
	data, err := Encode(s, false)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestEncodeDecodeGzipRoundTrip(t *testing.T) {
	s := roundTripState()
	data, err := Encode(s, true)
	require.NoError(t, err)
	require.Equal(t, byte(0x1f), data[0])
	require.Equal(t, byte(0x8b), data[1])

	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("nope"))
	require.Error(t, err)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	data, err := Encode(roundTripState(), false)
	require.NoError(t, err)
	_, err = Decode(data[:len(data)-10])
	require.Error(t, err)
}
