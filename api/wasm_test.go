package api

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueTypeName(t *testing.T) {
	require.Equal(t, "i32", ValueTypeName(ValueTypeI32))
	require.Equal(t, "i64", ValueTypeName(ValueTypeI64))
	require.Equal(t, "f32", ValueTypeName(ValueTypeF32))
	require.Equal(t, "f64", ValueTypeName(ValueTypeF64))
	require.Equal(t, "funcref", ValueTypeName(ValueTypeFuncref))
	require.Equal(t, "unknown", ValueTypeName(0x99))
}

func TestExternTypeName(t *testing.T) {
	require.Equal(t, "func", ExternTypeName(ExternTypeFunc))
	require.Equal(t, "table", ExternTypeName(ExternTypeTable))
	require.Equal(t, "memory", ExternTypeName(ExternTypeMemory))
	require.Equal(t, "global", ExternTypeName(ExternTypeGlobal))
	require.Equal(t, "0x64", ExternTypeName(0x64))
}

func TestResultTypeName(t *testing.T) {
	require.Equal(t, "i32", ResultTypeName(ResultTypeI32))
	require.Equal(t, "bytes", ResultTypeName(ResultTypeBytes))
	require.Equal(t, "plain_string", ResultTypeName(ResultTypePlainString))
	require.Equal(t, "json_string", ResultTypeName(ResultTypeJSONString))
	require.Equal(t, "0x64", ResultTypeName(0x64))
}

func TestEncodeDecodeF32(t *testing.T) {
	for _, v := range []float32{0, 100, -100, 1, -1, math.MaxFloat32, math.SmallestNonzeroFloat32} {
		encoded := EncodeF32(v)
		require.Zero(t, encoded>>32)
		require.Equal(t, v, DecodeF32(encoded))
	}
	require.True(t, math.IsNaN(float64(DecodeF32(EncodeF32(float32(math.NaN()))))))
}

func TestEncodeDecodeF64(t *testing.T) {
	for _, v := range []float64{0, 100, -100, 1, -1, math.MaxFloat64, math.SmallestNonzeroFloat64} {
		require.Equal(t, v, DecodeF64(EncodeF64(v)))
	}
	require.True(t, math.IsNaN(DecodeF64(EncodeF64(math.NaN()))))
}
