// Package moremath supplies the float semantics the Wasm spec requires but
// the standard math package doesn't implement directly: NaN-propagating
// min/max with signed-zero tie-breaking, and ties-to-even rounding for the
// nearest instructions.
package moremath

import "math"

// WasmCompatMin mirrors math.Min with the Wasm spec's rules: a NaN operand
// always yields NaN, and min(+0,-0) is -0.
func WasmCompatMin(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// WasmCompatMax mirrors math.Max with the Wasm spec's rules: a NaN operand
// always yields NaN, and max(+0,-0) is +0.
func WasmCompatMax(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// WasmCompatNearestF64 implements f64.nearest: round to the nearest integer,
// ties to even, unlike math.Round which rounds ties away from zero.
func WasmCompatNearestF64(f float64) float64 {
	return math.RoundToEven(f)
}

// WasmCompatNearestF32 implements f32.nearest.
func WasmCompatNearestF32(f float32) float32 {
	return float32(math.RoundToEven(float64(f)))
}
