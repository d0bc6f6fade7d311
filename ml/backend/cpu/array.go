// array.go - Array-Struktur und Basis-Methoden
// Enthält: Array struct, Shape/DType Getter, Datenexport, Cast und Geraetewechsel

package cpu

import (
	"fmt"
	"math"
	"slices"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/ollama/xcvm/ml"
)

// Array stores every dtype as float64 elements in row-major order, each
// rounded to its dtype when written. Integer arrays additionally carry their
// exact values in ints; data movement (reshape, transpose, slicing, gather,
// concat, casts between integer dtypes) keeps that lane, arithmetic is
// computed in float64 and rebuilds it from the rounded result.
type Array struct {
	dev   *Device
	dtype ml.DType
	shape []int
	data  []float64
	ints  []int64
}

var _ ml.Array = (*Array)(nil)

func (a *Array) Shape() []int      { return slices.Clone(a.shape) }
func (a *Array) NDim() int         { return len(a.shape) }
func (a *Array) Size() int         { return len(a.data) }
func (a *Array) DType() ml.DType   { return a.dtype }
func (a *Array) Device() ml.Device { return a.dev }
func (a *Array) Bytes() int        { return len(a.data) * a.dtype.Size() }

func (a *Array) String() string {
	return fmt.Sprintf("Array(%s, %v, %s)", a.dtype, a.shape, a.dev.Name())
}

func (a *Array) Floats() []float64 {
	return slices.Clone(a.data)
}

func (a *Array) Ints() []int64 {
	return slices.Clone(a.exact())
}

// exact returns the integer lane, or the truncated float data when a has none.
func (a *Array) exact() []int64 {
	if a.ints != nil {
		return a.ints
	}
	out := make([]int64, len(a.data))
	for i, v := range a.data {
		out[i] = toInt(v)
	}
	return out
}

func (a *Array) AsScalar() float64 {
	if len(a.data) != 1 {
		throw("AsScalar", "array of shape %v has %d elements", a.shape, len(a.data))
	}
	return a.data[0]
}

// AsType casts each element; float to int conversion truncates toward zero.
func (a *Array) AsType(dtype ml.DType) ml.Array {
	checkDType("AsType", dtype)
	if dtype.IsInt() {
		src := a.exact()
		out := make([]int64, len(src))
		for i, v := range src {
			out[i] = wrapInt(dtype, v)
		}
		return a.dev.newIntArray(dtype, a.shape, out)
	}
	return a.mapTo(dtype, func(v float64) float64 { return v })
}

func (a *Array) ToDevice(d ml.Device) ml.Array {
	dev, ok := d.(*Device)
	if !ok || dev.backend != a.dev.backend {
		throw("ToDevice", "device %s is not a native device of this backend", d.Name())
	}
	out := dev.newArray(a.dtype, a.shape, slices.Clone(a.data))
	out.ints = slices.Clone(a.ints)
	return out
}

// gather builds an array of shape whose i-th element is a's element src[i].
func (a *Array) gather(dtype ml.DType, shape []int, src []int) *Array {
	if a.ints != nil && dtype.IsInt() {
		out := make([]int64, len(src))
		for i, j := range src {
			out[i] = wrapInt(dtype, a.ints[j])
		}
		return a.dev.newIntArray(dtype, shape, out)
	}
	out := make([]float64, len(src))
	for i, j := range src {
		out[i] = convert(dtype, a.data[j])
	}
	return a.dev.newArray(dtype, shape, out)
}

// mapTo applies f elementwise and stores the result as dtype.
func (a *Array) mapTo(dtype ml.DType, f func(float64) float64) *Array {
	out := make([]float64, len(a.data))
	for i, v := range a.data {
		out[i] = convert(dtype, f(v))
	}
	return a.dev.newArray(dtype, a.shape, out)
}

// =============================================================================
// Hilfsfunktionen
// =============================================================================

func throw(op, format string, args ...any) {
	panic(&ml.Error{Op: op, Msg: fmt.Sprintf(format, args...)})
}

func checkDType(op string, dtype ml.DType) {
	if !dtype.Valid() {
		throw(op, "unsupported dtype %s", dtype)
	}
}

func checkShape(op string, shape []int) {
	for _, d := range shape {
		if d < 0 {
			throw(op, "negative dimension in shape %v", shape)
		}
	}
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func stridesOf(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

// convert rounds v to what dtype can hold.
func convert(dtype ml.DType, v float64) float64 {
	switch dtype {
	case ml.DTypeFloat64:
		return v
	case ml.DTypeFloat32:
		return float64(float32(v))
	case ml.DTypeFloat16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case ml.DTypeBfloat16:
		return float64(bfloat16.DecodeFloat32(bfloat16.EncodeFloat32([]float32{float32(v)}))[0])
	case ml.DTypeBool:
		if v != 0 {
			return 1
		}
		return 0
	case ml.DTypeInt64, ml.DTypeInt32, ml.DTypeInt16, ml.DTypeInt8, ml.DTypeUint8:
		return float64(wrapInt(dtype, toInt(v)))
	}
	return v
}

// wrapInt truncates v to the width of an integer dtype.
func wrapInt(dtype ml.DType, v int64) int64 {
	switch dtype {
	case ml.DTypeInt32:
		return int64(int32(v))
	case ml.DTypeInt16:
		return int64(int16(v))
	case ml.DTypeInt8:
		return int64(int8(v))
	case ml.DTypeUint8:
		return int64(uint8(v))
	}
	return v
}

// toInt saturates at the int64 range; NaN becomes 0.
func toInt(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}

// promote picks the result dtype of a binary arithmetic op.
func promote(a, b ml.DType) ml.DType {
	switch {
	case a == b:
		return a
	case a.IsFloat() && !b.IsFloat():
		return a
	case b.IsFloat() && !a.IsFloat():
		return b
	case a == ml.DTypeBool:
		return b
	case b == ml.DTypeBool:
		return a
	case a.Size() >= b.Size():
		return a
	}
	return b
}

// normalizeAxis maps a possibly negative axis into [0, ndim).
func normalizeAxis(op string, axis, ndim int) int {
	if axis < -ndim || axis >= ndim {
		throw(op, "axis %d out of range for %d dimensions", axis, ndim)
	}
	if axis < 0 {
		axis += ndim
	}
	return axis
}

// forEachIndex visits every multi-index of shape in row-major order.
func forEachIndex(shape []int, fn func(idx []int)) {
	n := numel(shape)
	if n == 0 {
		return
	}
	idx := make([]int, len(shape))
	for range n {
		fn(idx)
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
}
