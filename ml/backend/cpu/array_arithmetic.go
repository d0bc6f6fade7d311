// array_arithmetic.go - Elementweise Operationen mit Broadcasting
// Enthält: Add, Sub, Mul, Div, Skalar-Varianten, Exp/Log/Sqrt, Vergleiche

package cpu

import (
	"math"

	"github.com/ollama/xcvm/ml"
)

// broadcastShapes combines two shapes with numpy broadcasting rules.
func broadcastShapes(op string, a, b []int) []int {
	n := max(len(a), len(b))
	out := make([]int, n)
	for i := range n {
		da, db := 1, 1
		if j := len(a) - n + i; j >= 0 {
			da = a[j]
		}
		if j := len(b) - n + i; j >= 0 {
			db = b[j]
		}
		switch {
		case da == db, db == 1:
			out[i] = da
		case da == 1:
			out[i] = db
		default:
			throw(op, "shapes %v and %v cannot be broadcast", a, b)
		}
	}
	return out
}

// broadcastStrides returns strides that read shape as if it had shape out;
// broadcast axes get stride 0.
func broadcastStrides(shape, out []int) []int {
	src := stridesOf(shape)
	strides := make([]int, len(out))
	off := len(out) - len(shape)
	for i := range shape {
		if shape[i] != 1 {
			strides[off+i] = src[i]
		}
	}
	return strides
}

func (a *Array) sameDevice(op string, b *Array) {
	if a.dev != b.dev {
		throw(op, "arrays on different devices (%s, %s)", a.dev.Name(), b.dev.Name())
	}
}

func asArray(op string, t ml.Array) *Array {
	b, ok := t.(*Array)
	if !ok {
		throw(op, "operand %T is not a native array", t)
	}
	return b
}

func (a *Array) binary(op string, t ml.Array, dtype ml.DType, f func(x, y float64) float64) ml.Array {
	b := asArray(op, t)
	a.sameDevice(op, b)
	if dtype == ml.DTypeUndefined {
		dtype = promote(a.dtype, b.dtype)
	}

	shape := broadcastShapes(op, a.shape, b.shape)
	out := make([]float64, numel(shape))
	if len(a.data) == len(out) && len(b.data) == len(out) {
		for i := range out {
			out[i] = convert(dtype, f(a.data[i], b.data[i]))
		}
		return a.dev.newArray(dtype, shape, out)
	}

	sa, sb := broadcastStrides(a.shape, shape), broadcastStrides(b.shape, shape)
	i := 0
	forEachIndex(shape, func(idx []int) {
		ia, ib := 0, 0
		for d, v := range idx {
			ia += v * sa[d]
			ib += v * sb[d]
		}
		out[i] = convert(dtype, f(a.data[ia], b.data[ib]))
		i++
	})
	return a.dev.newArray(dtype, shape, out)
}

func (a *Array) Add(b ml.Array) ml.Array {
	return a.binary("Add", b, ml.DTypeUndefined, func(x, y float64) float64 { return x + y })
}

func (a *Array) Sub(b ml.Array) ml.Array {
	return a.binary("Sub", b, ml.DTypeUndefined, func(x, y float64) float64 { return x - y })
}

func (a *Array) Mul(b ml.Array) ml.Array {
	return a.binary("Mul", b, ml.DTypeUndefined, func(x, y float64) float64 { return x * y })
}

func (a *Array) Div(b ml.Array) ml.Array {
	return a.binary("Div", b, ml.DTypeUndefined, func(x, y float64) float64 { return x / y })
}

func (a *Array) AddScalar(s float64) ml.Array {
	return a.mapTo(a.dtype, func(v float64) float64 { return v + s })
}

func (a *Array) MulScalar(s float64) ml.Array {
	return a.mapTo(a.dtype, func(v float64) float64 { return v * s })
}

func (a *Array) DivScalar(s float64) ml.Array {
	return a.mapTo(a.dtype, func(v float64) float64 { return v / s })
}

// MaximumScalar propagates NaN from the array side.
func (a *Array) MaximumScalar(s float64) ml.Array {
	return a.mapTo(a.dtype, func(v float64) float64 {
		if math.IsNaN(v) || v > s {
			return v
		}
		return s
	})
}

func (a *Array) Neg() ml.Array {
	return a.mapTo(a.dtype, func(v float64) float64 { return -v })
}

func (a *Array) Reciprocal() ml.Array {
	return a.mapTo(a.dtype, func(v float64) float64 { return 1 / v })
}

func (a *Array) Exp() ml.Array  { return a.mapTo(a.dtype, math.Exp) }
func (a *Array) Log() ml.Array  { return a.mapTo(a.dtype, math.Log) }
func (a *Array) Sqrt() ml.Array { return a.mapTo(a.dtype, math.Sqrt) }

// =============================================================================
// Vergleiche (Ergebnis immer bool)
// =============================================================================

func boolOf(c bool) float64 {
	if c {
		return 1
	}
	return 0
}

func (a *Array) Equal(b ml.Array) ml.Array {
	return a.binary("Equal", b, ml.DTypeBool, func(x, y float64) float64 { return boolOf(x == y) })
}

func (a *Array) NotEqual(b ml.Array) ml.Array {
	return a.binary("NotEqual", b, ml.DTypeBool, func(x, y float64) float64 { return boolOf(x != y) })
}

func (a *Array) Greater(b ml.Array) ml.Array {
	return a.binary("Greater", b, ml.DTypeBool, func(x, y float64) float64 { return boolOf(x > y) })
}

func (a *Array) Less(b ml.Array) ml.Array {
	return a.binary("Less", b, ml.DTypeBool, func(x, y float64) float64 { return boolOf(x < y) })
}

func (a *Array) LogicalNot() ml.Array {
	return a.mapTo(ml.DTypeBool, func(v float64) float64 { return boolOf(v == 0) })
}
