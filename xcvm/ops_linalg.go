// ops_linalg.go - Lineare Algebra und Faltungen
// Enthält: Gemm, Conv, ConvTranspose (statische und dynamische Ausgabeform), ConvGradWeight
package xcvm

import (
	"fmt"

	"github.com/ollama/xcvm/ml"
)

// flatten2D folds every axis but the first.
func flatten2D(x ml.Array) ml.Array {
	shape := x.Shape()
	if len(shape) <= 2 {
		return x
	}
	return x.Reshape(shape[0], x.Size()/shape[0])
}

// runGemm computes alpha*op(a)·op(b) + beta*c. op reverses all axes when
// the transpose flag is set; higher ranks are folded to 2D afterwards. c is
// not read when beta is 0.
func runGemm(_ *State, in *args) ([]Value, error) {
	a, b, c := in.Array(0), in.Array(1), in.Array(2)
	alpha, beta := in.Float(3), in.Float(4)
	if in.Int(5) != 0 {
		a = a.Transpose()
	}
	if in.Int(6) != 0 {
		b = b.Transpose()
	}
	a, b = flatten2D(a), flatten2D(b)

	r := a.Dot(b)
	if alpha != 1 {
		r = r.MulScalar(alpha)
	}
	if beta == 0 {
		return result(r, nil)
	}
	if beta != 1 {
		c = c.MulScalar(beta)
	}
	return result(r.Add(c), nil)
}

func runConv(_ *State, in *args) ([]Value, error) {
	x, w, b := in.Array(0), in.Array(1), in.OptArray(2)
	return result(x.Conv(w, b, in.Axes(3), in.Axes(4)), nil)
}

func runConvTranspose(_ *State, in *args) ([]Value, error) {
	x, w, b := in.Array(0), in.Array(1), in.OptArray(2)
	return result(x.ConvTranspose(w, b, in.Axes(3), in.Axes(4), spatialSize(x, in.Axes(5))), nil)
}

// runConvTransposeWithDynamicShape reads the full output shape from an
// array; its first two entries (batch, channels) are dropped.
func runConvTransposeWithDynamicShape(_ *State, in *args) ([]Value, error) {
	x, w := in.Array(0), in.Array(1)
	shape := toInts(in.Array(2).Ints())
	if len(shape) != x.NDim() {
		return nil, fmt.Errorf("ConvTransposeWithDynamicShape: output shape %v for input %v", shape, x.Shape())
	}
	return result(x.ConvTranspose(w, nil, in.Axes(3), in.Axes(4), shape[2:]), nil)
}

// spatialSize accepts an output shape with or without batch and channel axes.
func spatialSize(x ml.Array, shape []int) []int {
	if len(shape) == x.NDim() {
		return shape[2:]
	}
	return shape
}

func runConvGradWeight(_ *State, in *args) ([]Value, error) {
	w, x, gy := in.Array(0), in.Array(1), in.Array(2)
	return result(x.ConvGradWeight(w.Shape(), w.DType(), gy, in.Axes(3), in.Axes(4)), nil)
}
