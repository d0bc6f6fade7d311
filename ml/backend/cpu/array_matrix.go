// array_matrix.go - Matrixmultiplikation ueber gonum
// Enthält: Dot (1D/2D/ND x 2D) und die gonum-Anbindung

package cpu

import (
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/ollama/xcvm/ml"
)

// Dot follows numpy.dot for b of rank <= 2: a of shape (..., K) is folded
// into (M, K) and multiplied with b of shape (K, N). Rank-0 operands
// multiply elementwise.
func (a *Array) Dot(t ml.Array) ml.Array {
	b := asArray("Dot", t)
	a.sameDevice("Dot", b)
	if len(a.shape) == 0 || len(b.shape) == 0 {
		return a.Mul(b)
	}
	if len(b.shape) > 2 {
		throw("Dot", "second operand of rank %d is not supported", len(b.shape))
	}

	k := a.shape[len(a.shape)-1]
	if b.shape[0] != k {
		throw("Dot", "shapes %v and %v are not aligned", a.shape, b.shape)
	}
	m := numel(a.shape[:len(a.shape)-1])
	n := 1
	if len(b.shape) == 2 {
		n = b.shape[1]
	}

	var shape []int
	shape = append(shape, a.shape[:len(a.shape)-1]...)
	if len(b.shape) == 2 {
		shape = append(shape, n)
	}

	dtype := promote(a.dtype, b.dtype)
	out := make([]float64, m*n)
	if m > 0 && n > 0 && k > 0 {
		var c mat.Dense
		c.Mul(mat.NewDense(m, k, slices.Clone(a.data)), mat.NewDense(k, n, slices.Clone(b.data)))
		raw := c.RawMatrix()
		for i := range m {
			for j := range n {
				out[i*n+j] = convert(dtype, raw.Data[i*raw.Stride+j])
			}
		}
	}
	return a.dev.newArray(dtype, shape, out)
}
