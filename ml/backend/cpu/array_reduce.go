// array_reduce.go - Reduktionen ueber Achsen
// Enthält: Sum, Max, Mean, ArgMax, LogSoftmax

package cpu

import (
	"math"

	"github.com/ollama/xcvm/ml"
)

// reduceAxes normalizes axes into a membership mask; no axes means all.
func (a *Array) reduceAxes(op string, axes []int) []bool {
	mask := make([]bool, len(a.shape))
	if len(axes) == 0 {
		for i := range mask {
			mask[i] = true
		}
		return mask
	}
	for _, ax := range axes {
		ax = normalizeAxis(op, ax, len(a.shape))
		if mask[ax] {
			throw(op, "duplicate axis %d", ax)
		}
		mask[ax] = true
	}
	return mask
}

// reduce folds every element into the output slot selected by the kept axes.
func (a *Array) reduce(op string, axes []int, keepDims bool, init float64, f func(acc, v float64) float64) (*Array, []int) {
	mask := a.reduceAxes(op, axes)

	var outShape, keptShape []int
	for i, d := range a.shape {
		switch {
		case !mask[i]:
			outShape = append(outShape, d)
			keptShape = append(keptShape, d)
		case keepDims:
			outShape = append(outShape, 1)
			keptShape = append(keptShape, 1)
		default:
			keptShape = append(keptShape, 1)
		}
	}

	counts := make([]int, numel(outShape))
	out := make([]float64, len(counts))
	for i := range out {
		out[i] = init
	}

	keptStrides := stridesOf(keptShape)
	i := 0
	forEachIndex(a.shape, func(idx []int) {
		o := 0
		for d, v := range idx {
			if !mask[d] {
				o += v * keptStrides[d]
			}
		}
		out[o] = f(out[o], a.data[i])
		counts[o]++
		i++
	})

	return a.dev.newArray(a.dtype, outShape, out), counts
}

func (a *Array) Sum(axes []int, keepDims bool) ml.Array {
	r, _ := a.reduce("Sum", axes, keepDims, 0, func(acc, v float64) float64 { return acc + v })
	return r.mapTo(r.dtype, func(v float64) float64 { return v })
}

func (a *Array) Max(axes []int, keepDims bool) ml.Array {
	if a.Size() == 0 {
		throw("Max", "zero-size array of shape %v", a.shape)
	}
	r, _ := a.reduce("Max", axes, keepDims, math.Inf(-1), func(acc, v float64) float64 {
		if math.IsNaN(acc) || math.IsNaN(v) {
			return math.NaN()
		}
		return max(acc, v)
	})
	return r
}

func (a *Array) Mean(axes []int, keepDims bool) ml.Array {
	r, counts := a.reduce("Mean", axes, keepDims, 0, func(acc, v float64) float64 { return acc + v })
	for i := range r.data {
		r.data[i] = convert(r.dtype, r.data[i]/float64(counts[i]))
	}
	return r
}

// ArgMax returns int64 indices of the first maximum along axis.
func (a *Array) ArgMax(axis int) ml.Array {
	axis = normalizeAxis("ArgMax", axis, len(a.shape))
	if a.shape[axis] == 0 {
		throw("ArgMax", "zero-size axis %d", axis)
	}
	outer, n, inner := a.splitAt(axis)

	var outShape []int
	outShape = append(outShape, a.shape[:axis]...)
	outShape = append(outShape, a.shape[axis+1:]...)
	out := make([]float64, outer*inner)
	for o := range outer {
		for in := range inner {
			best, bestIdx := a.data[o*n*inner+in], 0
			for k := 1; k < n; k++ {
				if v := a.data[(o*n+k)*inner+in]; v > best {
					best, bestIdx = v, k
				}
			}
			out[o*inner+in] = float64(bestIdx)
		}
	}
	return a.dev.newArray(ml.DTypeInt64, outShape, out)
}

func (a *Array) LogSoftmax(axis int) ml.Array {
	axis = normalizeAxis("LogSoftmax", axis, len(a.shape))
	outer, n, inner := a.splitAt(axis)
	out := make([]float64, len(a.data))
	for o := range outer {
		for in := range inner {
			at := func(k int) int { return (o*n+k)*inner + in }
			m := math.Inf(-1)
			for k := range n {
				m = max(m, a.data[at(k)])
			}
			var s float64
			for k := range n {
				s += math.Exp(a.data[at(k)] - m)
			}
			lse := m + math.Log(s)
			for k := range n {
				out[at(k)] = convert(a.dtype, a.data[at(k)]-lse)
			}
		}
	}
	return a.dev.newArray(a.dtype, a.shape, out)
}

// splitAt views the array as [outer, shape[axis], inner].
func (a *Array) splitAt(axis int) (outer, n, inner int) {
	return numel(a.shape[:axis]), a.shape[axis], numel(a.shape[axis+1:])
}
