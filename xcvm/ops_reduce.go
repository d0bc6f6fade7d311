// ops_reduce.go - Reduktionen und Softmax-Familie
// Enthält: ReduceSumTo, ArgMax, Hardmax, Softmax, LogSoftmax
package xcvm

import (
	"fmt"

	"github.com/ollama/xcvm/ml"
)

// normAxis resolves a negative axis against ndim.
func normAxis(axis int64, ndim int) (int, error) {
	a := int(axis)
	if a < 0 {
		a += ndim
	}
	if a < 0 || a >= ndim {
		return 0, fmt.Errorf("axis %d out of range for rank %d", axis, ndim)
	}
	return a, nil
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// reduceSumTo sums the leading axes of data so the result has the given
// shape. The trailing axes must already match.
func reduceSumTo(_ *State, data, shape ml.Array) (ml.Array, error) {
	from, to := data.Shape(), toInts(shape.Ints())
	if len(from) < len(to) {
		return nil, fmt.Errorf("ReduceSumTo: cannot reduce %v to %v", from, to)
	}

	lead := len(from) - len(to)
	for i, d := range to {
		if from[lead+i] != d {
			return nil, fmt.Errorf("ReduceSumTo: trailing dims of %v do not match %v", from, to)
		}
	}
	if lead == 0 {
		return data, nil
	}

	axes := make([]int, lead)
	for i := range axes {
		axes[i] = i
	}
	return data.Sum(axes, false), nil
}

func runArgMax(_ *State, in *args) ([]Value, error) {
	x := in.Array(0)
	axis, err := normAxis(in.Int(1), x.NDim())
	if err != nil {
		return nil, err
	}

	r := x.ArgMax(axis)
	if in.Int(2) != 0 {
		shape := x.Shape()
		shape[axis] = 1
		r = r.Reshape(shape...)
	}
	return result(r, nil)
}

// runHardmax one-hot encodes the argmax over the axes from axis on.
func runHardmax(_ *State, in *args) ([]Value, error) {
	x := in.Array(0)
	shape := x.Shape()

	axis := int(in.Int(1))
	if axis < 0 {
		axis += len(shape)
	}
	if axis < 0 || axis > len(shape) {
		return nil, fmt.Errorf("Hardmax: axis %d out of range for rank %d", in.Int(1), len(shape))
	}

	outer, inner := product(shape[:axis]), product(shape[axis:])
	r := x.Reshape(outer, inner).ArgMax(1)
	y := x.Device().Eye(inner, x.DType()).Take(r, 0)
	return result(y.Reshape(shape...), nil)
}

func runSoftmax(_ *State, in *args) ([]Value, error) {
	return result(in.Array(0).LogSoftmax(int(in.Int(1))).Exp(), nil)
}

func runLogSoftmax(_ *State, in *args) ([]Value, error) {
	return result(in.Array(0).LogSoftmax(int(in.Int(1))), nil)
}
