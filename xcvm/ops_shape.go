// ops_shape.go - Shape-Manipulation
//
// Dieses Modul enthaelt:
// - Shape, Size: Host-Arrays mit int64-Metadaten
// - Reshape mit einer -1 Dimension, Expand
// - Squeeze, Unsqueeze, Transpose
// - Slice (statisch) und DynamicSlice (Grenzen aus Arrays)
// - Concat, Split, Pad
package xcvm

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ollama/xcvm/ml"
)

func shapeOf(st *State, x ml.Array) (ml.Array, error) {
	shape := x.Shape()
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	return st.HostDevice().FromInts(ml.DTypeInt64, dims, len(dims)), nil
}

func sizeOf(st *State, x ml.Array) (ml.Array, error) {
	return st.HostDevice().Full(ml.DTypeInt64, float64(x.Size())), nil
}

// reshape infers at most one -1 dimension from the element count.
func reshape(_ *State, data, shape ml.Array) (ml.Array, error) {
	dims := toInts(shape.Ints())
	from, to, infer := data.Size(), 1, -1
	for i, d := range dims {
		switch {
		case d == -1 && infer >= 0:
			return nil, fmt.Errorf("Reshape: more than one -1 in %v", dims)
		case d == -1:
			infer = i
		case d < 0:
			return nil, fmt.Errorf("Reshape: negative dimension in %v", dims)
		default:
			to *= d
		}
	}

	if infer >= 0 {
		if to == 0 || from%to != 0 {
			return nil, fmt.Errorf("Reshape: cannot reshape %v into %v", data.Shape(), dims)
		}
		dims[infer] = from / to
	} else if from != to {
		return nil, fmt.Errorf("Reshape: cannot reshape %v into %v", data.Shape(), dims)
	}
	return data.Reshape(dims...), nil
}

func expand(_ *State, data, shape ml.Array) (ml.Array, error) {
	return data.BroadcastTo(toInts(shape.Ints())...), nil
}

// runSqueeze removes the given axes, all of which must have extent 1. An
// empty axis list leaves the shape unchanged, so Squeeze and Unsqueeze with
// the same list undo each other.
func runSqueeze(_ *State, in *args) ([]Value, error) {
	x := in.Array(0)
	shape := x.Shape()

	drop := make([]bool, len(shape))
	for _, a := range in.Ints(1) {
		axis, err := normAxis(a, len(shape))
		if err != nil {
			return nil, err
		}
		if shape[axis] != 1 {
			return nil, fmt.Errorf("Squeeze: axis %d of %v is not 1", axis, shape)
		}
		drop[axis] = true
	}

	var out []int
	for i, d := range shape {
		if !drop[i] {
			out = append(out, d)
		}
	}
	return result(x.Reshape(out...), nil)
}

// runUnsqueeze inserts axes of extent 1 in the listed order.
func runUnsqueeze(_ *State, in *args) ([]Value, error) {
	x := in.Array(0)
	shape := x.Shape()
	for _, a := range in.Ints(1) {
		d := int(a)
		if d < 0 {
			d += len(shape) + 1
		}
		if d < 0 || d > len(shape) {
			return nil, fmt.Errorf("Unsqueeze: axis %d out of range for %v", a, shape)
		}
		shape = slices.Insert(shape, d, 1)
	}
	return result(x.Reshape(shape...), nil)
}

func runTranspose(_ *State, in *args) ([]Value, error) {
	return result(in.Array(0).Transpose(in.Axes(1)...), nil)
}

// sliceRanges builds per-axis ranges; axes defaults to 0..len(starts)-1.
func sliceRanges(ndim int, axes, starts, ends []int64) ([]ml.Range, error) {
	if len(starts) != len(ends) {
		return nil, fmt.Errorf("%d starts for %d ends", len(starts), len(ends))
	}
	if axes == nil {
		for i := range starts {
			axes = append(axes, int64(i))
		}
	}
	if len(axes) != len(starts) {
		return nil, fmt.Errorf("%d axes for %d starts", len(axes), len(starts))
	}

	ranges := make([]ml.Range, ndim)
	for i := range ranges {
		ranges[i] = ml.All()
	}
	for i, a := range axes {
		axis, err := normAxis(a, ndim)
		if err != nil {
			return nil, err
		}
		ranges[axis] = ml.Span(int(starts[i]), int(ends[i]))
	}
	return ranges, nil
}

func runSlice(_ *State, in *args) ([]Value, error) {
	x := in.Array(0)
	axes := in.Ints(1)
	if len(axes) == 0 {
		axes = nil
	}
	ranges, err := sliceRanges(x.NDim(), axes, in.Ints(2), in.Ints(3))
	if err != nil {
		return nil, fmt.Errorf("Slice: %w", err)
	}
	return result(x.Slice(ranges...), nil)
}

func runDynamicSlice(_ *State, in *args) ([]Value, error) {
	x, starts, ends := in.Array(0), in.Array(1), in.Array(2)
	if starts.NDim() != 1 || ends.NDim() != 1 {
		return nil, fmt.Errorf("DynamicSlice: starts %v and ends %v must be 1-D", starts.Shape(), ends.Shape())
	}

	var axes []int64
	if a := in.OptArray(3); a != nil {
		if a.NDim() != 1 {
			return nil, fmt.Errorf("DynamicSlice: axes %v must be 1-D", a.Shape())
		}
		axes = a.Ints()
	}

	ranges, err := sliceRanges(x.NDim(), axes, starts.Ints(), ends.Ints())
	if err != nil {
		return nil, fmt.Errorf("DynamicSlice: %w", err)
	}
	return result(x.Slice(ranges...), nil)
}

func runConcat(_ *State, in *args) ([]Value, error) {
	xs := in.Arrays(0)
	if len(xs) == 0 {
		return nil, errors.New("Concat needs at least one input")
	}
	return result(xs[0].Concat(int(in.Int(1)), xs[1:]...), nil)
}

// runSplit divides the axis evenly across the outputs unless explicit
// lengths are given.
func runSplit(_ *State, in *args) ([]Value, error) {
	x := in.Array(0)
	axis, err := normAxis(in.Int(1), x.NDim())
	if err != nil {
		return nil, err
	}

	n := in.NumOutputs()
	lens := in.Axes(2)
	if len(lens) == 0 {
		dim := x.Shape()[axis]
		if dim%n != 0 {
			return nil, fmt.Errorf("Split: axis %d of extent %d does not divide into %d outputs", axis, dim, n)
		}
		lens = make([]int, n)
		for i := range lens {
			lens[i] = dim / n
		}
	} else if len(lens) != n {
		return nil, fmt.Errorf("Split: %d lengths for %d outputs", len(lens), n)
	}

	parts := x.Split(axis, lens...)
	outs := make([]Value, len(parts))
	for i, p := range parts {
		outs[i] = ArrayValue{p}
	}
	return outs, nil
}

// runPad copies data into a constant-filled array. pads lists all leading
// pads, then all trailing pads.
func runPad(_ *State, in *args) ([]Value, error) {
	x, pads, value := in.Array(0), in.Axes(1), in.Float(2)
	shape := x.Shape()
	n := len(shape)
	if len(pads) != 2*n {
		return nil, fmt.Errorf("Pad: %d pads for rank %d", len(pads), n)
	}

	padded := make([]int, n)
	ranges := make([]ml.Range, n)
	for i, d := range shape {
		if pads[i] < 0 || pads[n+i] < 0 {
			return nil, fmt.Errorf("Pad: negative pads %v", pads)
		}
		padded[i] = d + pads[i] + pads[n+i]
		ranges[i] = ml.Span(pads[i], pads[i]+d)
	}

	y := x.Device().Full(x.DType(), value, padded...)
	return result(y.SetSlice(x, ranges...), nil)
}
