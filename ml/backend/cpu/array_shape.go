// array_shape.go - Shape-Operationen fuer Arrays
// Enthält: Reshape, BroadcastTo, Transpose, Slice, SetSlice, Take, AddAt, Concat, Split

package cpu

import (
	"slices"

	"github.com/pdevine/tensor"

	"github.com/ollama/xcvm/ml"
)

// Reshape shares storage with a; arrays are never written in place.
func (a *Array) Reshape(shape ...int) ml.Array {
	checkShape("Reshape", shape)
	if numel(shape) != len(a.data) {
		throw("Reshape", "cannot reshape %v into %v", a.shape, shape)
	}
	return &Array{dev: a.dev, dtype: a.dtype, shape: slices.Clone(shape), data: a.data, ints: a.ints}
}

func (a *Array) BroadcastTo(shape ...int) ml.Array {
	checkShape("BroadcastTo", shape)
	if len(shape) < len(a.shape) {
		throw("BroadcastTo", "cannot broadcast %v to fewer dimensions %v", a.shape, shape)
	}
	off := len(shape) - len(a.shape)
	for i, d := range a.shape {
		if d != 1 && d != shape[off+i] {
			throw("BroadcastTo", "cannot broadcast %v to %v", a.shape, shape)
		}
	}

	strides := broadcastStrides(a.shape, shape)
	src := make([]int, 0, numel(shape))
	forEachIndex(shape, func(idx []int) {
		j := 0
		for d, v := range idx {
			j += v * strides[d]
		}
		src = append(src, j)
	})
	return a.gather(a.dtype, shape, src)
}

// Transpose materializes the permuted layout through tensor.Dense.
func (a *Array) Transpose(perm ...int) ml.Array {
	n := len(a.shape)
	if len(perm) == 0 {
		for i := n - 1; i >= 0; i-- {
			perm = append(perm, i)
		}
	}
	if len(perm) != n {
		throw("Transpose", "permutation %v does not match %d dimensions", perm, n)
	}

	seen := make([]bool, n)
	identity := true
	shape := make([]int, n)
	for i, p := range perm {
		if p < 0 || p >= n || seen[p] {
			throw("Transpose", "invalid permutation %v", perm)
		}
		seen[p] = true
		identity = identity && p == i
		shape[i] = a.shape[p]
	}

	if identity || len(a.data) <= 1 {
		out := a.dev.newArray(a.dtype, shape, slices.Clone(a.data))
		out.ints = slices.Clone(a.ints)
		return out
	}

	if a.ints != nil {
		return a.dev.newIntArray(a.dtype, shape, permute(a.shape, perm, slices.Clone(a.ints)))
	}
	return a.dev.newArray(a.dtype, shape, permute(a.shape, perm, slices.Clone(a.data)))
}

// permute transposes a row-major backing through a tensor.Dense of the same
// element type (tensor.Float64 or tensor.Int64).
func permute[T float64 | int64](shape, perm []int, backing []T) []T {
	t := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
	if err := t.T(perm...); err != nil {
		throw("Transpose", "%v", err)
	}
	if err := t.Transpose(); err != nil {
		throw("Transpose", "%v", err)
	}
	return t.Data().([]T)
}

// resolve converts a Range into start, step and element count along an axis of length n.
func resolve(r ml.Range, n int) (start, step, count int) {
	if r.Full {
		return 0, 1, n
	}
	step = r.Step
	if step == 0 {
		step = 1
	}

	norm := func(x, lo, hi int) int {
		if x < 0 {
			x += n
		}
		return min(max(x, lo), hi)
	}

	if step > 0 {
		start, stop := norm(r.Start, 0, n), norm(r.Stop, 0, n)
		return start, step, max(0, (stop-start+step-1)/step)
	}
	start, stop := norm(r.Start, -1, n-1), norm(r.Stop, -1, n-1)
	return start, step, max(0, (start-stop-step-1)/(-step))
}

// region resolves ranges (missing trailing ranges select whole axes).
func (a *Array) region(op string, ranges []ml.Range) (starts, steps, shape []int) {
	if len(ranges) > len(a.shape) {
		throw(op, "%d ranges for %d dimensions", len(ranges), len(a.shape))
	}
	for i, n := range a.shape {
		r := ml.All()
		if i < len(ranges) {
			r = ranges[i]
		}
		start, step, count := resolve(r, n)
		starts = append(starts, start)
		steps = append(steps, step)
		shape = append(shape, count)
	}
	return starts, steps, shape
}

func (a *Array) Slice(ranges ...ml.Range) ml.Array {
	starts, steps, shape := a.region("Slice", ranges)
	strides := stridesOf(a.shape)
	src := make([]int, 0, numel(shape))
	forEachIndex(shape, func(idx []int) {
		j := 0
		for d, v := range idx {
			j += (starts[d] + v*steps[d]) * strides[d]
		}
		src = append(src, j)
	})
	return a.gather(a.dtype, shape, src)
}

func (a *Array) SetSlice(t ml.Array, ranges ...ml.Range) ml.Array {
	src := asArray("SetSlice", t)
	a.sameDevice("SetSlice", src)
	starts, steps, shape := a.region("SetSlice", ranges)
	if !slices.Equal(broadcastShapes("SetSlice", src.shape, shape), shape) {
		throw("SetSlice", "source %v does not fit region %v", src.shape, shape)
	}

	strides := stridesOf(a.shape)
	srcStrides := broadcastStrides(src.shape, shape)
	write := func(set func(dst, s int)) {
		forEachIndex(shape, func(idx []int) {
			dst, s := 0, 0
			for d, v := range idx {
				dst += (starts[d] + v*steps[d]) * strides[d]
				s += v * srcStrides[d]
			}
			set(dst, s)
		})
	}

	if a.dtype.IsInt() {
		out, vals := slices.Clone(a.exact()), src.exact()
		write(func(dst, s int) { out[dst] = wrapInt(a.dtype, vals[s]) })
		return a.dev.newIntArray(a.dtype, a.shape, out)
	}
	out := slices.Clone(a.data)
	write(func(dst, s int) { out[dst] = convert(a.dtype, src.data[s]) })
	return a.dev.newArray(a.dtype, a.shape, out)
}

func (a *Array) takeShape(op string, ind *Array, axis int) (int, []int) {
	axis = normalizeAxis(op, axis, len(a.shape))
	var shape []int
	shape = append(shape, a.shape[:axis]...)
	shape = append(shape, ind.shape...)
	shape = append(shape, a.shape[axis+1:]...)
	return axis, shape
}

func (a *Array) index(op string, v float64, n int) int {
	i := int(v)
	if i < -n || i >= n {
		throw(op, "index %d out of range for axis of length %d", i, n)
	}
	if i < 0 {
		i += n
	}
	return i
}

// Take gathers along axis like numpy.take; negative indices count from the end.
func (a *Array) Take(t ml.Array, axis int) ml.Array {
	ind := asArray("Take", t)
	axis, shape := a.takeShape("Take", ind, axis)
	outer, n, inner := a.splitAt(axis)
	src := make([]int, 0, numel(shape))
	for o := range outer {
		for _, v := range ind.data {
			k := a.index("Take", v, n)
			for in := range inner {
				src = append(src, (o*n+k)*inner+in)
			}
		}
	}
	return a.gather(a.dtype, shape, src)
}

func (a *Array) AddAt(t ml.Array, axis int, s ml.Array) ml.Array {
	ind, src := asArray("AddAt", t), asArray("AddAt", s)
	a.sameDevice("AddAt", src)
	axis, shape := a.takeShape("AddAt", ind, axis)
	if !slices.Equal(src.shape, shape) {
		throw("AddAt", "source shape %v, want %v", src.shape, shape)
	}
	outer, n, inner := a.splitAt(axis)
	m := len(ind.data)

	out := slices.Clone(a.data)
	for o := range outer {
		for j, v := range ind.data {
			k := a.index("AddAt", v, n)
			for in := range inner {
				dst := (o*n+k)*inner + in
				out[dst] = convert(a.dtype, out[dst]+src.data[(o*m+j)*inner+in])
			}
		}
	}
	return a.dev.newArray(a.dtype, a.shape, out)
}

func (a *Array) Concat(axis int, others ...ml.Array) ml.Array {
	arrays := []*Array{a}
	dtype := a.dtype
	for _, t := range others {
		b := asArray("Concat", t)
		a.sameDevice("Concat", b)
		if len(b.shape) != len(a.shape) {
			throw("Concat", "rank mismatch %v and %v", a.shape, b.shape)
		}
		dtype = promote(dtype, b.dtype)
		arrays = append(arrays, b)
	}
	axis = normalizeAxis("Concat", axis, len(a.shape))

	shape := slices.Clone(a.shape)
	shape[axis] = 0
	for _, b := range arrays {
		for d := range b.shape {
			if d != axis && b.shape[d] != a.shape[d] {
				throw("Concat", "shape mismatch %v and %v on axis %d", a.shape, b.shape, d)
			}
		}
		shape[axis] += b.shape[axis]
	}

	outer := numel(a.shape[:axis])
	if dtype.IsInt() {
		vals := make([][]int64, len(arrays))
		for i, b := range arrays {
			vals[i] = b.exact()
		}
		out := make([]int64, 0, numel(shape))
		for o := range outer {
			for i, b := range arrays {
				block := b.shape[axis] * numel(b.shape[axis+1:])
				for _, v := range vals[i][o*block : (o+1)*block] {
					out = append(out, wrapInt(dtype, v))
				}
			}
		}
		return a.dev.newIntArray(dtype, shape, out)
	}

	out := make([]float64, 0, numel(shape))
	for o := range outer {
		for _, b := range arrays {
			block := b.shape[axis] * numel(b.shape[axis+1:])
			for _, v := range b.data[o*block : (o+1)*block] {
				out = append(out, convert(dtype, v))
			}
		}
	}
	return a.dev.newArray(dtype, shape, out)
}

func (a *Array) Split(axis int, lens ...int) []ml.Array {
	axis = normalizeAxis("Split", axis, len(a.shape))
	total := 0
	for _, l := range lens {
		if l < 0 {
			throw("Split", "negative length in %v", lens)
		}
		total += l
	}
	if total != a.shape[axis] {
		throw("Split", "lengths %v do not sum to %d", lens, a.shape[axis])
	}

	var parts []ml.Array
	ranges := make([]ml.Range, axis+1)
	for i := range axis {
		ranges[i] = ml.All()
	}
	start := 0
	for _, l := range lens {
		ranges[axis] = ml.Span(start, start+l)
		parts = append(parts, a.Slice(ranges...))
		start += l
	}
	return parts
}
