// array.go - Array- und Device-Interfaces fuer die Tensor-Bibliothek
// Dieses Modul definiert den Vertrag, den die VM von einer Array-Bibliothek
// verlangt: Shape/Dtype-Introspektion, Arithmetik, Reshape/Slice/Broadcast
// und Extraktion von Geraete-Skalaren.
package ml

// Range selects [Start, Stop) with Step along one axis. Negative Start/Stop
// count from the end of the axis and out-of-range bounds are clamped, as
// python slicing does.
type Range struct {
	Start, Stop, Step int
	Full              bool
}

// All selects the whole axis.
func All() Range {
	return Range{Full: true}
}

// Span selects [start, stop) with step 1.
func Span(start, stop int) Range {
	return Range{Start: start, Stop: stop, Step: 1}
}

// Device creates arrays placed on one compute device.
type Device interface {
	// Name is the backend-qualified device name, e.g. "native:0"
	Name() string
	Index() int

	// IsHost reports whether arrays on this device live in host memory
	IsHost() bool

	Zeros(dtype DType, shape ...int) Array
	Full(dtype DType, value float64, shape ...int) Array

	// FromFloats and FromInts copy data into a new array of the given dtype,
	// converting each element.
	FromFloats(dtype DType, data []float64, shape ...int) Array
	FromInts(dtype DType, data []int64, shape ...int) Array

	// Arange creates a 1D int64 array with values in [start, stop) increased by step.
	Arange(start, stop, step int64) Array
	Eye(n int, dtype DType) Array
}

// Array is an n-dimensional array owned by a Device. Arrays are immutable;
// every operation returns a new array. Operations panic with *Error when
// their shape, dtype or device contract is violated.
type Array interface {
	Shape() []int
	NDim() int
	Size() int
	DType() DType
	Device() Device

	// Bytes is the storage size of the array in its dtype
	Bytes() int

	// Floats and Ints return a host copy of the elements in row-major order.
	Floats() []float64
	Ints() []int64

	// AsScalar extracts the single element of a one-element array.
	AsScalar() float64

	AsType(dtype DType) Array
	ToDevice(d Device) Array

	Add(b Array) Array
	Sub(b Array) Array
	Mul(b Array) Array
	Div(b Array) Array

	AddScalar(s float64) Array
	MulScalar(s float64) Array
	DivScalar(s float64) Array
	MaximumScalar(s float64) Array

	Neg() Array
	Reciprocal() Array
	Exp() Array
	Log() Array
	Sqrt() Array

	Equal(b Array) Array
	NotEqual(b Array) Array
	Greater(b Array) Array
	Less(b Array) Array
	LogicalNot() Array

	// Reductions; nil axes reduce over every axis.
	Sum(axes []int, keepDims bool) Array
	Max(axes []int, keepDims bool) Array
	Mean(axes []int, keepDims bool) Array
	ArgMax(axis int) Array
	LogSoftmax(axis int) Array

	Reshape(shape ...int) Array
	BroadcastTo(shape ...int) Array
	// Transpose permutes the axes; an empty perm reverses them.
	Transpose(perm ...int) Array
	Slice(ranges ...Range) Array
	// SetSlice returns a copy of the array with src written into the selected region.
	SetSlice(src Array, ranges ...Range) Array
	Take(indices Array, axis int) Array
	// AddAt returns a copy with src accumulated at indices along axis.
	AddAt(indices Array, axis int, src Array) Array
	Concat(axis int, others ...Array) Array
	Split(axis int, lens ...int) []Array

	Dot(b Array) Array
	Conv(w, b Array, strides, pads []int) Array
	ConvTranspose(w, b Array, strides, pads, outSize []int) Array
	ConvGradWeight(wShape []int, wDType DType, gy Array, strides, pads []int) Array
}

// Error reports a violated array contract.
type Error struct {
	Op  string
	Msg string
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Msg
}
