package cpu

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/xcvm/ml"
)

func setup(t *testing.T) (*Backend, ml.Device) {
	t.Helper()
	b, err := New(ml.BackendParams{NumDevices: 2})
	require.NoError(t, err)
	return b.(*Backend), b.DefaultDevice()
}

func floats(dev ml.Device, shape []int, data ...float64) ml.Array {
	return dev.FromFloats(ml.DTypeFloat32, data, shape...)
}

func TestBackendDevices(t *testing.T) {
	b, def := setup(t)
	assert.Equal(t, "native:0", def.Name())
	assert.True(t, b.HostDevice().IsHost())
	assert.Len(t, b.Devices(), 2)

	d, err := b.Device("native:1")
	require.NoError(t, err)
	assert.False(t, d.IsHost())

	d, err = b.Device("1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Index())

	for _, name := range []string{"native:2", "cuda:0", "x"} {
		_, err := b.Device(name)
		assert.Error(t, err, name)
	}

	_, err = New(ml.BackendParams{NumDevices: 1, DefaultDevice: "native:3"})
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, ml.Backends(), Name)
	b, err := ml.NewBackend(Name, ml.BackendParams{DefaultDevice: "native:0"})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, Name, b.Name())
}

func TestConvertRounding(t *testing.T) {
	cases := []struct {
		dtype ml.DType
		in    float64
		want  float64
	}{
		{ml.DTypeInt64, 2.7, 2},
		{ml.DTypeInt64, -2.7, -2},
		{ml.DTypeInt8, 130, -126},
		{ml.DTypeUint8, 256, 0},
		{ml.DTypeBool, -3, 1},
		{ml.DTypeFloat16, 1.0 / 3, float64(float32(0.333251953125))},
		{ml.DTypeInt32, math.NaN(), 0},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, convert(tt.dtype, tt.in), "%s(%v)", tt.dtype, tt.in)
	}
	assert.Equal(t, float64(float32(0.1)), convert(ml.DTypeFloat32, 0.1))
}

func TestBroadcastArithmetic(t *testing.T) {
	_, dev := setup(t)
	a := floats(dev, []int{2, 3}, 1, 2, 3, 4, 5, 6)
	b := floats(dev, []int{3}, 10, 20, 30)

	got := a.Add(b)
	assert.Equal(t, []int{2, 3}, got.Shape())
	assert.Equal(t, []float64{11, 22, 33, 14, 25, 36}, got.Floats())

	col := floats(dev, []int{2, 1}, 1, 2)
	assert.Equal(t, []float64{0, 1, 2, 2, 3, 4}, a.Sub(col).Floats())

	assert.Panics(t, func() { a.Add(floats(dev, []int{2}, 1, 2)) })
}

func TestDTypePromotion(t *testing.T) {
	_, dev := setup(t)
	i := dev.FromInts(ml.DTypeInt64, []int64{1, 2}, 2)
	f := floats(dev, []int{2}, 0.5, 0.5)
	assert.Equal(t, ml.DTypeFloat32, i.Add(f).DType())
	assert.Equal(t, ml.DTypeBool, i.Greater(f).DType())

	q := i.Div(dev.FromInts(ml.DTypeInt64, []int64{2, 2}, 2))
	assert.Equal(t, []int64{0, 1}, q.Ints())
}

func TestCrossDevicePanics(t *testing.T) {
	b, dev := setup(t)
	other, err := b.Device("native:1")
	require.NoError(t, err)

	x := floats(dev, []int{1}, 1)
	y := floats(other, []int{1}, 2)
	assert.PanicsWithError(t, "Add: arrays on different devices (native:0, native:1)", func() { x.Add(y) })
	assert.Equal(t, []float64{3}, x.Add(y.ToDevice(dev)).Floats())
}

func TestReductions(t *testing.T) {
	_, dev := setup(t)
	x := floats(dev, []int{2, 3}, 1, 5, 3, 4, 2, 6)

	assert.Equal(t, []float64{21}, x.Sum(nil, false).Floats())
	assert.Equal(t, []int{1, 3}, x.Sum([]int{0}, true).Shape())
	assert.Equal(t, []float64{5, 7, 9}, x.Sum([]int{0}, false).Floats())
	assert.Equal(t, []float64{5, 6}, x.Max([]int{-1}, false).Floats())
	assert.Equal(t, []float64{3, 4}, x.Mean([]int{1}, false).Floats())
	assert.Equal(t, []int64{1, 2}, x.ArgMax(1).Ints())
	assert.Equal(t, ml.DTypeInt64, x.ArgMax(1).DType())

	assert.Panics(t, func() { x.Sum([]int{0, 0}, false) })
	assert.Panics(t, func() { x.Sum([]int{2}, false) })

	ls := x.LogSoftmax(1).Floats()
	var s float64
	for _, v := range ls[:3] {
		s += math.Exp(v)
	}
	assert.InDelta(t, 1, s, 1e-6)
}

func TestReshapeTranspose(t *testing.T) {
	_, dev := setup(t)
	x := floats(dev, []int{2, 3}, 1, 2, 3, 4, 5, 6)

	assert.Panics(t, func() { x.Reshape(4) })
	assert.Equal(t, []int{3, 2}, x.Reshape(3, 2).Shape())

	xt := x.Transpose()
	assert.Equal(t, []int{3, 2}, xt.Shape())
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, xt.Floats())

	y := dev.Arange(0, 24, 1).Reshape(2, 3, 4)
	yt := y.Transpose(1, 2, 0)
	assert.Equal(t, []int{3, 4, 2}, yt.Shape())
	assert.Equal(t, []int64{0, 12, 1, 13}, yt.Ints()[:4])
	assert.Panics(t, func() { y.Transpose(0, 0, 1) })
}

func TestSlicing(t *testing.T) {
	_, dev := setup(t)
	x := dev.Arange(0, 10, 1)

	cases := []struct {
		r    ml.Range
		want []int64
	}{
		{ml.Span(2, 5), []int64{2, 3, 4}},
		{ml.Span(-3, 100), []int64{7, 8, 9}},
		{ml.Range{Start: 0, Stop: 10, Step: 3}, []int64{0, 3, 6, 9}},
		{ml.Range{Start: -1, Stop: -11, Step: -4}, []int64{9, 5, 1}},
		{ml.Span(5, 2), nil},
	}
	for _, tt := range cases {
		got := x.Slice(tt.r).Ints()
		if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("Slice(%+v) mismatch (-want +got):\n%s", tt.r, diff)
		}
	}

	m := dev.Arange(0, 6, 1).Reshape(2, 3)
	set := m.SetSlice(dev.Zeros(ml.DTypeInt64, 2, 1), ml.All(), ml.Span(1, 2))
	assert.Equal(t, []int64{0, 0, 2, 3, 0, 5}, set.Ints())
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, m.Ints(), "SetSlice darf die Quelle nicht veraendern")
}

func TestTakeAddAt(t *testing.T) {
	_, dev := setup(t)
	x := dev.Arange(0, 6, 1).Reshape(3, 2)
	idx := dev.FromInts(ml.DTypeInt64, []int64{2, -3}, 2)

	got := x.Take(idx, 0)
	assert.Equal(t, []int{2, 2}, got.Shape())
	assert.Equal(t, []int64{4, 5, 0, 1}, got.Ints())

	acc := dev.Zeros(ml.DTypeInt64, 3).AddAt(dev.FromInts(ml.DTypeInt64, []int64{1, 1, 0}, 3), 0, dev.FromInts(ml.DTypeInt64, []int64{5, 6, 7}, 3))
	assert.Equal(t, []int64{7, 11, 0}, acc.Ints())

	assert.Panics(t, func() { x.Take(dev.FromInts(ml.DTypeInt64, []int64{3}, 1), 0) })
}

func TestConcatSplit(t *testing.T) {
	_, dev := setup(t)
	x := dev.Arange(0, 12, 1).Reshape(2, 6)
	parts := x.Split(1, 1, 2, 3)
	require.Len(t, parts, 3)
	assert.Equal(t, []int{2, 2}, parts[1].Shape())
	assert.Equal(t, []int64{1, 2, 7, 8}, parts[1].Ints())

	back := parts[0].Concat(1, parts[1:]...)
	assert.Equal(t, x.Shape(), back.Shape())
	assert.Equal(t, x.Ints(), back.Ints())

	assert.Panics(t, func() { x.Split(1, 4, 4) })
}

func TestDot(t *testing.T) {
	_, dev := setup(t)
	a := floats(dev, []int{2, 3}, 1, 2, 3, 4, 5, 6)
	b := floats(dev, []int{3, 2}, 7, 8, 9, 10, 11, 12)

	c := a.Dot(b)
	assert.Equal(t, []int{2, 2}, c.Shape())
	assert.Equal(t, []float64{58, 64, 139, 154}, c.Floats())

	v := floats(dev, []int{3}, 1, 1, 1)
	assert.Equal(t, []float64{6, 15}, a.Dot(v).Floats())
	assert.Equal(t, []int{}, v.Dot(v).Shape())

	assert.Panics(t, func() { a.Dot(a) })
}

func TestConv(t *testing.T) {
	_, dev := setup(t)
	x := floats(dev, []int{1, 1, 3, 3}, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	w := floats(dev, []int{1, 1, 2, 2}, 1, 0, 0, 1)
	b := floats(dev, []int{1}, 1)

	y := x.Conv(w, b, nil, nil)
	assert.Equal(t, []int{1, 1, 2, 2}, y.Shape())
	assert.Equal(t, []float64{7, 9, 13, 15}, y.Floats())

	padded := x.Conv(w, nil, []int{2, 2}, []int{1, 1})
	assert.Equal(t, []int{1, 1, 2, 2}, padded.Shape())
	assert.Equal(t, []float64{1, 3, 7, 14}, padded.Floats())

	// ConvTranspose mit Einheitsgewicht verteilt jeden Eingangswert
	one := floats(dev, []int{1, 1, 1, 1}, 1)
	up := floats(dev, []int{1, 1, 2, 2}, 1, 2, 3, 4).ConvTranspose(one, nil, []int{2, 2}, nil, nil)
	assert.Equal(t, []int{1, 1, 3, 3}, up.Shape())
	assert.Equal(t, []float64{1, 0, 2, 0, 0, 0, 3, 0, 4}, up.Floats())

	gy := dev.Full(ml.DTypeFloat32, 1, 1, 1, 2, 2)
	gw := x.ConvGradWeight([]int{1, 1, 2, 2}, ml.DTypeFloat32, gy, nil, nil)
	assert.Equal(t, []float64{12, 16, 24, 28}, gw.Floats())
}

func TestAsScalar(t *testing.T) {
	_, dev := setup(t)
	assert.Equal(t, 3.0, dev.Full(ml.DTypeFloat32, 3).AsScalar())
	assert.Panics(t, func() { dev.Zeros(ml.DTypeFloat32, 2).AsScalar() })
}

func TestIntLane(t *testing.T) {
	b, dev := setup(t)
	const big = int64(1)<<53 + 1

	x := dev.FromInts(ml.DTypeInt64, []int64{big, -big, math.MaxInt64, 4}, 2, 2)
	assert.Equal(t, []int64{big, -big, math.MaxInt64, 4}, x.Ints())

	// Datenbewegung erhaelt die exakten Werte
	assert.Equal(t, []int64{big, math.MaxInt64, -big, 4}, x.Transpose().Ints())
	assert.Equal(t, []int64{-big, 4}, x.Slice(ml.Span(0, 2), ml.Span(1, 2)).Reshape(2).Ints())
	assert.Equal(t, []int64{math.MaxInt64, 4, big, -big}, x.Take(dev.FromInts(ml.DTypeInt64, []int64{1, 0}, 2), 0).Ints())
	assert.Equal(t, []int64{big, -big, big, -big}, x.Slice(ml.Span(0, 1)).BroadcastTo(2, 2).Ints())
	assert.Equal(t, []int64{big, -big, math.MaxInt64, 4, big, -big, math.MaxInt64, 4}, x.Concat(0, x).Ints())
	assert.Equal(t, []int64{big, -big, 7, 4}, x.SetSlice(dev.FromInts(ml.DTypeInt32, []int64{7}), ml.Span(1, 2), ml.Span(0, 1)).Ints())
	assert.Equal(t, []int64{big}, x.ToDevice(b.Devices()[1]).Slice(ml.Span(0, 1), ml.Span(0, 1)).Ints())

	// Casts zwischen Ganzzahlen schneiden auf die Breite ab
	assert.Equal(t, []int64{1, -1, -1, 4}, x.AsType(ml.DTypeInt32).Ints())
	assert.Equal(t, []int64{1, 255, 255, 4}, x.AsType(ml.DTypeUint8).Ints())
	assert.Equal(t, []int64{big}, dev.FromInts(ml.DTypeInt64, []int64{big}).AsType(ml.DTypeInt64).Ints())

	// Float nach Int saettigt statt ueberzulaufen
	f := dev.FromFloats(ml.DTypeFloat64, []float64{math.Inf(1), math.Inf(-1), math.NaN(), -2.5}, 4)
	assert.Equal(t, []int64{math.MaxInt64, math.MinInt64, 0, -2}, f.AsType(ml.DTypeInt64).Ints())
}
