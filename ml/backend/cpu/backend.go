// backend.go - Backend-Struktur und Geraete des nativen CPU-Backends
// Enthält: Backend struct, init(), New(), Device und Erzeugungs-Funktionen

package cpu

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ollama/xcvm/ml"
)

// Name is the name the backend registers under.
const Name = "native"

func init() {
	ml.RegisterBackend(Name, New)
}

// Backend is a pure Go array library. Every device lives in host memory;
// devices exist so cross-device contracts behave as on real accelerators.
type Backend struct {
	devices []*Device
	def     *Device
}

// New erstellt ein Backend mit params.NumDevices Geraeten (mindestens eines)
func New(params ml.BackendParams) (ml.Backend, error) {
	n := params.NumDevices
	if n <= 0 {
		n = 1
	}

	b := &Backend{}
	for i := range n {
		b.devices = append(b.devices, &Device{backend: b, index: i})
	}
	b.def = b.devices[0]

	if params.DefaultDevice != "" {
		d, err := b.lookup(params.DefaultDevice)
		if err != nil {
			return nil, err
		}
		b.def = d
	}

	slog.Debug("native backend", "devices", n, "default", b.def.Name())
	return b, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Close() {}

func (b *Backend) Devices() []ml.Device {
	devices := make([]ml.Device, len(b.devices))
	for i, d := range b.devices {
		devices[i] = d
	}
	return devices
}

func (b *Backend) Device(name string) (ml.Device, error) {
	return b.lookup(name)
}

func (b *Backend) lookup(name string) (*Device, error) {
	backend, idx, ok := strings.Cut(name, ":")
	if !ok {
		backend, idx = Name, name
	}
	if backend != Name {
		return nil, fmt.Errorf("device %q does not belong to backend %s", name, Name)
	}
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 || i >= len(b.devices) {
		return nil, fmt.Errorf("unknown device %q (%d devices)", name, len(b.devices))
	}
	return b.devices[i], nil
}

// HostDevice ist immer native:0
func (b *Backend) HostDevice() ml.Device { return b.devices[0] }

func (b *Backend) DefaultDevice() ml.Device { return b.def }

// Device is one native device.
type Device struct {
	backend *Backend
	index   int
}

func (d *Device) Name() string { return Name + ":" + strconv.Itoa(d.index) }

func (d *Device) Index() int { return d.index }

func (d *Device) IsHost() bool { return d.index == 0 }

func (d *Device) String() string { return d.Name() }

// =============================================================================
// Erzeugung
// =============================================================================

func (d *Device) Zeros(dtype ml.DType, shape ...int) ml.Array {
	return d.Full(dtype, 0, shape...)
}

func (d *Device) Full(dtype ml.DType, value float64, shape ...int) ml.Array {
	checkDType("Full", dtype)
	checkShape("Full", shape)
	data := make([]float64, numel(shape))
	if v := convert(dtype, value); v != 0 {
		for i := range data {
			data[i] = v
		}
	}
	return d.newArray(dtype, shape, data)
}

func (d *Device) FromFloats(dtype ml.DType, data []float64, shape ...int) ml.Array {
	checkDType("FromFloats", dtype)
	checkShape("FromFloats", shape)
	if len(data) != numel(shape) {
		throw("FromFloats", "%d values do not fill shape %v", len(data), shape)
	}
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = convert(dtype, v)
	}
	return d.newArray(dtype, shape, out)
}

func (d *Device) FromInts(dtype ml.DType, data []int64, shape ...int) ml.Array {
	checkDType("FromInts", dtype)
	checkShape("FromInts", shape)
	if len(data) != numel(shape) {
		throw("FromInts", "%d values do not fill shape %v", len(data), shape)
	}
	if dtype.IsInt() {
		out := make([]int64, len(data))
		for i, v := range data {
			out[i] = wrapInt(dtype, v)
		}
		return d.newIntArray(dtype, shape, out)
	}
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = convert(dtype, float64(v))
	}
	return d.newArray(dtype, shape, out)
}

func (d *Device) Arange(start, stop, step int64) ml.Array {
	if step == 0 {
		throw("Arange", "step must not be zero")
	}
	ints := []int64{}
	for v := start; (step > 0 && v < stop) || (step < 0 && v > stop); v += step {
		ints = append(ints, v)
	}
	return d.newIntArray(ml.DTypeInt64, []int{len(ints)}, ints)
}

func (d *Device) Eye(n int, dtype ml.DType) ml.Array {
	checkDType("Eye", dtype)
	data := make([]float64, n*n)
	for i := range n {
		data[i*n+i] = 1
	}
	return d.newArray(dtype, []int{n, n}, data)
}

func (d *Device) newArray(dtype ml.DType, shape []int, data []float64) *Array {
	return &Array{dev: d, dtype: dtype, shape: append([]int{}, shape...), data: data}
}

// newIntArray keeps ints as the exact lane of an integer array.
func (d *Device) newIntArray(dtype ml.DType, shape []int, ints []int64) *Array {
	data := make([]float64, len(ints))
	for i, v := range ints {
		data[i] = float64(v)
	}
	a := d.newArray(dtype, shape, data)
	a.ints = ints
	return a
}
