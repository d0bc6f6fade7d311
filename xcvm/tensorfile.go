// tensorfile.go - Host-Tensoren fuer CLI-Dateien und HTTP-Bodies
// Enthält: Tensor (dtype/shape/data), Umwandlung von und zu Registerwerten, LoadTensor, ReadTensorFile
package xcvm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ollama/xcvm/ml"
)

// Tensor is a host-side array literal. YAML and JSON share the layout:
//
//	dtype: float32
//	shape: [2, 3]
//	data: [1, 2, 3, 4, 5, 6]
type Tensor struct {
	DType ml.DType  `json:"dtype" yaml:"dtype"`
	Shape []int     `json:"shape" yaml:"shape,flow"`
	Data  []float64 `json:"data" yaml:"data,flow"`
}

// Array copies the tensor onto dev.
func (t Tensor) Array(dev ml.Device) (ml.Array, error) {
	if !t.DType.Valid() {
		return nil, fmt.Errorf("tensor: invalid dtype %d", int32(t.DType))
	}
	n := 1
	for _, d := range t.Shape {
		if d < 0 {
			return nil, fmt.Errorf("tensor: negative dimension in %v", t.Shape)
		}
		n *= d
	}
	if n != len(t.Data) {
		return nil, fmt.Errorf("tensor: %d values for shape %v", len(t.Data), t.Shape)
	}
	return dev.FromFloats(t.DType, t.Data, t.Shape...), nil
}

// Value wraps the tensor as an array register value on dev.
func (t Tensor) Value(dev ml.Device) (Value, error) {
	a, err := t.Array(dev)
	if err != nil {
		return nil, err
	}
	return ArrayValue{a}, nil
}

// TensorOf copies a to the host.
func TensorOf(a ml.Array) Tensor {
	return Tensor{DType: a.DType(), Shape: a.Shape(), Data: a.Floats()}
}

// OutputTensor converts an output value. Absent optionals yield nil.
func OutputTensor(v Value) (*Tensor, error) {
	switch v := v.(type) {
	case ArrayValue:
		t := TensorOf(v.Array)
		return &t, nil
	case OptionalArrayValue:
		if !v.Present() {
			return nil, nil
		}
		t := TensorOf(v.Array)
		return &t, nil
	}
	return nil, fmt.Errorf("output of kind %s has no tensor form", v.Kind())
}

// LoadTensor reads a YAML or JSON tensor file without placing it on a device.
func LoadTensor(path string) (Tensor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Tensor{}, err
	}

	var t Tensor
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Tensor{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadTensorFile reads a YAML or JSON tensor file onto dev.
func ReadTensorFile(path string, dev ml.Device) (Value, error) {
	t, err := LoadTensor(path)
	if err != nil {
		return nil, err
	}
	v, err := t.Value(dev)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
