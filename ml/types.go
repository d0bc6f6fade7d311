// types.go - Datentypen fuer Array-Elemente
// Dieses Modul definiert DType mit der Nummerierung des Graph-Austauschformats
// (ONNX TensorProto.DataType), damit Instruktionen Dtypes direkt als int32 tragen.
package ml

import (
	"fmt"
	"strings"
)

// DType represents the data type of array elements.
type DType int32

const (
	DTypeUndefined DType = 0
	DTypeFloat32   DType = 1
	DTypeUint8     DType = 2
	DTypeInt8      DType = 3
	DTypeInt16     DType = 5
	DTypeInt32     DType = 6
	DTypeInt64     DType = 7
	DTypeBool      DType = 9
	DTypeFloat16   DType = 10
	DTypeFloat64   DType = 11
	DTypeBfloat16  DType = 16
)

var dtypeNames = map[DType]string{
	DTypeFloat32:  "float32",
	DTypeUint8:    "uint8",
	DTypeInt8:     "int8",
	DTypeInt16:    "int16",
	DTypeInt32:    "int32",
	DTypeInt64:    "int64",
	DTypeBool:     "bool",
	DTypeFloat16:  "float16",
	DTypeFloat64:  "float64",
	DTypeBfloat16: "bfloat16",
}

func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("dtype(%d)", int32(d))
}

// Valid meldet ob der Dtype von Arrays getragen werden kann
func (d DType) Valid() bool {
	_, ok := dtypeNames[d]
	return ok
}

// IsFloat meldet Gleitkomma-Dtypes
func (d DType) IsFloat() bool {
	switch d {
	case DTypeFloat16, DTypeBfloat16, DTypeFloat32, DTypeFloat64:
		return true
	}
	return false
}

// IsInt meldet Ganzzahl-Dtypes (ohne bool)
func (d DType) IsInt() bool {
	switch d {
	case DTypeUint8, DTypeInt8, DTypeInt16, DTypeInt32, DTypeInt64:
		return true
	}
	return false
}

// Size gibt die Elementgroesse in Bytes zurueck
func (d DType) Size() int {
	switch d {
	case DTypeBool, DTypeUint8, DTypeInt8:
		return 1
	case DTypeInt16, DTypeFloat16, DTypeBfloat16:
		return 2
	case DTypeInt32, DTypeFloat32:
		return 4
	case DTypeInt64, DTypeFloat64:
		return 8
	}
	return 0
}

// ParseDType akzeptiert sowohl Namen ("float32", "f32") als auch Zahlen
func ParseDType(s string) (DType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "f32", "float":
		return DTypeFloat32, nil
	case "f64", "double":
		return DTypeFloat64, nil
	case "f16", "half":
		return DTypeFloat16, nil
	case "bf16":
		return DTypeBfloat16, nil
	case "i32", "int":
		return DTypeInt32, nil
	case "i64", "long":
		return DTypeInt64, nil
	}
	for d, name := range dtypeNames {
		if name == s {
			return d, nil
		}
	}
	var n int32
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && DType(n).Valid() {
		return DType(n), nil
	}
	return DTypeUndefined, fmt.Errorf("unknown dtype %q", s)
}

// MarshalText implementiert encoding.TextMarshaler (YAML/JSON Tensor-Dateien)
func (d DType) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid dtype %d", int32(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implementiert encoding.TextUnmarshaler
func (d *DType) UnmarshalText(b []byte) error {
	v, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
