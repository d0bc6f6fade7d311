// ops_const.go - Konstanten
// Enthält: Skalar- und Array-Konstanten mit Host-Flag, NullConstant
package xcvm

import (
	"fmt"

	"github.com/ollama/xcvm/ml"
)

// constDevice selects the host device when host is set.
func constDevice(st *State, host int64) ml.Device {
	if host != 0 {
		return st.HostDevice()
	}
	return st.Device()
}

func constDType(v int64) (ml.DType, error) {
	if d := ml.DType(v); d.Valid() {
		return d, nil
	}
	return ml.DTypeUndefined, fmt.Errorf("unknown dtype %d", v)
}

// runIntScalarConstant builds the scalar as int64 and casts it to dtype.
func runIntScalarConstant(st *State, in *args) ([]Value, error) {
	dtype, err := constDType(in.Int(1))
	if err != nil {
		return nil, err
	}
	a := constDevice(st, in.Int(2)).FromInts(ml.DTypeInt64, []int64{in.Int(0)})
	return result(a.AsType(dtype), nil)
}

func runFloatScalarConstant(st *State, in *args) ([]Value, error) {
	dtype, err := constDType(in.Int(1))
	if err != nil {
		return nil, err
	}
	return result(constDevice(st, in.Int(2)).Full(dtype, in.Float(0)), nil)
}

// runIntConstant builds the array as int64 and casts it to dtype.
func runIntConstant(st *State, in *args) ([]Value, error) {
	dtype, err := constDType(in.Int(1))
	if err != nil {
		return nil, err
	}
	shape := in.Axes(2)
	if n := product(shape); n != len(in.Ints(0)) {
		return nil, fmt.Errorf("IntConstant: %d values for shape %v", len(in.Ints(0)), shape)
	}
	a := constDevice(st, in.Int(3)).FromInts(ml.DTypeInt64, in.Ints(0), shape...)
	return result(a.AsType(dtype), nil)
}

// runFloatConstant builds the array as float64 and casts it to dtype.
func runFloatConstant(st *State, in *args) ([]Value, error) {
	dtype, err := constDType(in.Int(1))
	if err != nil {
		return nil, err
	}
	shape := in.Axes(2)
	if n := product(shape); n != len(in.Floats(0)) {
		return nil, fmt.Errorf("FloatConstant: %d values for shape %v", len(in.Floats(0)), shape)
	}
	a := constDevice(st, in.Int(3)).FromFloats(ml.DTypeFloat64, in.Floats(0), shape...)
	return result(a.AsType(dtype), nil)
}

func runNullConstant(*State, *args) ([]Value, error) {
	return []Value{OptionalArrayValue{}}, nil
}
