// ops_math.go - Elementweise Arithmetik, Vergleiche und Casts
//
// Dieses Modul enthaelt:
// - Div mit Host-Skalar-Fallback ueber Geraetegrenzen
// - Pow, Tanh, Sigmoid aus Exp/Log zusammengesetzt
// - Relu-Gradient, Floor/Ceil ueber int64, Clip
// - Max als paarweise Faltung ueber eine Array-Liste
// - GreaterEqual, Cast
package xcvm

import (
	"errors"
	"fmt"

	"github.com/ollama/xcvm/ml"
)

// zeros returns a rank-0 zero of x's dtype on x's device.
func zeros(x ml.Array) ml.Array {
	return x.Device().Zeros(x.DType())
}

func sameDevice(a, b ml.Array) bool {
	return a.Device().Name() == b.Device().Name()
}

// div divides by a host scalar when b is a one-element array on another device.
func div(_ *State, a, b ml.Array) (ml.Array, error) {
	if !sameDevice(a, b) && b.Size() == 1 {
		warnOnce("Div: divisor on another device is read as a host scalar", "a", a.Device().Name(), "b", b.Device().Name())
		return a.DivScalar(b.AsScalar()), nil
	}
	return a.Div(b), nil
}

func pow(_ *State, a, b ml.Array) (ml.Array, error) {
	return a.Log().Mul(b).Exp(), nil
}

func tanh(x ml.Array) ml.Array {
	p := x.Exp()
	n := x.Neg().Exp()
	return p.Sub(n).Div(p.Add(n))
}

func sigmoid(_ *State, x ml.Array) (ml.Array, error) {
	if x.DType() != ml.DTypeFloat32 {
		return nil, fmt.Errorf("Sigmoid supports float32 only, got %s", x.DType())
	}
	return logistic(x), nil
}

func logistic(x ml.Array) ml.Array {
	return x.Neg().Exp().AddScalar(1).Reciprocal()
}

// reluGrad passes gy where x is not negative.
func reluGrad(_ *State, x, gy ml.Array) (ml.Array, error) {
	mask := x.Less(zeros(x)).LogicalNot().AsType(gy.DType())
	return gy.Mul(mask), nil
}

// floor and ceil truncate through int64 and correct the rounding direction.
// Values beyond the exact integer range of int64 come out wrong.
func floor(_ *State, x ml.Array) (ml.Array, error) {
	warnOnce("Floor is approximated by an int64 round trip")
	out := x.AsType(ml.DTypeInt64).AsType(x.DType())
	negative := x.Less(zeros(x))
	changed := x.NotEqual(out)
	return out.Sub(negative.Mul(changed).AsType(x.DType())), nil
}

func ceil(_ *State, x ml.Array) (ml.Array, error) {
	warnOnce("Ceil is approximated by an int64 round trip")
	out := x.AsType(ml.DTypeInt64).AsType(x.DType())
	positive := x.Greater(zeros(x))
	changed := x.NotEqual(out)
	return out.Add(positive.Mul(changed).AsType(x.DType())), nil
}

// runClip computes -max(-max(x, min), -max).
func runClip(_ *State, in *args) ([]Value, error) {
	x, lo, hi := in.Array(0), in.Float(1), in.Float(2)
	return result(x.MaximumScalar(lo).Neg().MaximumScalar(-hi).Neg(), nil)
}

func runMax(_ *State, in *args) ([]Value, error) {
	xs := in.Arrays(0)
	if len(xs) == 0 {
		return nil, errors.New("Max needs at least one input")
	}

	y := xs[0]
	for _, x := range xs[1:] {
		var err error
		if y, err = elementwiseMax(y, x); err != nil {
			return nil, err
		}
	}
	return result(y, nil)
}

func elementwiseMax(a, b ml.Array) (ml.Array, error) {
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("Max of %s and %s", a.DType(), b.DType())
	}

	switch {
	case b.Size() == 1:
		return a.MaximumScalar(b.AsScalar()), nil
	case a.Size() == 1:
		return b.MaximumScalar(a.AsScalar()), nil
	case a.Size() == b.Size():
		warnOnce("Slow element-wise Max")
		av, bv := a.Floats(), b.Floats()
		for i := range av {
			av[i] = max(av[i], bv[i])
		}
		return a.Device().FromFloats(a.DType(), av, a.Shape()...), nil
	}
	return nil, fmt.Errorf("Max of shapes %v and %v is not supported", a.Shape(), b.Shape())
}

// greaterEqual is !(b > a); NaN operands compare true.
func greaterEqual(a, b ml.Array) ml.Array {
	return b.Greater(a).LogicalNot()
}

func runCast(_ *State, in *args) ([]Value, error) {
	to := ml.DType(in.Int(1))
	if !to.Valid() {
		return nil, fmt.Errorf("Cast to unknown dtype %d", in.Int(1))
	}
	return result(in.Array(0).AsType(to), nil)
}
