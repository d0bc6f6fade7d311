// ops_sequence.go - Sequenz-Opcodes fuer schleifengetragene Akkumulation
//
// Dieses Modul enthaelt:
// - Create, Append, Pop, Copy: Aufbau und Besitzwechsel einer Sequenz
// - Lookup, Size: Lesen
// - Stack, Concat, Split: Umwandlung zwischen Sequenz und Array
//
// Append und Pop veraendern die Sequenz und verschieben sie in das
// Ausgaberegister; das Eingaberegister wird dabei geleert, wenn es ein
// anderes ist.
package xcvm

import (
	"errors"
	"fmt"

	"github.com/ollama/xcvm/ml"
)

// moveSequence clears the input register when the sequence is written to a
// different register, so each sequence has a single owner.
func moveSequence(st *State, in *args) error {
	src := in.ins.Inputs[0].Reg
	if len(in.ins.Outputs) > 0 && in.ins.Outputs[0] == src {
		return nil
	}
	return st.FreeVar(src)
}

func runSequenceCreate(*State, *args) ([]Value, error) {
	return []Value{NewSequence()}, nil
}

func runSequenceAppend(st *State, in *args) ([]Value, error) {
	seq := in.Sequence(0)
	seq.Append(in.Array(1))
	if err := moveSequence(st, in); err != nil {
		return nil, err
	}
	return []Value{seq}, nil
}

func runSequencePop(st *State, in *args) ([]Value, error) {
	seq := in.Sequence(0)
	a, ok := seq.Pop()
	if !ok {
		return nil, errors.New("SequencePop: empty sequence")
	}
	if err := moveSequence(st, in); err != nil {
		return nil, err
	}
	return []Value{seq, ArrayValue{a}}, nil
}

func runSequenceLookup(_ *State, in *args) ([]Value, error) {
	seq, index := in.Sequence(0), in.Array(1)
	if index.Size() != 1 {
		return nil, fmt.Errorf("SequenceLookup: index of shape %v is not a scalar", index.Shape())
	}
	i := int(index.AsScalar())
	a, ok := seq.At(i)
	if !ok {
		return nil, fmt.Errorf("SequenceLookup: index %d out of range for %d elements", i, seq.Len())
	}
	return result(a, nil)
}

func runSequenceSize(st *State, in *args) ([]Value, error) {
	return result(st.HostDevice().Full(ml.DTypeInt64, float64(in.Sequence(0).Len())), nil)
}

// runSequenceStack joins the elements along a new axis.
func runSequenceStack(_ *State, in *args) ([]Value, error) {
	xs := in.Sequence(0).Arrays()
	if len(xs) == 0 {
		return nil, errors.New("SequenceStack: empty sequence")
	}

	axis, err := normAxis(in.Int(1), xs[0].NDim()+1)
	if err != nil {
		return nil, fmt.Errorf("SequenceStack: %w", err)
	}
	for i, x := range xs {
		shape := x.Shape()
		xs[i] = x.Reshape(append(shape[:axis:axis], append([]int{1}, shape[axis:]...)...)...)
	}
	return result(xs[0].Concat(axis, xs[1:]...), nil)
}

func runSequenceConcat(_ *State, in *args) ([]Value, error) {
	xs := in.Sequence(0).Arrays()
	if len(xs) == 0 {
		return nil, errors.New("SequenceConcat: empty sequence")
	}
	return result(xs[0].Concat(int(in.Int(1)), xs[1:]...), nil)
}

// runSequenceSplit slices x along axis into one element per index, dropping
// the axis.
func runSequenceSplit(_ *State, in *args) ([]Value, error) {
	x := in.Array(0)
	axis, err := normAxis(in.Int(1), x.NDim())
	if err != nil {
		return nil, fmt.Errorf("SequenceSplit: %w", err)
	}

	shape := x.Shape()
	n := shape[axis]
	rest := append(shape[:axis:axis], shape[axis+1:]...)

	lens := make([]int, n)
	for i := range lens {
		lens[i] = 1
	}
	seq := NewSequence()
	if n > 0 {
		for _, p := range x.Split(axis, lens...) {
			seq.Append(p.Reshape(rest...))
		}
	}
	return []Value{seq}, nil
}

func runSequenceCopy(_ *State, in *args) ([]Value, error) {
	return []Value{in.Sequence(0).Clone()}, nil
}
