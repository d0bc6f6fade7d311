// ops_control.go - Steuer- und Speicher-Opcodes
// Enthält: In, Out, Free, JmpTrue, JmpFalse
package xcvm

import (
	"github.com/ollama/xcvm/logutil"
)

func runIn(st *State, in *args) ([]Value, error) {
	v, err := st.Input(in.Str(0))
	if err != nil {
		return nil, err
	}
	return []Value{v}, nil
}

func runOut(st *State, in *args) ([]Value, error) {
	st.Output(in.Str(1), in.Value(0))
	return nil, nil
}

func runFree(st *State, in *args) ([]Value, error) {
	for _, r := range in.ins.Inputs[0].Registers() {
		if err := st.FreeVar(r); err != nil {
			return nil, err
		}
		logutil.Trace("free", "run", st.id, "reg", r)
	}
	return nil, nil
}

// runJmp branches when the scalar condition equals when. The loop
// increments pc after the instruction, so pc is set one before the target.
func runJmp(when bool) func(st *State, in *args) ([]Value, error) {
	return func(st *State, in *args) ([]Value, error) {
		if (in.Array(0).AsScalar() != 0) == when {
			st.SetPC(int(in.Int(1)) - 1)
		}
		return nil, nil
	}
}
