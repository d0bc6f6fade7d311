// run.go - Interpreter-Schleife der Register-VM
//
// MODUL: run
// ZWECK: Fuehrt ein Programm Instruktion fuer Instruktion gegen einen State aus
// INPUT: Program, State mit gebundenen Eingaben, Options
// OUTPUT: Geordnete Ausgabebindung oder *FatalError
// NEBENEFFEKTE: Logging (Trace, Speicherstand, Warnungen)
// ABHAENGIGKEITEN: ops (Operator-Tabelle), envconfig (Default-Optionen)
// HINWEISE: Jeder Fehler bricht den gesamten Lauf ab; es gibt keine Teilergebnisse
package xcvm

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ollama/xcvm/envconfig"
	"github.com/ollama/xcvm/ml"
)

// Options controls diagnostics of a run. None of them change results.
type Options struct {
	// Device names the device for non-host allocations; empty selects the
	// backend default
	Device string `json:"device,omitempty"`

	// TraceLevel 1 logs every instruction, 2 also logs its outputs
	TraceLevel int `json:"trace_level,omitempty"`

	// CheckTypes validates array outputs against Instruction.OutputTypes
	CheckTypes bool `json:"check_types,omitempty"`

	// CheckNaN and CheckInf abort the run on non-finite float outputs
	CheckNaN bool `json:"check_nan,omitempty"`
	CheckInf bool `json:"check_inf,omitempty"`

	// DumpMemoryUsage logs live registers after every instruction
	DumpMemoryUsage bool `json:"dump_memory_usage,omitempty"`

	// Profile accumulates per-instruction wall time, see State.Profile
	Profile bool `json:"profile,omitempty"`
}

// DefaultOptions reads the XCVM_* environment.
func DefaultOptions() Options {
	return Options{
		Device:          envconfig.Device(),
		TraceLevel:      int(envconfig.Trace()),
		CheckTypes:      envconfig.CheckTypes(),
		CheckNaN:        envconfig.CheckNaN(),
		CheckInf:        envconfig.CheckInf(),
		DumpMemoryUsage: envconfig.DumpMemory(),
	}
}

// Execute runs prog on a fresh State with the given inputs bound and
// returns the outputs in first-write order.
func Execute(prog *Program, b ml.Backend, inputs map[string]Value, opts Options) (*orderedmap.OrderedMap[string, Value], error) {
	st, err := execute(prog, b, inputs, opts)
	if err != nil {
		return nil, err
	}
	return st.Outputs(), nil
}

func execute(prog *Program, b ml.Backend, inputs map[string]Value, opts Options) (*State, error) {
	st, err := NewState(b, opts)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		st.BindInput(name, inputs[name])
	}

	if err := Run(prog, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Run executes prog against st until the program counter runs past the
// last instruction. The first failing instruction aborts the run with a
// *FatalError.
func Run(prog *Program, st *State) error {
	slog.Debug("run", "id", st.id, "instructions", prog.Len(), "device", st.dev.Name())
	start := time.Now()

	for st.pc = 0; st.pc < len(prog.Instructions); st.pc++ {
		ins := prog.Instructions[st.pc]
		pc := st.pc

		if st.opts.TraceLevel > 0 {
			slog.Info("xcvm", "pc", pc, "id", ins.ID, "ins", ins.String(), "debug", ins.DebugInfo)
		}

		t := time.Now()
		if err := step(st, ins); err != nil {
			return &FatalError{PC: pc, Op: ins.Op, ID: ins.ID, DebugInfo: ins.DebugInfo, Err: err}
		}
		if st.opts.Profile {
			st.record(ins, time.Since(t))
		}

		if st.opts.DumpMemoryUsage {
			slog.Debug("memory", "pc", pc, "registers", st.LiveRegisters(), "bytes", st.LiveBytes())
		}
	}

	slog.Debug("run finished", "id", st.id, "outputs", st.outputs.Len(), "duration", time.Since(start))
	return nil
}

// step executes one instruction. Array contract violations panic with
// *ml.Error inside handlers; they are turned into errors here.
func step(st *State, ins *Instruction) (err error) {
	def, ok := ops[ins.Op]
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownOpcode, ins.Op)
	}
	if err := def.checkOperands(ins); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			var mlErr *ml.Error
			if e, ok := r.(error); ok && errors.As(e, &mlErr) {
				err = mlErr
				return
			}
			panic(r)
		}
	}()

	in := &args{ins: ins}
	if !def.noRead {
		in.vals = make([]Value, len(ins.Inputs))
		for i, o := range ins.Inputs {
			if in.vals[i], err = decode(st, def.inputs[i], o); err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
		}
	}

	outs, err := def.run(st, in)
	if err != nil {
		return err
	}
	if len(outs) != len(ins.Outputs) {
		return fmt.Errorf("%w: %s produced %d outputs for %d registers", ErrInvalidProgram, ins.Op, len(outs), len(ins.Outputs))
	}

	for i, v := range outs {
		if k := def.outputKind(i); k != kindAny && v.Kind() != k {
			return fmt.Errorf("%w: output %d is %s, want %s", ErrKindMismatch, i, v.Kind(), k)
		}
		if err := checkOutput(st.opts, ins, i, v); err != nil {
			return err
		}
		if st.opts.TraceLevel > 1 {
			slog.Info("xcvm", "pc", st.pc, "output", outputString(ins.Outputs[i]), "value", Describe(v))
		}
		if r := ins.Outputs[i]; r >= 0 {
			if err := st.SetVar(r, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// decode reads one operand for a signature slot of kind want.
func decode(st *State, want OperandKind, o Operand) (Value, error) {
	switch o.Kind {
	case OperandArray:
		a, err := st.GetArray(o.Reg)
		if err != nil {
			return nil, err
		}
		if want == OperandOptionalArray {
			return OptionalArrayValue{a}, nil
		}
		return ArrayValue{a}, nil
	case OperandOptionalArray:
		if o.Reg < 0 {
			return OptionalArrayValue{}, nil
		}
		a, err := st.GetOptionalArray(o.Reg)
		if err != nil {
			return nil, err
		}
		return OptionalArrayValue{a}, nil
	case OperandArrayList:
		arrays := make(ArrayListValue, len(o.Regs))
		for i, r := range o.Regs {
			a, err := st.GetArray(r)
			if err != nil {
				return nil, err
			}
			arrays[i] = a
		}
		return arrays, nil
	case OperandSequence:
		return st.get(o.Reg, KindSequence)
	case OperandOpaque:
		return st.get(o.Reg, KindOpaque)
	case OperandInt:
		return IntValue(o.Int), nil
	case OperandFloat:
		return FloatValue(o.Float), nil
	case OperandInts, OperandLongs:
		return IntsValue(o.Ints), nil
	case OperandDoubles:
		return FloatsValue(o.Floats), nil
	case OperandString:
		return StringValue(o.Str), nil
	}
	return nil, fmt.Errorf("%w: operand kind %s", ErrInvalidProgram, o.Kind)
}

func checkOutput(opts Options, ins *Instruction, i int, v Value) error {
	av, ok := v.(ArrayValue)
	if !ok {
		return nil
	}
	a := av.Array

	if opts.CheckTypes && i < len(ins.OutputTypes) {
		if err := ins.OutputTypes[i].Check(a); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}

	if (opts.CheckNaN || opts.CheckInf) && a.DType().IsFloat() {
		for _, f := range a.Floats() {
			if opts.CheckNaN && math.IsNaN(f) {
				return fmt.Errorf("output %d contains NaN", i)
			}
			if opts.CheckInf && math.IsInf(f, 0) {
				return fmt.Errorf("output %d contains Inf", i)
			}
		}
	}
	return nil
}
