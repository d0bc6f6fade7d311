// state.go - Registerdatei und Ausfuehrungskontext
//
// MODUL: state
// ZWECK: Haelt alle Registerwerte eines Programmlaufs, den Programmzaehler,
//        die benannten Ein- und Ausgaben sowie die Geraete des Laufs
// INPUT: Backend (Standard- und Host-Geraet), Options, gebundene Eingaben
// OUTPUT: Geordnete Ausgabebindung nach dem Lauf
// NEBENEFFEKTE: Keine; ein State gehoert genau einem Interpreterlauf
// ABHAENGIGKEITEN: ml (Arrays/Geraete), go-ordered-map (Bindungen), uuid (Lauf-ID)
// HINWEISE: Register werden nur durch Free geleert, nie implizit
package xcvm

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ollama/xcvm/logutil"
	"github.com/ollama/xcvm/ml"
)

// State is the register file of one program run. A State must not be used
// by more than one interpreter at a time.
type State struct {
	id   uuid.UUID
	regs []Value
	pc   int

	inputs  *orderedmap.OrderedMap[string, Value]
	outputs *orderedmap.OrderedMap[string, Value]

	dev  ml.Device
	host ml.Device
	opts Options

	profile map[int64]*ProfileEntry
}

// NewState creates an empty register file. Non-host allocations go to
// opts.Device, or to the backend's default device when it is empty.
func NewState(b ml.Backend, opts Options) (*State, error) {
	dev := b.DefaultDevice()
	if opts.Device != "" {
		d, err := b.Device(opts.Device)
		if err != nil {
			return nil, err
		}
		dev = d
	}

	return &State{
		id:      uuid.New(),
		inputs:  orderedmap.New[string, Value](),
		outputs: orderedmap.New[string, Value](),
		dev:     dev,
		host:    b.HostDevice(),
		opts:    opts,
		profile: make(map[int64]*ProfileEntry),
	}, nil
}

// ID identifies the run in logs.
func (st *State) ID() uuid.UUID { return st.id }

// Device is where non-host arrays are allocated.
func (st *State) Device() ml.Device { return st.dev }

func (st *State) HostDevice() ml.Device { return st.host }

func (st *State) Options() Options { return st.opts }

// =============================================================================
// Ein- und Ausgaben
// =============================================================================

// BindInput binds a named external input.
func (st *State) BindInput(name string, v Value) {
	st.inputs.Set(name, v)
}

// Input returns the value bound to name.
func (st *State) Input(name string) (Value, error) {
	if v, ok := st.inputs.Get(name); ok {
		return v, nil
	}

	var names []string
	for pair := st.inputs.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	if s := suggest(name, names); s != "" {
		return nil, fmt.Errorf("%w %q, did you mean %q?", ErrUnboundInput, name, s)
	}
	return nil, fmt.Errorf("%w %q", ErrUnboundInput, name)
}

// Output binds a named output. Later writes replace earlier ones and keep
// the position of the first write.
func (st *State) Output(name string, v Value) {
	logutil.Trace("output", "run", st.id, "name", name, "value", Describe(v))
	st.outputs.Set(name, v)
}

// Outputs returns the output bindings in first-write order.
func (st *State) Outputs() *orderedmap.OrderedMap[string, Value] {
	return st.outputs
}

// =============================================================================
// Register
// =============================================================================

// GetVar returns the value in register r. Reading an empty register is an error.
func (st *State) GetVar(r int) (Value, error) {
	if r < 0 || r >= len(st.regs) || st.regs[r] == nil {
		return nil, fmt.Errorf("%w $%d", ErrEmptyRegister, r)
	}
	return st.regs[r], nil
}

// SetVar stores v in register r, growing the register file as needed.
func (st *State) SetVar(r int, v Value) error {
	if r < 0 {
		return fmt.Errorf("%w: negative register $%d", ErrInvalidProgram, r)
	}
	if v == nil {
		return fmt.Errorf("%w: nil value for $%d", ErrInvalidProgram, r)
	}
	if r >= len(st.regs) {
		st.regs = slices.Grow(st.regs, r+1-len(st.regs))[:r+1]
	}
	st.regs[r] = v
	return nil
}

// FreeVar clears register r. Freeing an empty register is an error.
func (st *State) FreeVar(r int) error {
	if _, err := st.GetVar(r); err != nil {
		return err
	}
	st.regs[r] = nil
	return nil
}

func (st *State) get(r int, want Kind) (Value, error) {
	v, err := st.GetVar(r)
	if err != nil {
		return nil, err
	}
	if v.Kind() != want {
		return nil, fmt.Errorf("%w: $%d holds %s, want %s", ErrKindMismatch, r, v.Kind(), want)
	}
	return v, nil
}

func (st *State) GetArray(r int) (ml.Array, error) {
	v, err := st.get(r, KindArray)
	if err != nil {
		return nil, err
	}
	return v.(ArrayValue).Array, nil
}

// GetOptionalArray accepts a plain array as a present optional.
func (st *State) GetOptionalArray(r int) (ml.Array, error) {
	v, err := st.GetVar(r)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case OptionalArrayValue:
		return v.Array, nil
	case ArrayValue:
		return v.Array, nil
	}
	return nil, fmt.Errorf("%w: $%d holds %s, want %s", ErrKindMismatch, r, v.Kind(), KindOptionalArray)
}

func (st *State) GetArrayList(r int) ([]ml.Array, error) {
	v, err := st.get(r, KindArrayList)
	if err != nil {
		return nil, err
	}
	return v.(ArrayListValue), nil
}

func (st *State) GetSequence(r int) (*SequenceValue, error) {
	v, err := st.get(r, KindSequence)
	if err != nil {
		return nil, err
	}
	return v.(*SequenceValue), nil
}

func (st *State) GetOpaque(r int) (any, error) {
	v, err := st.get(r, KindOpaque)
	if err != nil {
		return nil, err
	}
	return v.(OpaqueValue).Payload, nil
}

// PC returns the index of the executing instruction.
func (st *State) PC() int { return st.pc }

// SetPC sets the program counter. The interpreter increments it after the
// current instruction, so jumps store target-1.
func (st *State) SetPC(pc int) { st.pc = pc }

// =============================================================================
// Diagnose
// =============================================================================

// LiveRegisters counts non-empty registers.
func (st *State) LiveRegisters() int {
	n := 0
	for _, v := range st.regs {
		if v != nil {
			n++
		}
	}
	return n
}

// LiveBytes sums the array storage held by all registers.
func (st *State) LiveBytes() int {
	n := 0
	for _, v := range st.regs {
		n += valueBytes(v)
	}
	return n
}

// ProfileEntry accumulates the time spent in one instruction.
type ProfileEntry struct {
	ID       int64         `json:"id"`
	Op       Opcode        `json:"op"`
	Calls    int           `json:"calls"`
	Duration time.Duration `json:"duration"`
}

func (st *State) record(ins *Instruction, d time.Duration) {
	e, ok := st.profile[ins.ID]
	if !ok {
		e = &ProfileEntry{ID: ins.ID, Op: ins.Op}
		st.profile[ins.ID] = e
	}
	e.Calls++
	e.Duration += d
}

// Profile returns per-instruction timings, slowest first. It is empty unless
// Options.Profile is set.
func (st *State) Profile() []ProfileEntry {
	entries := make([]ProfileEntry, 0, len(st.profile))
	for _, e := range st.profile {
		entries = append(entries, *e)
	}
	slices.SortFunc(entries, func(a, b ProfileEntry) int {
		if c := cmp.Compare(b.Duration, a.Duration); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return entries
}
