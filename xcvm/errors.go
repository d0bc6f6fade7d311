package xcvm

import (
	"errors"
	"fmt"
)

var (
	ErrKindMismatch   = errors.New("register kind mismatch")
	ErrEmptyRegister  = errors.New("empty register")
	ErrUnboundInput   = errors.New("unbound input")
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrInvalidProgram = errors.New("invalid program")
)

// FatalError aborts a run. It identifies the failing instruction; the run
// produces no outputs.
type FatalError struct {
	PC        int
	Op        Opcode
	ID        int64
	DebugInfo string
	Err       error
}

func (e *FatalError) Error() string {
	msg := fmt.Sprintf("xcvm: %s failed at pc=%d id=%d", e.Op, e.PC, e.ID)
	if e.DebugInfo != "" {
		msg += " (" + e.DebugInfo + ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error { return e.Err }
