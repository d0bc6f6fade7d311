// types.go - API-Typen (Anfragen, Antworten, Fehler, Tensoren)
// Enthaelt: StatusError, Tensor, RunOptions, RunRequest/RunResponse, DumpRequest/DumpResponse, DevicesResponse, Duration
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/ollama/xcvm/ml"
)

// ErrBusy is matched by a [StatusError] whose request was rejected because
// the server was shutting down or the request was canceled while waiting for
// a free run slot.
var ErrBusy = errors.New("server busy")

// StatusError is an error with an HTTP status code and message. Errors of
// an aborted run also identify the failing instruction.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`

	PC        *int   `json:"pc,omitempty"`
	ID        int64  `json:"id,omitempty"`
	Op        string `json:"op,omitempty"`
	DebugInfo string `json:"debug_info,omitempty"`
}

func (e StatusError) Unwrap() error {
	if e.StatusCode == http.StatusServiceUnavailable {
		return ErrBusy
	}
	return nil
}

func (e StatusError) Error() string {
	msg := e.ErrorMessage
	if e.PC != nil {
		msg = fmt.Sprintf("%s at pc=%d: %s", e.Op, *e.PC, e.ErrorMessage)
	}

	switch {
	case e.Status != "" && msg != "":
		return fmt.Sprintf("%s: %s", e.Status, msg)
	case e.Status != "":
		return e.Status
	case msg != "":
		return msg
	default:
		// this should not happen
		return "something went wrong, please see the xcvm server logs for details"
	}
}

// Tensor is a host array literal, see the tensor files read by "xcvm run".
type Tensor struct {
	DType ml.DType  `json:"dtype" yaml:"dtype"`
	Shape []int     `json:"shape" yaml:"shape,flow"`
	Data  []float64 `json:"data" yaml:"data,flow"`
}

// RunOptions mirror the diagnostics of a local run.
type RunOptions struct {
	Device     string `json:"device,omitempty"`
	TraceLevel int    `json:"trace_level,omitempty"`
	CheckTypes bool   `json:"check_types,omitempty"`
	CheckNaN   bool   `json:"check_nan,omitempty"`
	CheckInf   bool   `json:"check_inf,omitempty"`
	Profile    bool   `json:"profile,omitempty"`
}

// RunRequest carries a program either in binary form or as assembly text.
type RunRequest struct {
	Program  []byte            `json:"program,omitempty"`
	Assembly string            `json:"assembly,omitempty"`
	Inputs   map[string]Tensor `json:"inputs,omitempty"`
	Options  *RunOptions       `json:"options,omitempty"`
}

// Output is one named output. Tensor is nil for an absent optional array.
type Output struct {
	Name   string  `json:"name"`
	Tensor *Tensor `json:"tensor"`
}

// ProfileEntry is the accumulated wall time of one instruction.
type ProfileEntry struct {
	ID       int64    `json:"id"`
	Op       string   `json:"op"`
	Calls    int      `json:"calls"`
	Duration Duration `json:"duration"`
}

// RunResponse lists outputs in the order the program first wrote them.
type RunResponse struct {
	ID            string         `json:"id"`
	Outputs       []Output       `json:"outputs"`
	Profile       []ProfileEntry `json:"profile,omitempty"`
	TotalDuration time.Duration  `json:"total_duration,omitempty"`
}

// Output returns the named output and whether the program wrote it.
func (r *RunResponse) Output(name string) (*Tensor, bool) {
	for _, o := range r.Outputs {
		if o.Name == name {
			return o.Tensor, true
		}
	}
	return nil, false
}

// DumpRequest asks for a listing. Format is "table" (default), "text" or
// "yaml".
type DumpRequest struct {
	Program  []byte `json:"program,omitempty"`
	Assembly string `json:"assembly,omitempty"`
	Format   string `json:"format,omitempty"`
}

type DumpResponse struct {
	Instructions int    `json:"instructions"`
	Listing      string `json:"listing"`
}

type DevicesResponse struct {
	Devices []ml.DeviceInfo `json:"devices"`
}

// Duration ist ein JSON-serialisierbarer time.Duration Wrapper
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte("\"" + d.Duration.String() + "\""), nil
}

func (d *Duration) UnmarshalJSON(b []byte) (err error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case float64:
		d.Duration = time.Duration(t * float64(time.Second))
	case string:
		d.Duration, err = time.ParseDuration(t)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("Unsupported type: '%s'", reflect.TypeOf(v))
	}

	return nil
}
