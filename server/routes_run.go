// routes_run.go - Handler fuer Programmausfuehrung und Listings
// Enthaelt: RunHandler (/api/run), DumpHandler (/api/dump), DevicesHandler (/api/devices)

package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ollama/xcvm/api"
	"github.com/ollama/xcvm/ml"
	"github.com/ollama/xcvm/xcvm"
)

// decodeProgram accepts exactly one of the binary and the assembly form.
func decodeProgram(program []byte, assembly string) (*xcvm.Program, error) {
	switch {
	case len(program) > 0 && assembly != "":
		return nil, errors.New("program and assembly are mutually exclusive")
	case len(program) > 0:
		return xcvm.UnmarshalProgram(program)
	case assembly != "":
		return xcvm.ParseAssembly([]byte(assembly))
	}
	return nil, errors.New("program or assembly is required")
}

func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	switch {
	case errors.Is(err, io.EOF):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return false
	case err != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func runOptions(o *api.RunOptions) xcvm.Options {
	opts := xcvm.DefaultOptions()
	if o == nil {
		return opts
	}
	if o.Device != "" {
		opts.Device = o.Device
	}
	opts.TraceLevel = max(opts.TraceLevel, o.TraceLevel)
	opts.CheckTypes = opts.CheckTypes || o.CheckTypes
	opts.CheckNaN = opts.CheckNaN || o.CheckNaN
	opts.CheckInf = opts.CheckInf || o.CheckInf
	opts.Profile = o.Profile
	return opts
}

// RunHandler fuehrt ein Programm aus. Ein Abbruch im Interpreter ergibt 422
// mit der fehlgeschlagenen Instruktion im Body.
func (s *Server) RunHandler(c *gin.Context) {
	var req api.RunRequest
	if !bindJSON(c, &req) {
		return
	}

	prog, err := decodeProgram(req.Program, req.Assembly)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := xcvm.NewState(s.backend, runOptions(req.Options))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, name := range slices.Sorted(maps.Keys(req.Inputs)) {
		v, err := xcvm.Tensor(req.Inputs[name]).Value(st.Device())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "input " + name + ": " + err.Error()})
			return
		}
		st.BindInput(name, v)
	}

	if err := s.sem.Acquire(c.Request.Context(), 1); err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	start := time.Now()
	err = xcvm.Run(prog, st)
	s.sem.Release(1)

	if fe := (*xcvm.FatalError)(nil); errors.As(err, &fe) {
		slog.Info("run aborted", "id", st.ID(), "error", fe)
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":      fe.Err.Error(),
			"pc":         fe.PC,
			"id":         fe.ID,
			"op":         fe.Op.String(),
			"debug_info": fe.DebugInfo,
		})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := api.RunResponse{ID: st.ID().String(), TotalDuration: time.Since(start)}
	for pair := st.Outputs().Oldest(); pair != nil; pair = pair.Next() {
		t, err := xcvm.OutputTensor(pair.Value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "output " + pair.Key + ": " + err.Error()})
			return
		}
		resp.Outputs = append(resp.Outputs, api.Output{Name: pair.Key, Tensor: (*api.Tensor)(t)})
	}
	for _, e := range st.Profile() {
		resp.Profile = append(resp.Profile, api.ProfileEntry{ID: e.ID, Op: e.Op.String(), Calls: e.Calls, Duration: api.Duration{Duration: e.Duration}})
	}

	c.JSON(http.StatusOK, resp)
}

// DumpHandler gibt das Listing eines Programms zurueck
func (s *Server) DumpHandler(c *gin.Context) {
	var req api.DumpRequest
	if !bindJSON(c, &req) {
		return
	}

	prog, err := decodeProgram(req.Program, req.Assembly)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var listing string
	switch req.Format {
	case "", "table":
		var buf bytes.Buffer
		prog.Disassemble(&buf)
		listing = buf.String()
	case "text":
		listing = prog.String()
	case "yaml":
		b, err := prog.Assembly()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		listing = string(b)
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown format " + req.Format})
		return
	}

	c.JSON(http.StatusOK, api.DumpResponse{Instructions: prog.Len(), Listing: listing})
}

// DevicesHandler listet die Geraete des Backends
func (s *Server) DevicesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.DevicesResponse{Devices: ml.DeviceInfos(s.backend)})
}
