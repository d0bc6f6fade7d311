package server

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/xcvm/api"
	"github.com/ollama/xcvm/ml"
	"github.com/ollama/xcvm/ml/backend/cpu"
	"github.com/ollama/xcvm/version"
	"github.com/ollama/xcvm/xcvm"
)

const doubleAsm = `
- op: In
  inputs: [{str: x}]
  outputs: [0]
  id: 1
- op: Add
  inputs: [{reg: 0}, {reg: 0}]
  outputs: [1]
  id: 2
- op: Out
  inputs: [{reg: 1}, {str: y}]
  id: 3
- op: NullConstant
  outputs: [2]
  id: 4
- op: Out
  inputs: [{reg: 2}, {str: none}]
  id: 5
`

func testServer(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b, err := cpu.New(ml.BackendParams{NumDevices: 2})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	return NewServer(nil, b, 2).GenerateRoutes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRunHandler(t *testing.T) {
	h := testServer(t)

	w := do(t, h, http.MethodPost, "/api/run", api.RunRequest{
		Assembly: doubleAsm,
		Inputs:   map[string]api.Tensor{"x": {DType: ml.DTypeFloat32, Shape: []int{3}, Data: []float64{1, 2, 3}}},
		Options:  &api.RunOptions{Profile: true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Outputs, 2)
	assert.Equal(t, "y", resp.Outputs[0].Name)
	assert.Equal(t, "none", resp.Outputs[1].Name)
	assert.Nil(t, resp.Outputs[1].Tensor)

	want := &api.Tensor{DType: ml.DTypeFloat32, Shape: []int{3}, Data: []float64{2, 4, 6}}
	if diff := cmp.Diff(want, resp.Outputs[0].Tensor); diff != "" {
		t.Errorf("Ausgabe y (-want +got):\n%s", diff)
	}
	assert.Len(t, resp.Profile, 5)
	assert.NotEmpty(t, resp.ID)
}

func TestRunHandlerBinary(t *testing.T) {
	h := testServer(t)

	prog, err := xcvm.ParseAssembly([]byte(doubleAsm))
	require.NoError(t, err)
	bin, err := prog.MarshalBinary()
	require.NoError(t, err)

	w := do(t, h, http.MethodPost, "/api/run", api.RunRequest{
		Program: bin,
		Inputs:  map[string]api.Tensor{"x": {DType: ml.DTypeInt32, Shape: []int{}, Data: []float64{21}}},
		Options: &api.RunOptions{Device: "native:1"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	y, ok := resp.Output("y")
	require.True(t, ok)
	assert.Equal(t, []float64{42}, y.Data)
	assert.Equal(t, ml.DTypeInt32, y.DType)
}

func TestRunHandlerFatal(t *testing.T) {
	h := testServer(t)

	asm := `
- op: In
  inputs: [{str: x}]
  outputs: [0]
- op: Free
  inputs: [{reg: 0}]
- op: Out
  inputs: [{reg: 0}, {str: y}]
  id: 12
  debug: graph/out
`
	w := do(t, h, http.MethodPost, "/api/run", api.RunRequest{
		Assembly: asm,
		Inputs:   map[string]api.Tensor{"x": {DType: ml.DTypeFloat32, Shape: []int{1}, Data: []float64{1}}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var se api.StatusError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &se))
	require.NotNil(t, se.PC)
	assert.Equal(t, 2, *se.PC)
	assert.Equal(t, int64(12), se.ID)
	assert.Equal(t, "Out", se.Op)
	assert.Equal(t, "graph/out", se.DebugInfo)
	assert.Contains(t, se.ErrorMessage, "empty register")
}

func TestRunHandlerBadRequests(t *testing.T) {
	h := testServer(t)

	cases := []struct {
		name string
		body any
		want string
	}{
		{"leer", nil, "missing request body"},
		{"kein programm", api.RunRequest{}, "program or assembly is required"},
		{"beides", api.RunRequest{Program: []byte{8, 1}, Assembly: "[]"}, "mutually exclusive"},
		{"tippfehler", api.RunRequest{Assembly: "- op: Ad\n"}, `did you mean "Add"?`},
		{"geraet", api.RunRequest{Assembly: "[]", Options: &api.RunOptions{Device: "native:9"}}, "native:9"},
		{
			"eingabe",
			api.RunRequest{Assembly: "[]", Inputs: map[string]api.Tensor{"x": {DType: ml.DTypeFloat32, Shape: []int{2}, Data: []float64{1}}}},
			"input x",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/run", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var se api.StatusError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &se))
			assert.Contains(t, se.ErrorMessage, tt.want)
		})
	}
}

func TestDumpHandler(t *testing.T) {
	h := testServer(t)

	for _, format := range []string{"", "table", "text", "yaml"} {
		t.Run(format, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/dump", api.DumpRequest{Assembly: doubleAsm, Format: format})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var resp api.DumpResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, 5, resp.Instructions)
			assert.Contains(t, resp.Listing, "NullConstant")
		})
	}

	w := do(t, h, http.MethodPost, "/api/dump", api.DumpRequest{Assembly: doubleAsm, Format: "xml"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGeneralRoutes(t *testing.T) {
	h := testServer(t)

	w := do(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xcvm is running", w.Body.String())

	w = do(t, h, http.MethodGet, "/api/version", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"version":"`+version.Version+`"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var devs api.DevicesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devs))
	require.Len(t, devs.Devices, 2)
	assert.True(t, devs.Devices[0].Host)
	assert.True(t, devs.Devices[0].Default)
	assert.Equal(t, "native:1", devs.Devices[1].Name)

	w = do(t, h, http.MethodGet, "/api/run", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAllowedHosts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b, err := cpu.New(ml.BackendParams{})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	loopback := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11535}
	h := NewServer(loopback, b, 1).GenerateRoutes()

	cases := []struct {
		host string
		code int
	}{
		{"localhost:11535", http.StatusOK},
		{"127.0.0.1", http.StatusOK},
		{"192.168.1.10", http.StatusOK},
		{"box.internal", http.StatusOK},
		{"example.com", http.StatusForbidden},
	}
	for _, tt := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = tt.host
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, tt.code, w.Code, tt.host)
	}

	assert.True(t, allowedHost(""))
	assert.True(t, allowedHost("LOCALHOST"))
	assert.False(t, allowedHost("example.com"))
}
