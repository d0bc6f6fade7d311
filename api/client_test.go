package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/xcvm/ml"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	base, err := url.Parse(ts.URL)
	require.NoError(t, err)
	return NewClient(base, ts.Client())
}

func TestClientFromEnvironment(t *testing.T) {
	t.Setenv("XCVM_HOST", "10.0.0.1:9000")
	c, err := ClientFromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:9000", c.base.String())
}

func TestClientRun(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/run", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "xcvm/"))

		var req RunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []byte{1, 2, 3}, req.Program)
		assert.Equal(t, ml.DTypeFloat32, req.Inputs["x"].DType)
		assert.Equal(t, "native:1", req.Options.Device)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"r1","outputs":[{"name":"y","tensor":{"dtype":"float32","shape":[2],"data":[2,4]}},{"name":"none","tensor":null}],"profile":[{"id":1,"op":"Add","calls":1,"duration":"1ms"}]}`))
	})

	resp, err := c.Run(t.Context(), &RunRequest{
		Program: []byte{1, 2, 3},
		Inputs:  map[string]Tensor{"x": {DType: ml.DTypeFloat32, Shape: []int{2}, Data: []float64{1, 2}}},
		Options: &RunOptions{Device: "native:1"},
	})
	require.NoError(t, err)

	y, ok := resp.Output("y")
	require.True(t, ok)
	assert.Equal(t, []float64{2, 4}, y.Data)

	none, ok := resp.Output("none")
	assert.True(t, ok)
	assert.Nil(t, none)

	_, ok = resp.Output("z")
	assert.False(t, ok)

	require.Len(t, resp.Profile, 1)
	assert.Equal(t, time.Millisecond, resp.Profile[0].Duration.Duration)
}

func TestClientRunError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"empty register $0","pc":2,"id":9,"op":"Out"}`))
	})

	_, err := c.Run(t.Context(), &RunRequest{Assembly: "[]"})
	var se StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnprocessableEntity, se.StatusCode)
	require.NotNil(t, se.PC)
	assert.Equal(t, 2, *se.PC)
	assert.Equal(t, int64(9), se.ID)
	assert.Contains(t, se.Error(), "Out at pc=2: empty register $0")
}

func TestClientPlainError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "kaputt", http.StatusInternalServerError)
	})

	_, err := c.Version(t.Context())
	var se StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "kaputt\n", se.ErrorMessage)
	assert.Nil(t, se.PC)
}

func TestClientVersionAndDevices(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/version":
			_, _ = w.Write([]byte(`{"version":"1.2.3"}`))
		case "/api/devices":
			_, _ = w.Write([]byte(`{"devices":[{"name":"native:0","backend":"native","index":0,"host":true}]}`))
		case "/api/dump":
			_, _ = w.Write([]byte(`{"instructions":2,"listing":"..."}`))
		case "/":
		default:
			http.NotFound(w, r)
		}
	})

	v, err := c.Version(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)

	devs, err := c.Devices(t.Context())
	require.NoError(t, err)
	require.Len(t, devs.Devices, 1)
	assert.True(t, devs.Devices[0].Host)

	dump, err := c.Dump(t.Context(), &DumpRequest{Assembly: "[]"})
	require.NoError(t, err)
	assert.Equal(t, 2, dump.Instructions)

	assert.NoError(t, c.Heartbeat(t.Context()))
}

func TestStatusErrorMessage(t *testing.T) {
	cases := []struct {
		err  StatusError
		want string
	}{
		{StatusError{Status: "400 Bad Request", ErrorMessage: "kein Programm"}, "400 Bad Request: kein Programm"},
		{StatusError{Status: "500 Internal Server Error"}, "500 Internal Server Error"},
		{StatusError{ErrorMessage: "nur Text"}, "nur Text"},
		{StatusError{}, "something went wrong, please see the xcvm server logs for details"},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1.5s"`), &d))
	assert.Equal(t, 1500*time.Millisecond, d.Duration)

	require.NoError(t, json.Unmarshal([]byte(`2`), &d))
	assert.Equal(t, 2*time.Second, d.Duration)

	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	b, err := json.Marshal(Duration{250 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, `"250ms"`, string(b))
}

func TestClientBusy(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"context canceled"}`))
	})

	_, err := c.Run(t.Context(), &RunRequest{Assembly: "[]"})
	assert.ErrorIs(t, err, ErrBusy)

	assert.NotErrorIs(t, StatusError{StatusCode: http.StatusBadRequest}, ErrBusy)
}
