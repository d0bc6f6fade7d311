// Package api - Hauptmodul des xcvm API-Clients.
// Dieses Modul enthaelt die Client-Struktur und Basis-Methoden.
// API-Methoden sind in client_api.go.
//
// Package api implements the client-side API for code wishing to execute
// programs on a running xcvm service. The methods of the [Client] type
// correspond to the routes served by "xcvm serve".
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"

	"github.com/ollama/xcvm/envconfig"
	"github.com/ollama/xcvm/version"
)

// Client encapsulates client state for interacting with the xcvm
// service. Use [ClientFromEnvironment] to create new Clients.
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	if err := json.Unmarshal(body, &apiError); err != nil {
		// kein JSON, z.B. von einem Proxy
		apiError.ErrorMessage = string(body)
	}
	return apiError
}

// ClientFromEnvironment creates a new [Client] using configuration from the
// environment variable XCVM_HOST, which points to the network host and
// port on which the xcvm service is listening. The format of this variable
// is:
//
//	<scheme>://<host>:<port>
//
// If the variable is not specified, a default host and port will be used.
func ClientFromEnvironment() (*Client, error) {
	return &Client{
		base: envconfig.Host(),
		http: http.DefaultClient,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

func userAgent() string {
	return fmt.Sprintf("xcvm/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version())
}

// do sends reqData as JSON and decodes a successful response into respData.
// Either may be nil.
func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var body io.Reader
	if reqData != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(reqData); err != nil {
			return err
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := checkError(resp, b); err != nil {
		return err
	}

	if respData == nil || len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, respData)
}
