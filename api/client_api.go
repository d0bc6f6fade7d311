// Package api - API-Methoden des Clients.
// Dieses Modul enthaelt Run, Dump, Devices, Heartbeat und Version.

package api

import (
	"context"
	"net/http"
)

// Run executes one program on the server and returns its outputs.
// A program that aborts is reported as a [StatusError] with status 422
// carrying the failing instruction.
func (c *Client) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	var resp RunResponse
	if err := c.do(ctx, http.MethodPost, "/api/run", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dump returns the server-side listing of a program.
func (c *Client) Dump(ctx context.Context, req *DumpRequest) (*DumpResponse, error) {
	var resp DumpResponse
	if err := c.do(ctx, http.MethodPost, "/api/dump", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Devices lists the devices programs can run on.
func (c *Client) Devices(ctx context.Context) (*DevicesResponse, error) {
	var resp DevicesResponse
	if err := c.do(ctx, http.MethodGet, "/api/devices", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodHead, "/", nil, nil); err != nil {
		return err
	}
	return nil
}

// Version returns the xcvm server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version struct {
		Version string `json:"version"`
	}

	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}

	return version.Version, nil
}
