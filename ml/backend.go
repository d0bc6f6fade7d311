// backend.go - Backend-Interface und Registrierung fuer Array-Bibliotheken
// Dieses Modul definiert das Backend-Interface und die Backend-Factory-Funktionen.
package ml

import (
	"fmt"
	"slices"
)

// Backend owns the devices of one array library.
type Backend interface {
	Name() string

	// Close frees all memory associated with this backend
	Close()

	// Devices enumerates the devices available via this backend
	Devices() []Device
	Device(name string) (Device, error)

	// HostDevice is where host-flagged constants are placed
	HostDevice() Device
	DefaultDevice() Device
}

// BackendParams controls how the backend is created
type BackendParams struct {
	// NumDevices is the number of devices the backend exposes
	NumDevices int

	// DefaultDevice names the device used for non-host allocations
	DefaultDevice string
}

var backends = make(map[string]func(BackendParams) (Backend, error))

// RegisterBackend registers a backend factory function.
func RegisterBackend(name string, f func(BackendParams) (Backend, error)) {
	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

// Backends lists registered backend names.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewBackend creates a new backend instance by name.
func NewBackend(name string, params BackendParams) (Backend, error) {
	if backend, ok := backends[name]; ok {
		return backend(params)
	}

	return nil, fmt.Errorf("unsupported backend %q", name)
}
