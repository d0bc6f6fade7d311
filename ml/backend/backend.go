// Package backend registriert die eingebauten Array-Backends.
package backend

import (
	"github.com/ollama/xcvm/envconfig"
	"github.com/ollama/xcvm/ml"
	"github.com/ollama/xcvm/ml/backend/cpu"
)

// FromEnvironment creates the native backend with XCVM_NUM_DEVICES devices
// and XCVM_DEVICE as the default device.
func FromEnvironment() (ml.Backend, error) {
	return ml.NewBackend(cpu.Name, ml.BackendParams{
		NumDevices:    int(envconfig.NumDevices()),
		DefaultDevice: envconfig.Device(),
	})
}
