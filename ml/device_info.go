// device_info.go
// Dieses Modul enthaelt die DeviceInfo-Struktur fuer die Auflistung
// der Geraete eines Backends (CLI "devices", Server /api/devices).

package ml

type DeviceInfo struct {
	// Name is the backend-qualified name, e.g. "native:1"
	Name string `json:"name"`

	Backend string `json:"backend"`
	Index   int    `json:"index"`

	// Host is set for the device holding host-memory arrays
	Host bool `json:"host,omitempty"`

	// Default is set for the device used by non-host allocations
	Default bool `json:"default,omitempty"`
}

// DeviceInfos describes every device of b.
func DeviceInfos(b Backend) []DeviceInfo {
	var infos []DeviceInfo
	for _, d := range b.Devices() {
		infos = append(infos, DeviceInfo{
			Name:    d.Name(),
			Backend: b.Name(),
			Index:   d.Index(),
			Host:    d.Name() == b.HostDevice().Name(),
			Default: d.Name() == b.DefaultDevice().Name(),
		})
	}
	return infos
}
