// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	ret := map[string]EnvVar{
		"XCVM_DEBUG":        {"XCVM_DEBUG", LogLevel(), "Show additional debug information (e.g. XCVM_DEBUG=1)"},
		"XCVM_HOST":         {"XCVM_HOST", Host(), "IP Address for the xcvm server (default 127.0.0.1:11535)"},
		"XCVM_ORIGINS":      {"XCVM_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"XCVM_DEVICE":       {"XCVM_DEVICE", Device(), "Device for arrays not placed on the host (default native:0)"},
		"XCVM_NUM_DEVICES":  {"XCVM_NUM_DEVICES", NumDevices(), "Number of devices exposed by the native backend (default 2)"},
		"XCVM_NUM_PARALLEL": {"XCVM_NUM_PARALLEL", NumParallel(), "Maximum number of programs run concurrently"},
		"XCVM_TRACE":        {"XCVM_TRACE", Trace(), "Trace level of the interpreter (1 instructions, 2 also outputs)"},
		"XCVM_CHECK_TYPES":  {"XCVM_CHECK_TYPES", CheckTypes(), "Validate outputs against declared output types"},
		"XCVM_CHECK_NANS":   {"XCVM_CHECK_NANS", CheckNaN(), "Abort when an output contains NaN"},
		"XCVM_CHECK_INFS":   {"XCVM_CHECK_INFS", CheckInf(), "Abort when an output contains Inf"},
		"XCVM_DUMP_MEMORY":  {"XCVM_DUMP_MEMORY", DumpMemory(), "Log live registers after every instruction"},
	}

	return ret
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
