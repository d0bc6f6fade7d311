// config_features.go - Interpreter-Schalter und Parallelitaet
//
// Dieses Modul enthaelt:
// - Diagnose-Schalter des Interpreters (Trace, Typ-, NaN- und Inf-Pruefung)
// - Anzahl der nativen Geraete
// - Parallelitaets-Einstellungen fuer Batch-Laeufe
package envconfig

// =============================================================================
// Interpreter-Diagnose
// =============================================================================

var (
	// Trace setzt die Trace-Stufe des Interpreters
	// 0 = aus, 1 = jede Instruktion, 2 = zusaetzlich Ausgabe-Shapes
	Trace = Uint("XCVM_TRACE", 0)

	// CheckTypes prueft Ausgaben gegen die deklarierten Typen der Instruktion
	CheckTypes = Bool("XCVM_CHECK_TYPES")

	// CheckNaN bricht ab, sobald eine Gleitkomma-Ausgabe NaN enthaelt
	CheckNaN = Bool("XCVM_CHECK_NANS")

	// CheckInf bricht ab, sobald eine Gleitkomma-Ausgabe Inf enthaelt
	CheckInf = Bool("XCVM_CHECK_INFS")

	// DumpMemory loggt nach jeder Instruktion die belegten Register
	DumpMemory = Bool("XCVM_DUMP_MEMORY")
)

// =============================================================================
// Geraete und Parallelitaet
// =============================================================================

var (
	// NumDevices setzt die Anzahl der Geraete des nativen Backends
	// Konfigurierbar via XCVM_NUM_DEVICES
	NumDevices = Uint("XCVM_NUM_DEVICES", 2)

	// NumParallel setzt die Anzahl gleichzeitig laufender Programme
	// Konfigurierbar via XCVM_NUM_PARALLEL
	NumParallel = Uint("XCVM_NUM_PARALLEL", 4)
)
