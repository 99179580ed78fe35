// Package resources reports host diagnostics (temperature, load, memory,
// disk) for the SBC a responder unit runs on, surfaced through
// internal/wsstatus's health check for field troubleshooting. Grounded
// on the teacher's internal/resources package, trimmed to just the
// diagnostic readers — the teacher's Monitor additionally auto-disabled
// EdgeFlow's dynamically loaded node modules under memory pressure,
// which has no equivalent here since this system has no module loader.
package resources

// DiskStats holds disk usage statistics for a single mount point.
type DiskStats struct {
	Total     uint64
	Used      uint64
	Available uint64
	Percent   float64
}
