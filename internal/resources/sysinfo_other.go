//go:build !linux

package resources

import (
	"os"
	"runtime"
)

// SystemInfo holds system hardware information (non-Linux, limited).
type SystemInfo struct {
	Hostname    string  `json:"hostname"`
	OS          string  `json:"os"`
	Arch        string  `json:"arch"`
	Uptime      uint64  `json:"uptime_seconds"`
	Temperature float64 `json:"temperature"`
	LoadAvg1    float64 `json:"load_avg_1"`
	LoadAvg5    float64 `json:"load_avg_5"`
	LoadAvg15   float64 `json:"load_avg_15"`
	BoardModel  string  `json:"board_model"`

	OSMemTotal     uint64  `json:"os_mem_total"`
	OSMemUsed      uint64  `json:"os_mem_used"`
	OSMemFree      uint64  `json:"os_mem_free"`
	OSMemAvailable uint64  `json:"os_mem_available"`
	OSMemPercent   float64 `json:"os_mem_percent"`
	OSSwapTotal    uint64  `json:"os_swap_total"`
	OSSwapUsed     uint64  `json:"os_swap_used"`

	CPUUsagePercent float64 `json:"cpu_usage_percent"`

	NetRxBytes uint64 `json:"net_rx_bytes"`
	NetTxBytes uint64 `json:"net_tx_bytes"`
}

// GetSystemInfo returns system information derived from the Go runtime
// since there's no /proc to read outside Linux.
func GetSystemInfo() SystemInfo {
	hostname, _ := os.Hostname()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return SystemInfo{
		Hostname:        hostname,
		OS:              runtime.GOOS,
		Arch:            runtime.GOARCH,
		BoardModel:      runtime.GOOS + "/" + runtime.GOARCH,
		OSMemTotal:      memStats.Sys,
		OSMemUsed:       memStats.Alloc,
		OSMemFree:       memStats.Sys - memStats.Alloc,
		OSMemAvailable:  memStats.Sys - memStats.Alloc,
		OSMemPercent:    float64(memStats.Alloc) / float64(memStats.Sys) * 100,
		CPUUsagePercent: 0,
	}
}

// GetDiskUsage returns a zeroed DiskStats off Linux, where there's no
// portable syscall for free space without an extra dependency.
func GetDiskUsage(path string) DiskStats {
	return DiskStats{}
}
