package server

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// memoryStatus returns current system memory usage for /api/status.
// Metrics are best-effort: stats failures return nil and the status
// payload renders without the memory block.
func memoryStatus() *MemoryStatus {
	v, err := mem.VirtualMemory()
	if err != nil || v.Total == 0 {
		return nil
	}

	totalGB := float64(v.Total) / 1024 / 1024 / 1024
	usedGB := float64(v.Total-v.Available) / 1024 / 1024 / 1024

	return &MemoryStatus{
		UsedGB:  usedGB,
		TotalGB: totalGB,
		Percent: (usedGB / totalGB) * 100,
	}
}
