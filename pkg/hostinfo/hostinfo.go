// Package hostinfo describes the machine a simulation ran on.
package hostinfo

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Info is a snapshot of the host
type Info struct {
	Timestamp time.Time  `json:"timestamp"`
	Host      HostInfo   `json:"host"`
	CPU       CPUInfo    `json:"cpu"`
	Memory    MemoryInfo `json:"memory"`
	Runtime   GoRuntime  `json:"runtime"`
}

// HostInfo contains host information
type HostInfo struct {
	Hostname        string `json:"hostname"`
	Uptime          uint64 `json:"uptime"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Architecture    string `json:"architecture"`
}

// CPUInfo contains CPU information
type CPUInfo struct {
	PhysicalCores int     `json:"physical_cores"`
	LogicalCores  int     `json:"logical_cores"`
	ModelName     string  `json:"model_name"`
	Frequency     float64 `json:"frequency_mhz"`
}

// MemoryInfo contains memory information
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

// GoRuntime describes the Go runtime the simulator uses for workers
type GoRuntime struct {
	Version    string `json:"version"`
	GOMAXPROCS int    `json:"gomaxprocs"`
	Goroutines int    `json:"goroutines"`
}

// Collect gathers what the platform exposes. Probes that fail leave their
// fields zero.
func Collect(ctx context.Context) Info {
	info := Info{
		Timestamp: time.Now(),
		Host:      HostInfo{Architecture: runtime.GOARCH, OS: runtime.GOOS},
		Runtime: GoRuntime{
			Version:    runtime.Version(),
			GOMAXPROCS: runtime.GOMAXPROCS(0),
			Goroutines: runtime.NumGoroutine(),
		},
	}

	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		info.Host.Hostname = hostInfo.Hostname
		info.Host.Uptime = hostInfo.Uptime
		info.Host.OS = hostInfo.OS
		info.Host.Platform = hostInfo.Platform
		info.Host.PlatformVersion = hostInfo.PlatformVersion
		info.Host.KernelVersion = hostInfo.KernelVersion
	}

	if cores, err := cpu.CountsWithContext(ctx, false); err == nil {
		info.CPU.PhysicalCores = cores
	}
	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPU.LogicalCores = cores
	}
	if cpuInfo, err := cpu.InfoWithContext(ctx); err == nil && len(cpuInfo) > 0 {
		info.CPU.ModelName = cpuInfo[0].ModelName
		info.CPU.Frequency = cpuInfo[0].Mhz
	}

	if vmStat, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.Memory = MemoryInfo{
			Total:       vmStat.Total,
			Available:   vmStat.Available,
			UsedPercent: vmStat.UsedPercent,
		}
	}

	return info
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
