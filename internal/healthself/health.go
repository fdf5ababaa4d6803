// Package healthself reports this process's own resource usage and host
// health, folded into the Supervisor Facade's status() response
// (spec.md §2 "Logging & Status fan-out") as a signal distinct from the
// Environment Monitor's astronomical SafetyVerdict.
package healthself

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is one point-in-time process/host health reading.
type Snapshot struct {
	CPUPercent    float64       `json:"cpu_percent"`
	MemoryPercent float64       `json:"memory_percent"`
	DiskPercent   float64       `json:"disk_percent"`
	HostUptime    time.Duration `json:"host_uptime"`
	ProcessUptime time.Duration `json:"process_uptime"`
	CollectedAt   time.Time     `json:"collected_at"`
}

// Reporter collects Snapshots. startedAt is recorded once at process
// start so ProcessUptime is relative to this supervisor run, not the
// host's boot time.
type Reporter struct {
	startedAt time.Time
	diskPath  string
}

// NewReporter builds a Reporter. diskPath is the filesystem mount to
// report disk usage for — typically the configured data directory.
func NewReporter(diskPath string) *Reporter {
	return &Reporter{startedAt: time.Now(), diskPath: diskPath}
}

// Collect takes one reading. Collection stops at the first metric that
// fails: that metric and every one read after it are left at zero, and
// the returned error names the failing metric — Collect itself never
// partially fails silently.
func (r *Reporter) Collect() (Snapshot, error) {
	now := time.Now()
	snap := Snapshot{
		ProcessUptime: now.Sub(r.startedAt),
		CollectedAt:   now,
	}

	cpuPercents, err := cpu.Percent(0, false)
	if err != nil {
		return snap, fmt.Errorf("healthself: failed to read cpu usage: %w", err)
	}
	if len(cpuPercents) > 0 {
		snap.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return snap, fmt.Errorf("healthself: failed to read memory usage: %w", err)
	}
	snap.MemoryPercent = vm.UsedPercent

	path := r.diskPath
	if path == "" {
		path = "/"
	}
	du, err := disk.Usage(path)
	if err != nil {
		return snap, fmt.Errorf("healthself: failed to read disk usage for %s: %w", path, err)
	}
	snap.DiskPercent = du.UsedPercent

	uptimeSeconds, err := host.Uptime()
	if err != nil {
		return snap, fmt.Errorf("healthself: failed to read host uptime: %w", err)
	}
	snap.HostUptime = time.Duration(uptimeSeconds) * time.Second

	return snap, nil
}

// PID returns this process's PID. It is not part of Snapshot, so status()
// does not report it.
func (r *Reporter) PID() int {
	return os.Getpid()
}
