package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pulse/internal/models"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceSampler reads host resource utilization
type ResourceSampler interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	DiskPercent(ctx context.Context) (float64, error)
	NetworkPercent(ctx context.Context) (float64, error)
	ProcessCount(ctx context.Context) (int, error)
}

// HostSampler reads the local host through gopsutil
type HostSampler struct {
	diskPath     string
	capacityMbps float64

	mu       sync.Mutex
	lastSent uint64
	lastRecv uint64
	lastTime time.Time
	now      func() time.Time
}

// NewHostSampler creates a sampler for the disk mounted at diskPath and a
// network link of capacityMbps
func NewHostSampler(diskPath string, capacityMbps float64) *HostSampler {
	if diskPath == "" {
		diskPath = "/"
	}
	if capacityMbps <= 0 {
		capacityMbps = 1000
	}
	return &HostSampler{
		diskPath:     diskPath,
		capacityMbps: capacityMbps,
		now:          time.Now,
	}
}

// CPUPercent returns overall CPU usage
func (h *HostSampler) CPUPercent(ctx context.Context) (float64, error) {
	percentage, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percentage) == 0 {
		return 0, fmt.Errorf("no cpu usage reported")
	}
	return percentage[0], nil
}

// MemoryPercent returns used virtual memory
func (h *HostSampler) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// DiskPercent returns usage of the configured mount point
func (h *HostSampler) DiskPercent(ctx context.Context) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, h.diskPath)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// NetworkPercent returns combined send and receive throughput as a share of
// link capacity, measured since the previous call. The first call returns 0.
func (h *HostSampler) NetworkPercent(ctx context.Context) (float64, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, err
	}
	var sent, recv uint64
	for _, c := range counters {
		sent += c.BytesSent
		recv += c.BytesRecv
	}
	return h.networkShare(sent, recv), nil
}

func (h *HostSampler) networkShare(sent, recv uint64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	defer func() {
		h.lastSent, h.lastRecv, h.lastTime = sent, recv, now
	}()

	if h.lastTime.IsZero() {
		return 0
	}
	elapsed := now.Sub(h.lastTime).Seconds()
	if elapsed <= 0 || sent < h.lastSent || recv < h.lastRecv {
		// counter reset
		return 0
	}

	bytesPerSec := float64((sent-h.lastSent)+(recv-h.lastRecv)) / elapsed
	share := bytesPerSec * 8 / (h.capacityMbps * 1e6) * 100
	if share > 100 {
		share = 100
	}
	return share
}

// ProcessCount returns the number of running processes
func (h *HostSampler) ProcessCount(ctx context.Context) (int, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return len(pids), nil
}

// ReadHostUsage takes one reading of every resource. Failed readings are
// reported in Errors and left at zero.
func ReadHostUsage(ctx context.Context, s ResourceSampler) models.HostUsage {
	u := models.HostUsage{Timestamp: time.Now()}
	record := func(name string, err error) {
		if err != nil {
			u.Errors = append(u.Errors, fmt.Sprintf("%s: %v", name, err))
		}
	}

	var err error
	u.CPUPercent, err = s.CPUPercent(ctx)
	record("cpu", err)
	u.MemoryPercent, err = s.MemoryPercent(ctx)
	record("memory", err)
	u.DiskPercent, err = s.DiskPercent(ctx)
	record("storage", err)
	u.NetworkPercent, err = s.NetworkPercent(ctx)
	record("network", err)
	u.ProcessCount, err = s.ProcessCount(ctx)
	record("processes", err)
	return u
}
