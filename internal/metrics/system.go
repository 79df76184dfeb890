package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemSnapshot 主机资源用量快照
type SystemSnapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

// SystemSampler reads host resource usage via gopsutil. CPU utilization is
// averaged over a fixed sampling window so threshold checks are stable.
type SystemSampler struct {
	sampleWindow time.Duration
}

const defaultSampleWindow = time.Second

func NewSystemSampler(window time.Duration) *SystemSampler {
	if window <= 0 {
		window = defaultSampleWindow
	}
	return &SystemSampler{sampleWindow: window}
}

// CPUPercent returns aggregate processor utilization over the sampling window.
func (s *SystemSampler) CPUPercent(ctx context.Context) (float64, error) {
	percentages, err := cpu.PercentWithContext(ctx, s.sampleWindow, false)
	if err != nil {
		return 0, fmt.Errorf("sample cpu: %w", err)
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("sample cpu: no data")
	}
	return percentages[0], nil
}

// MemoryPercent returns used/total memory as a percentage.
func (s *SystemSampler) MemoryPercent(ctx context.Context) (float64, error) {
	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("sample memory: %w", err)
	}
	return vmem.UsedPercent, nil
}

// DiskPercent returns used/total space at path as a percentage.
func (s *SystemSampler) DiskPercent(ctx context.Context, path string) (float64, error) {
	if path == "" {
		path = "/"
	}
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("sample disk %s: %w", path, err)
	}
	return usage.UsedPercent, nil
}

// Snapshot samples all three resources for the status endpoint and the
// websocket feed. Individual failures zero the field instead of failing the
// whole snapshot.
func (s *SystemSampler) Snapshot(ctx context.Context) SystemSnapshot {
	var snap SystemSnapshot
	if v, err := s.CPUPercent(ctx); err == nil {
		snap.CPUPercent = v
	}
	if v, err := s.MemoryPercent(ctx); err == nil {
		snap.MemoryPercent = v
	}
	if v, err := s.DiskPercent(ctx, "/"); err == nil {
		snap.DiskPercent = v
	}
	return snap
}
