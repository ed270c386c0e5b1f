package collector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/storage"
)

// HostSampler reads operating system metrics of the machine the collector
// runs on.
type HostSampler interface {
	Sample(ctx context.Context) (storage.Record, error)
}

type gopsutilSampler struct {
	cpuWindow time.Duration
	diskPath  string
}

// NewHostSampler returns a sampler that measures CPU over a one second window
// and reports usage of the root filesystem.
func NewHostSampler() HostSampler {
	return &gopsutilSampler{cpuWindow: time.Second, diskPath: "/"}
}

const (
	mib = 1 << 20
	gib = 1 << 30
)

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *gopsutilSampler) Sample(ctx context.Context) (storage.Record, error) {
	percents, err := cpu.PercentWithContext(ctx, s.cpuWindow, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	var cpuPercent float64
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to count logical cpus: %w", err)
	}
	// Physical core counts are unavailable on some platforms.
	var physical any
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		physical = n
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory usage: %w", err)
	}

	usage, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage of %s: %w", s.diskPath, err)
	}

	rec := storage.Record{
		"cpu_percent":        cpuPercent,
		"cpu_cores_logical":  logical,
		"cpu_cores_physical": physical,
		"memory_total_mb":    round2(float64(vm.Total) / mib),
		"memory_used_mb":     round2(float64(vm.Used) / mib),
		"memory_percent":     vm.UsedPercent,
		"disk_total_gb":      round2(float64(usage.Total) / gib),
		"disk_used_gb":       round2(float64(usage.Used) / gib),
		"disk_percent":       usage.UsedPercent,
	}

	rec["disk_io_read_count"] = nil
	rec["disk_io_write_count"] = nil
	rec["disk_io_read_bytes"] = nil
	rec["disk_io_write_bytes"] = nil
	if counters, err := disk.IOCountersWithContext(ctx); err == nil && len(counters) > 0 {
		var readCount, writeCount, readBytes, writeBytes uint64
		for _, c := range counters {
			readCount += c.ReadCount
			writeCount += c.WriteCount
			readBytes += c.ReadBytes
			writeBytes += c.WriteBytes
		}
		rec["disk_io_read_count"] = readCount
		rec["disk_io_write_count"] = writeCount
		rec["disk_io_read_bytes"] = readBytes
		rec["disk_io_write_bytes"] = writeBytes
	}

	return rec, nil
}
