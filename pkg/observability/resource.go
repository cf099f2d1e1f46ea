package observability

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/qaforge/qaforge/pkg/qaerrors"
)

// ResourceSnapshot is a point-in-time view of host and process pressure,
// attached to health-check logging so operators can correlate pool sizing
// decisions with machine load.
type ResourceSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryUsedMB  uint64    `json:"memory_used_mb"`
	MemoryPercent float64   `json:"memory_percent"`
	Goroutines    int       `json:"goroutines"`
}

// SnapshotResources samples current CPU and memory usage.
func SnapshotResources(ctx context.Context) (ResourceSnapshot, error) {
	snap := ResourceSnapshot{
		Timestamp:  time.Now(),
		Goroutines: runtime.NumGoroutine(),
	}

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return snap, qaerrors.Wrap(err, qaerrors.ErrorTypeInternal, "cpu sampling failed")
	}
	if len(cpuPercents) > 0 {
		snap.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, qaerrors.Wrap(err, qaerrors.ErrorTypeInternal, "memory sampling failed")
	}
	snap.MemoryUsedMB = vm.Used / (1 << 20)
	snap.MemoryPercent = vm.UsedPercent

	return snap, nil
}

// Fields renders the snapshot as structured log fields.
func (s ResourceSnapshot) Fields() []zap.Field {
	return []zap.Field{
		zap.Float64("cpu_percent", s.CPUPercent),
		zap.Uint64("memory_used_mb", s.MemoryUsedMB),
		zap.Float64("memory_percent", s.MemoryPercent),
		zap.Int("goroutines", s.Goroutines),
	}
}
