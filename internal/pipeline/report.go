package pipeline

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/marketpipe/internal/store"
)

// PhaseSummary is one phase's per-run tally, the shape persisted as one
// UpdateLog row and surfaced in the run report.
type PhaseSummary struct {
	Name             string
	Status           store.UpdateStatus
	RecordsProcessed int
	TickersAffected  []string
	Deferred         []string
	ErrorMessage     string
	StartedAt        time.Time
	CompletedAt      time.Time
}

func (p PhaseSummary) durationMs() int64 {
	return p.CompletedAt.Sub(p.StartedAt).Milliseconds()
}

// ResourceSnapshot captures host resource usage at run completion, grounded
// on this codebase's existing system-stats endpoint (CPU percent over a
// short sampling window, plus virtual memory usage percent).
type ResourceSnapshot struct {
	CPUPercent    float64
	MemoryPercent float64
}

// captureResourceSnapshot samples host CPU/memory the same way this
// codebase's system handlers do for its dashboard: a short blocking CPU
// sample (100ms) followed by an instantaneous memory read. Failures degrade
// to zero values rather than failing the run — this is diagnostic
// information, never load-bearing for pipeline correctness.
func captureResourceSnapshot(log zerolog.Logger) ResourceSnapshot {
	var snap ResourceSnapshot

	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		log.Warn().Err(err).Msg("failed to sample CPU percent")
	} else if len(cpuPercent) > 0 {
		snap.CPUPercent = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("failed to sample memory statistics")
	} else {
		snap.MemoryPercent = memStat.UsedPercent
	}

	return snap
}

// RunReport is the full outcome of one orchestrated run, returned by
// Orchestrator.Run for callers (cmd/pipeline, tests) that want more than
// the persisted UpdateLog rows.
type RunReport struct {
	RunID      string
	Status     store.UpdateStatus
	TradingDay bool
	Phases     []PhaseSummary
	Resources  ResourceSnapshot
	StartedAt   time.Time
	CompletedAt time.Time
}
