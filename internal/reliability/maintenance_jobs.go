// Package reliability holds the scheduled housekeeping jobs that keep the
// pipeline's single SQLite store healthy between runs: integrity checks,
// WAL checkpointing, disk-space monitoring, and periodic VACUUM.
package reliability

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketpipe/internal/store"
)

// minAvailableGB / lowDiskWarnGB are the disk-space thresholds: below the
// first, maintenance halts and reports an error rather than risking a
// corrupt write; below the second, it proceeds but logs a warning.
const (
	minAvailableGB = 0.5
	lowDiskWarnGB  = 5.0
)

// DailyMaintenanceJob runs an integrity check, a WAL checkpoint, and a
// disk-space check against the pipeline's store. Scheduled once a day,
// outside the pipeline's own run window.
type DailyMaintenanceJob struct {
	db  *store.DB
	log zerolog.Logger
}

// NewDailyMaintenanceJob builds a DailyMaintenanceJob over db.
func NewDailyMaintenanceJob(db *store.DB, log zerolog.Logger) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{db: db, log: log.With().Str("job", "daily_maintenance").Logger()}
}

// Name identifies this job to the scheduler.
func (j *DailyMaintenanceJob) Name() string { return "daily_maintenance" }

// Run executes the daily maintenance pass.
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("starting daily maintenance")
	started := time.Now()

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if err := j.db.HealthCheck(context.Background()); err != nil {
		j.log.Error().Err(err).Msg("store integrity check failed")
		return fmt.Errorf("store integrity check failed: %w", err)
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	j.log.Info().Dur("duration_ms", time.Since(started)).Msg("daily maintenance completed")
	return nil
}

// checkDiskSpace halts maintenance (and, by returning an error, the
// scheduled job chain) when the filesystem backing the store is nearly
// full — a state that turns the next write into a corrupt one rather than
// a clean failure.
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(j.db.Path(), &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem for %s: %w", j.db.Path(), err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("disk space check")

	if availableGB < minAvailableGB {
		j.log.Error().Float64("available_gb", availableGB).Msg("critical: insufficient disk space")
		return fmt.Errorf("only %.2f GB free, refusing to run maintenance", availableGB)
	}
	if availableGB < lowDiskWarnGB {
		j.log.Warn().Float64("available_gb", availableGB).Msg("disk space running low")
	}
	return nil
}

// WeeklyMaintenanceJob runs VACUUM against the store, reclaiming space
// freed by the week's churn of daily_charts and update_log rows.
type WeeklyMaintenanceJob struct {
	db  *store.DB
	log zerolog.Logger
}

// NewWeeklyMaintenanceJob builds a WeeklyMaintenanceJob over db.
func NewWeeklyMaintenanceJob(db *store.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{db: db, log: log.With().Str("job", "weekly_maintenance").Logger()}
}

// Name identifies this job to the scheduler.
func (j *WeeklyMaintenanceJob) Name() string { return "weekly_maintenance" }

// Run executes the weekly VACUUM pass.
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("starting weekly maintenance")
	started := time.Now()

	if err := j.db.Vacuum(); err != nil {
		j.log.Error().Err(err).Msg("VACUUM failed")
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	j.log.Info().Dur("duration_ms", time.Since(started)).Msg("weekly maintenance completed")
	return nil
}
