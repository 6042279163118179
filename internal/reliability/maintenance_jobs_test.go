package reliability_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketpipe/internal/reliability"
	pipelinetesting "github.com/aristath/marketpipe/internal/testing"
)

func TestDailyMaintenanceJobRunsCleanlyOnHealthyStore(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "daily_maintenance")
	defer cleanup()

	job := reliability.NewDailyMaintenanceJob(db, zerolog.Nop())
	assert.Equal(t, "daily_maintenance", job.Name())

	err := job.Run()
	require.NoError(t, err)
}

func TestWeeklyMaintenanceJobVacuumsCleanly(t *testing.T) {
	db, cleanup := pipelinetesting.NewTestStore(t, "weekly_maintenance")
	defer cleanup()

	job := reliability.NewWeeklyMaintenanceJob(db, zerolog.Nop())
	assert.Equal(t, "weekly_maintenance", job.Name())

	err := job.Run()
	require.NoError(t, err)
}
