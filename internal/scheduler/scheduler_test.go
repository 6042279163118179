package scheduler_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketpipe/internal/scheduler"
)

type countingJob struct {
	name  string
	runs  int32
	err   error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	atomic.AddInt32(&j.runs, 1)
	return j.err
}

func TestSchedulerRunNowExecutesImmediately(t *testing.T) {
	s := scheduler.New(zerolog.Nop())
	job := &countingJob{name: "immediate"}

	err := s.RunNow(job)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.runs))
}

func TestSchedulerRunNowPropagatesJobError(t *testing.T) {
	s := scheduler.New(zerolog.Nop())
	job := &countingJob{name: "failing", err: errors.New("boom")}

	err := s.RunNow(job)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.runs))
}

func TestSchedulerAddJobRejectsInvalidSchedule(t *testing.T) {
	s := scheduler.New(zerolog.Nop())
	job := &countingJob{name: "bad-schedule"}

	err := s.AddJob("not a cron expression", job)
	assert.Error(t, err)
}

func TestSchedulerRunsRegisteredJobOnSchedule(t *testing.T) {
	s := scheduler.New(zerolog.Nop())
	job := &countingJob{name: "every-second"}

	require.NoError(t, s.AddJob("* * * * * *", job))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&job.runs) >= 1
	}, 3*time.Second, 50*time.Millisecond)
}
