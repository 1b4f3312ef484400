package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/healthcast-go/internal/cache"
	"github.com/irfndi/healthcast-go/internal/config"
	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/testutil"
)

func newJobStore(t *testing.T) *cache.RedisJobStore {
	t.Helper()
	client, _ := testutil.NewMiniRedis(t)
	return cache.NewRedisJobStore(client, time.Hour)
}

func testQueueConfig() TrainingQueueConfig {
	return TrainingQueueConfig{
		Workers:          1,
		QueueSize:        4,
		MaxMemoryPercent: 90,
		MemoryRetryDelay: 10 * time.Millisecond,
		JobTimeout:       5 * time.Second,
	}
}

func waitForStatus(t *testing.T, q *TrainingQueue, id string, status models.TrainingJobStatus) *models.TrainingJob {
	t.Helper()
	var job *models.TrainingJob
	require.Eventually(t, func() bool {
		var err error
		job, err = q.Job(context.Background(), id)
		return err == nil && job.Status == status
	}, 3*time.Second, 10*time.Millisecond)
	return job
}

func TestTrainingQueue_RunsAndInvalidates(t *testing.T) {
	runner := newBlockingRunner()
	invalidator := &mockInvalidator{}
	invalidator.On("Invalidate", mock.Anything, "u1").Return(2, nil)

	events, buf := eventBuffer()
	q := NewTrainingQueue(runner, newJobStore(t), invalidator, testQueueConfig(), quietLogger())
	q.SetMemoryProbe(func(ctx context.Context) (float64, error) { return 10, nil })
	q.SetEventLogger(events)
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	job, created, err := q.Submit(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.AllTargets, job.Targets)
	assert.Equal(t, models.JobQueued, job.Status)

	<-runner.started
	running := waitForStatus(t, q, job.ID, models.JobRunning)
	assert.NotNil(t, running.StartedAt)

	// resubmitting while running returns the same job
	again, created, err := q.Submit(context.Background(), "u1", []models.Target{models.TargetGut})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, job.ID, again.ID)

	close(runner.release)
	done := waitForStatus(t, q, job.ID, models.JobCompleted)
	require.NotNil(t, done.Report)
	assert.NotNil(t, done.FinishedAt)

	latest, err := q.LatestJob(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, latest.ID)

	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
	invalidator.AssertCalled(t, "Invalidate", mock.Anything, "u1")
	assert.Contains(t, buf.String(), `"job_id":"`+job.ID+`"`)
	assert.Contains(t, buf.String(), `"stage":"train"`)
}

func TestTrainingQueue_FailedJob(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = assert.AnError
	close(runner.release)

	q := NewTrainingQueue(runner, newJobStore(t), nil, testQueueConfig(), quietLogger())
	q.SetMemoryProbe(func(ctx context.Context) (float64, error) { return 10, nil })
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	job, _, err := q.Submit(context.Background(), "u1", []models.Target{models.TargetMood})
	require.NoError(t, err)

	failed := waitForStatus(t, q, job.ID, models.JobFailed)
	assert.Equal(t, assert.AnError.Error(), failed.Error)
}

func TestTrainingQueue_DefersOnMemoryPressure(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)

	probes := make(chan float64, 3)
	probes <- 97
	probes <- 95
	probes <- 40

	q := NewTrainingQueue(runner, newJobStore(t), nil, testQueueConfig(), quietLogger())
	q.SetMemoryProbe(func(ctx context.Context) (float64, error) {
		select {
		case v := <-probes:
			return v, nil
		default:
			return 40, nil
		}
	})
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	job, _, err := q.Submit(context.Background(), "u1", nil)
	require.NoError(t, err)
	waitForStatus(t, q, job.ID, models.JobCompleted)
	assert.Empty(t, probes)
}

func TestTrainingQueue_Full(t *testing.T) {
	cfg := testQueueConfig()
	cfg.QueueSize = 1
	// not started, so nothing drains the buffer
	q := NewTrainingQueue(newBlockingRunner(), newJobStore(t), nil, cfg, quietLogger())

	_, _, err := q.Submit(context.Background(), "u1", nil)
	require.NoError(t, err)
	_, _, err = q.Submit(context.Background(), "u2", nil)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, q.Pending())
}

func TestTrainingQueue_StopRejects(t *testing.T) {
	q := NewTrainingQueue(newBlockingRunner(), newJobStore(t), nil, testQueueConfig(), quietLogger())
	q.Start(context.Background())
	q.Stop()
	q.Stop()

	_, _, err := q.Submit(context.Background(), "u1", nil)
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestTrainingQueue_StopFailsBufferedJobs(t *testing.T) {
	jobs := newJobStore(t)
	// not started, so both jobs stay buffered
	q := NewTrainingQueue(newBlockingRunner(), jobs, nil, testQueueConfig(), quietLogger())

	first, _, err := q.Submit(context.Background(), "u1", nil)
	require.NoError(t, err)
	second, _, err := q.Submit(context.Background(), "u2", []models.Target{models.TargetSkin})
	require.NoError(t, err)
	require.Equal(t, 2, q.Pending())

	q.Stop()
	assert.Zero(t, q.Pending())
	for _, id := range []string{first.ID, second.ID} {
		job, err := jobs.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, job.Status)
		assert.Equal(t, ErrQueueStopped.Error(), job.Error)
		assert.NotNil(t, job.FinishedAt)
	}
}

func TestTrainingQueue_StopCancelsRunningJob(t *testing.T) {
	runner := newBlockingRunner()
	q := NewTrainingQueue(runner, newJobStore(t), nil, testQueueConfig(), quietLogger())
	q.SetMemoryProbe(func(ctx context.Context) (float64, error) { return 10, nil })
	q.Start(context.Background())

	job, _, err := q.Submit(context.Background(), "u1", nil)
	require.NoError(t, err)
	<-runner.started

	q.Stop()
	failed, err := q.Job(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, failed.Status)
	assert.Contains(t, failed.Error, "context canceled")
}

func TestTrainingQueueConfigFrom(t *testing.T) {
	cfg := TrainingQueueConfigFrom(config.TrainingConfig{
		Workers:          3,
		MemoryRetryDelay: "250ms",
		JobTimeout:       "bogus",
	})
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, 250*time.Millisecond, cfg.MemoryRetryDelay)
	assert.Equal(t, 15*time.Minute, cfg.JobTimeout)
}
