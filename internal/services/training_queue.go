package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/config"
	"github.com/irfndi/healthcast-go/internal/logging"
	"github.com/irfndi/healthcast-go/internal/models"
)

var (
	// ErrQueueFull is returned when no more jobs can be buffered
	ErrQueueFull = errors.New("training queue is full")
	// ErrQueueStopped is returned after Stop
	ErrQueueStopped = errors.New("training queue is stopped")
)

// TrainingRunner trains one user
type TrainingRunner interface {
	TrainUser(ctx context.Context, userID string, targets []models.Target) (*models.TrainingReport, error)
}

// JobStore keeps job status where API handlers can read it
type JobStore interface {
	Save(ctx context.Context, job *models.TrainingJob) error
	Get(ctx context.Context, id string) (*models.TrainingJob, error)
	Latest(ctx context.Context, userID string) (*models.TrainingJob, error)
}

// ModelInvalidator drops state derived from a user's previous models
type ModelInvalidator interface {
	Invalidate(ctx context.Context, userID string) (int, error)
}

// MemoryProbe returns the host's used memory in percent
type MemoryProbe func(ctx context.Context) (float64, error)

// HostMemoryUsage reads used memory from the OS
func HostMemoryUsage(ctx context.Context) (float64, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get memory usage: %w", err)
	}
	return v.UsedPercent, nil
}

// TrainingQueueConfig sizes the worker pool
type TrainingQueueConfig struct {
	Workers          int
	QueueSize        int
	MaxMemoryPercent float64
	MemoryRetryDelay time.Duration
	JobTimeout       time.Duration
}

// DefaultTrainingQueueConfig runs 2 workers over a 64 job buffer
func DefaultTrainingQueueConfig() TrainingQueueConfig {
	return TrainingQueueConfig{
		Workers:          2,
		QueueSize:        64,
		MaxMemoryPercent: 90,
		MemoryRetryDelay: 5 * time.Second,
		JobTimeout:       15 * time.Minute,
	}
}

// TrainingQueueConfigFrom maps the training section of the service configuration.
// Durations were validated at load time.
func TrainingQueueConfigFrom(cfg config.TrainingConfig) TrainingQueueConfig {
	out := DefaultTrainingQueueConfig()
	if cfg.Workers > 0 {
		out.Workers = cfg.Workers
	}
	if cfg.QueueSize > 0 {
		out.QueueSize = cfg.QueueSize
	}
	if cfg.MaxMemoryPercent > 0 {
		out.MaxMemoryPercent = cfg.MaxMemoryPercent
	}
	if d, err := time.ParseDuration(cfg.MemoryRetryDelay); err == nil && d > 0 {
		out.MemoryRetryDelay = d
	}
	if d, err := time.ParseDuration(cfg.JobTimeout); err == nil && d > 0 {
		out.JobTimeout = d
	}
	return out
}

// TrainingQueue runs training jobs on a bounded worker pool. A user has at
// most one queued or running job; resubmitting returns the existing one.
type TrainingQueue struct {
	runner      TrainingRunner
	jobs        JobStore
	invalidator ModelInvalidator
	memory      MemoryProbe
	cfg         TrainingQueueConfig
	logger      *logrus.Logger
	events      *logging.StandardLogger
	now         func() time.Time

	queue chan *models.TrainingJob

	mu      sync.Mutex
	active  map[string]*models.TrainingJob
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTrainingQueue creates a queue. invalidator may be nil.
func NewTrainingQueue(runner TrainingRunner, jobs JobStore, invalidator ModelInvalidator, cfg TrainingQueueConfig, logger *logrus.Logger) *TrainingQueue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &TrainingQueue{
		runner:      runner,
		jobs:        jobs,
		invalidator: invalidator,
		memory:      HostMemoryUsage,
		cfg:         cfg,
		logger:      logger,
		events:      logging.Discard(),
		now:         time.Now,
		queue:       make(chan *models.TrainingJob, cfg.QueueSize),
		active:      make(map[string]*models.TrainingJob),
	}
}

// SetMemoryProbe replaces the host memory reader
func (q *TrainingQueue) SetMemoryProbe(probe MemoryProbe) {
	q.memory = probe
}

// SetEventLogger emits a pipeline event per finished job
func (q *TrainingQueue) SetEventLogger(events *logging.StandardLogger) {
	q.events = events
}

// Start launches the workers. They stop when ctx ends or Stop is called.
func (q *TrainingQueue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.logger.WithField("workers", q.cfg.Workers).Info("Training queue started")
}

// Stop rejects new jobs, cancels running ones and waits for workers to exit.
// Jobs still buffered are stored as failed with ErrQueueStopped.
func (q *TrainingQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()

	drained := 0
drain:
	for {
		select {
		case job := <-q.queue:
			q.fail(job, ErrQueueStopped, q.logger.WithFields(logrus.Fields{
				"job_id":  job.ID,
				"user_id": job.UserID,
			}))
			q.release(job.UserID)
			drained++
		default:
			break drain
		}
	}
	q.logger.WithField("drained", drained).Info("Training queue stopped")
}

// Submit enqueues a training job for the user. When the user already has a
// queued or running job that job is returned with created false.
func (q *TrainingQueue) Submit(ctx context.Context, userID string, targets []models.Target) (job *models.TrainingJob, created bool, err error) {
	if len(targets) == 0 {
		targets = append([]models.Target(nil), models.AllTargets...)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return nil, false, ErrQueueStopped
	}
	if existing, ok := q.active[userID]; ok {
		snapshot := *existing
		return &snapshot, false, nil
	}

	job = &models.TrainingJob{
		ID:          uuid.New().String(),
		UserID:      userID,
		Targets:     targets,
		Status:      models.JobQueued,
		SubmittedAt: q.now().UTC(),
	}
	select {
	case q.queue <- job:
	default:
		return nil, false, ErrQueueFull
	}
	q.active[userID] = job

	// workers block on q.mu before touching the job, so this write lands first
	entry := q.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"user_id": userID,
		"targets": targets,
	})
	if err := q.jobs.Save(ctx, job); err != nil {
		entry.WithError(err).Warn("Failed to store job status")
	}
	entry.Info("Queued training job")
	snapshot := *job
	return &snapshot, true, nil
}

// Job returns a job's stored status
func (q *TrainingQueue) Job(ctx context.Context, id string) (*models.TrainingJob, error) {
	return q.jobs.Get(ctx, id)
}

// LatestJob returns the user's most recent job
func (q *TrainingQueue) LatestJob(ctx context.Context, userID string) (*models.TrainingJob, error) {
	return q.jobs.Latest(ctx, userID)
}

// Pending reports how many jobs are queued or running
func (q *TrainingQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

func (q *TrainingQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.queue:
			q.run(ctx, job, id)
		}
	}
}

func (q *TrainingQueue) run(ctx context.Context, job *models.TrainingJob, workerID int) {
	entry := q.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"user_id": job.UserID,
		"worker":  workerID,
	})
	defer q.release(job.UserID)

	if err := q.waitForMemory(ctx, entry); err != nil {
		q.fail(job, err, entry)
		return
	}

	started := q.now().UTC()
	q.update(job, func(j *models.TrainingJob) {
		j.Status = models.JobRunning
		j.StartedAt = &started
	})
	q.save(job, entry)
	q.events.WithJob(job.ID).Info("Training job started", "user_id", job.UserID, "worker", workerID)

	runCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	report, err := q.runner.TrainUser(runCtx, job.UserID, job.Targets)
	cancel()
	if err != nil {
		q.fail(job, err, entry)
		return
	}

	if q.invalidator != nil {
		if _, err := q.invalidator.Invalidate(ctx, job.UserID); err != nil {
			entry.WithError(err).Warn("Failed to invalidate cached models")
		}
	}

	finished := q.now().UTC()
	q.update(job, func(j *models.TrainingJob) {
		j.Status = models.JobCompleted
		j.Report = report
		j.FinishedAt = &finished
	})
	q.save(job, entry)
	entry.WithFields(logrus.Fields{
		"trained": len(report.Trained),
		"skipped": len(report.Skipped),
	}).Info("Training job completed")
	q.events.LogPipelineEvent("train", job.UserID, map[string]interface{}{
		"job_id":      job.ID,
		"status":      models.JobCompleted,
		"trained":     len(report.Trained),
		"skipped":     len(report.Skipped),
		"duration_ms": finished.Sub(started).Milliseconds(),
	})
}

// waitForMemory blocks while host memory is above the configured ceiling.
// A probe error lets the job run.
func (q *TrainingQueue) waitForMemory(ctx context.Context, entry *logrus.Entry) error {
	if q.memory == nil || q.cfg.MaxMemoryPercent <= 0 {
		return nil
	}
	for {
		used, err := q.memory(ctx)
		if err != nil {
			entry.WithError(err).Warn("Memory probe failed, running job anyway")
			return nil
		}
		if used <= q.cfg.MaxMemoryPercent {
			return nil
		}
		entry.WithFields(logrus.Fields{
			"memory_percent": used,
			"limit_percent":  q.cfg.MaxMemoryPercent,
		}).Warn("Host memory above limit, deferring training job")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(q.cfg.MemoryRetryDelay):
		}
	}
}

func (q *TrainingQueue) fail(job *models.TrainingJob, err error, entry *logrus.Entry) {
	finished := q.now().UTC()
	q.update(job, func(j *models.TrainingJob) {
		j.Status = models.JobFailed
		j.Error = err.Error()
		j.FinishedAt = &finished
	})
	q.save(job, entry)
	entry.WithError(err).Error("Training job failed")
	q.events.WithError(err).Error("Training job failed", "job_id", job.ID, "user_id", job.UserID)
}

func (q *TrainingQueue) update(job *models.TrainingJob, fn func(*models.TrainingJob)) {
	q.mu.Lock()
	fn(job)
	q.mu.Unlock()
}

// save writes status with a fresh context so a cancelled run still records its outcome
func (q *TrainingQueue) save(job *models.TrainingJob, entry *logrus.Entry) {
	q.mu.Lock()
	snapshot := *job
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.jobs.Save(ctx, &snapshot); err != nil {
		entry.WithError(err).Warn("Failed to store job status")
	}
}

func (q *TrainingQueue) release(userID string) {
	q.mu.Lock()
	delete(q.active, userID)
	q.mu.Unlock()
}
