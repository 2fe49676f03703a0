// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SupervisorConfig holds the worker/retry defaults from §5 and §6 of the
// configuration surface.
type SupervisorConfig struct {
	Workers         int
	SoftTimeLimit   time.Duration
	HardTimeLimit   time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	IdempotencyTTL  time.Duration
	DegradationTTL  time.Duration
}

// DefaultSupervisorConfig returns the documented defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Workers:        4,
		SoftTimeLimit:  540 * time.Second,
		HardTimeLimit:  600 * time.Second,
		MaxRetries:     3,
		RetryBackoff:   60 * time.Second,
		IdempotencyTTL: DefaultIdempotencyTTL,
		DegradationTTL: DefaultDegradationTTL,
	}
}

type workItem struct {
	jobID   string
	attempt int
}

// Supervisor receives submissions, checks the idempotency store, enqueues
// work, and owns each job's lifecycle and status reporting (C10).
type Supervisor struct {
	cfg            SupervisorConfig
	fingerprinter  *Fingerprinter
	validator      *InputValidator
	idempotency    *IdempotencyStore
	degradation    *DegradationStore
	jobs           *JobStore
	hub            *EventHub
	classifier     *ErrorClassifier
	pipelineFor    func() *StagePipeline
	logger         *slog.Logger

	queue       chan workItem
	cancelFlags sync.Map // jobID -> *atomic.Bool

	startOnce sync.Once
	group     *errgroup.Group
	groupCtx  context.Context
	stop      context.CancelFunc
}

// NewSupervisor constructs a Supervisor. pipelineFor is called once per job
// execution (not once per process) so callers can build a fresh
// StageContext-free pipeline instance per call if components are stateful;
// a supplier that always returns the same *StagePipeline is equally valid.
func NewSupervisor(cfg SupervisorConfig, fp *Fingerprinter, validator *InputValidator, idempotency *IdempotencyStore, degradation *DegradationStore, jobs *JobStore, hub *EventHub, classifier *ErrorClassifier, pipelineFor func() *StagePipeline, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:           cfg,
		fingerprinter: fp,
		validator:     validator,
		idempotency:   idempotency,
		degradation:   degradation,
		jobs:          jobs,
		hub:           hub,
		classifier:    classifier,
		pipelineFor:   pipelineFor,
		logger:        logger,
		queue:         make(chan workItem, 1024),
	}
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	JobID          string
	IdempotencyKey string
	Status         JobStatus
	FromCache      bool
	Result         *AnalysisResult
}

// Submit implements the C10 submission algorithm: compute the idempotency
// key, check C2, and either return the cached result immediately or persist
// a PENDING job and enqueue it.
func (s *Supervisor) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	idempotencyKey := s.fingerprinter.IdempotencyKey(in.ShopName, in.ShopSpecialization, in.PolicyType, in.PolicyText)
	contentHash := s.fingerprinter.ContentHash(in.PolicyText)

	if cached, err := s.idempotency.Get(ctx, idempotencyKey); err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	} else if cached != nil {
		cached.FromCache = true
		return &SubmitResult{IdempotencyKey: idempotencyKey, Status: StatusCompleted, FromCache: true, Result: cached}, nil
	}

	jobID := uuid.NewString()
	job := &Job{
		JobID:              jobID,
		ShopName:           in.ShopName,
		ShopSpecialization: in.ShopSpecialization,
		PolicyType:         in.PolicyType,
		PolicyText:         in.PolicyText,
		IdempotencyKey:     idempotencyKey,
		ContentHash:        contentHash,
		Status:             StatusPending,
		TotalStages:        5,
		CreatedAt:          time.Now(),
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	select {
	case s.queue <- workItem{jobID: jobID}:
	default:
		return nil, fmt.Errorf("work queue is full")
	}

	return &SubmitResult{JobID: jobID, IdempotencyKey: idempotencyKey, Status: StatusPending}, nil
}

// ForceNew bypasses the idempotency-store check but still writes to it (and
// to the degradation store) on completion, implementing the "re-run
// ignoring C2" operation. Rate limiting is the HTTP layer's concern.
func (s *Supervisor) ForceNew(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	idempotencyKey := s.fingerprinter.IdempotencyKey(in.ShopName, in.ShopSpecialization, in.PolicyType, in.PolicyText)
	contentHash := s.fingerprinter.ContentHash(in.PolicyText)

	jobID := uuid.NewString()
	job := &Job{
		JobID:              jobID,
		ShopName:           in.ShopName,
		ShopSpecialization: in.ShopSpecialization,
		PolicyType:         in.PolicyType,
		PolicyText:         in.PolicyText,
		IdempotencyKey:     idempotencyKey,
		ContentHash:        contentHash,
		Status:             StatusPending,
		TotalStages:        5,
		CreatedAt:          time.Now(),
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}
	select {
	case s.queue <- workItem{jobID: jobID}:
	default:
		return nil, fmt.Errorf("work queue is full")
	}
	return &SubmitResult{JobID: jobID, IdempotencyKey: idempotencyKey, Status: StatusPending}, nil
}

// Snapshot returns the current job record, for the status endpoint and for
// stream replay after termination.
func (s *Supervisor) Snapshot(ctx context.Context, jobID string) (*Job, error) {
	return s.jobs.Load(ctx, jobID)
}

// Cancel sets jobID's best-effort cancellation flag. It has no effect if the
// job is not currently tracked (e.g. already terminal).
func (s *Supervisor) Cancel(jobID string) {
	if v, ok := s.cancelFlags.Load(jobID); ok {
		v.(*atomic.Bool).Store(true)
	}
}

func (s *Supervisor) isCancelled(jobID string) bool {
	v, ok := s.cancelFlags.Load(jobID)
	if !ok {
		return false
	}
	return v.(*atomic.Bool).Load()
}

// Start launches cfg.Workers worker goroutines draining the queue. It
// returns immediately; call Stop or cancel ctx to stop.
func (s *Supervisor) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		groupCtx, cancel := context.WithCancel(ctx)
		group, groupCtx := errgroup.WithContext(groupCtx)
		s.groupCtx = groupCtx
		s.stop = cancel
		s.group = group

		workers := s.cfg.Workers
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			group.Go(func() error {
				s.workerLoop(groupCtx)
				return nil
			})
		}
	})
}

// Stop signals every worker to exit and waits for them to drain in-flight
// work.
func (s *Supervisor) Stop() error {
	if s.stop == nil {
		return nil
	}
	s.stop()
	return s.group.Wait()
}

func (s *Supervisor) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.queue:
			s.runJob(ctx, item)
		}
	}
}

func (s *Supervisor) runJob(ctx context.Context, item workItem) {
	job, err := s.jobs.Load(ctx, item.jobID)
	if err != nil || job == nil {
		s.logger.Error("worker could not load job", "job_id", item.jobID, "error", err)
		return
	}

	flag := &atomic.Bool{}
	s.cancelFlags.Store(job.JobID, flag)
	defer s.cancelFlags.Delete(job.JobID)

	job.Status = StatusRunning
	_ = s.jobs.Save(ctx, job)

	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.HardTimeLimit)
	defer cancel()

	if verr := s.validator.Validate(SubmitInput{
		ShopName:           job.ShopName,
		ShopSpecialization: job.ShopSpecialization,
		PolicyType:         job.PolicyType,
		PolicyText:         job.PolicyText,
	}); verr != nil {
		rec := verr.ToErrorRecord()
		s.finishFailed(ctx, job, rec)
		return
	}

	sc := &StageContext{
		Ctx:         jobCtx,
		Job:         job,
		IsCancelled: func() bool { return flag.Load() || s.isCancelled(job.JobID) },
	}

	pipeline := s.pipelineFor()
	result, errRec := pipeline.Run(sc, func(current, total int, status string) {
		job.CurrentStage = current
		job.TotalStages = total
		job.ProgressMessage = status
		_ = s.jobs.Save(ctx, job)
		s.hub.Publish(job.JobID, EventProgress, ProgressPayload{Current: current, Total: total, Status: status, ShopName: job.ShopName})
	})

	if errRec != nil {
		if errRec.Kind.Retryable() && item.attempt < s.cfg.MaxRetries {
			s.logger.Info("retrying job after transient failure", "job_id", job.JobID, "attempt", item.attempt+1, "kind", errRec.Kind)
			go func() {
				time.Sleep(s.cfg.RetryBackoff * time.Duration(1<<item.attempt))
				select {
				case s.queue <- workItem{jobID: job.JobID, attempt: item.attempt + 1}:
				case <-ctx.Done():
				}
			}()
			return
		}
		s.finishFailed(ctx, job, errRec)
		return
	}

	s.finishCompleted(ctx, job, result)
}

func (s *Supervisor) finishCompleted(ctx context.Context, job *Job, result *AnalysisResult) {
	job.Status = StatusCompleted
	job.Result = result
	_ = s.jobs.Save(ctx, job)

	if err := s.idempotency.Store(ctx, job.IdempotencyKey, result, s.cfg.IdempotencyTTL); err != nil {
		s.logger.Warn("failed to write idempotency record", "job_id", job.JobID, "error", err)
	}
	if err := s.degradation.Store(ctx, job.PolicyType, job.ContentHash, result, s.cfg.DegradationTTL); err != nil {
		s.logger.Warn("failed to write degradation record", "job_id", job.JobID, "error", err)
	}

	s.hub.Publish(job.JobID, EventCompleted, result)
}

func (s *Supervisor) finishFailed(ctx context.Context, job *Job, rec *ErrorRecord) {
	job.Status = StatusFailed
	job.ErrorRecord = rec
	_ = s.jobs.Save(ctx, job)

	s.hub.Publish(job.JobID, EventFailed, FailedPayload{
		ErrorKind:       rec.Kind,
		Message:         rec.Message,
		Details:         rec.Details,
		CompletedStages: rec.CompletedStages,
		FailedStage:     rec.FailedStage,
	})
}
