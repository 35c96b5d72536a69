package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-case-api/internal/models"
	"github.com/noah-isme/sma-case-api/pkg/jobs"
)

const alertRunJobType = "alerts.run"

type alertRunner interface {
	RunAlerts(ctx context.Context, auth models.AuthContext, scope models.RunScope) (*models.RunResult, error)
}

// AlertSchedulerConfig configures periodic alert runs.
type AlertSchedulerConfig struct {
	Interval     time.Duration
	SystemUserID string
	MaxRetries   int
	RetryDelay   time.Duration
}

// AlertScheduler periodically queues an all-courses alert run with reminders,
// executed as the system actor. At most one run is pending at a time; ticks
// arriving while one is queued or running are skipped.
type AlertScheduler struct {
	runner  alertRunner
	queue   *jobs.Queue
	cfg     AlertSchedulerConfig
	actor   models.AuthContext
	logger  *zap.Logger
	pending atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAlertScheduler constructs a scheduler around runner.
func NewAlertScheduler(runner alertRunner, cfg AlertSchedulerConfig, logger *zap.Logger) *AlertScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.SystemUserID == "" {
		cfg.SystemUserID = "system"
	}
	s := &AlertScheduler{
		runner: runner,
		cfg:    cfg,
		actor:  models.AuthContext{UserID: cfg.SystemUserID, Role: models.RoleAdmin},
		logger: logger.With(zap.String("component", "alert_scheduler")),
	}
	s.queue = jobs.NewQueue("alerts", s.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 1,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the worker and the ticker.
func (s *AlertScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Trigger(); err != nil {
					s.logger.Warn("scheduled alert run not queued", zap.Error(err))
				}
			}
		}
	}()
	s.logger.Info("alert scheduler started", zap.Duration("interval", s.cfg.Interval))
}

// Stop halts the ticker and waits for the worker.
func (s *AlertScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.queue.Stop()
}

// Trigger queues a run now unless one is already pending.
func (s *AlertScheduler) Trigger() error {
	if !s.pending.CompareAndSwap(false, true) {
		s.logger.Debug("alert run already pending")
		return nil
	}
	job := jobs.Job{ID: uuid.NewString(), Type: alertRunJobType}
	if err := s.queue.Enqueue(job); err != nil {
		s.pending.Store(false)
		return fmt.Errorf("enqueue alert run: %w", err)
	}
	return nil
}

func (s *AlertScheduler) handle(ctx context.Context, job jobs.Job) error {
	result, err := s.runner.RunAlerts(ctx, s.actor, models.RunScope{IncludeReminders: true})
	if err != nil {
		if job.Attempt >= s.cfg.MaxRetries {
			s.pending.Store(false)
		}
		return err
	}
	s.pending.Store(false)
	s.logger.Info("scheduled alert run finished",
		zap.String("job_id", job.ID),
		zap.Int("scanned", result.Scanned),
		zap.Int("created", result.Created),
		zap.Int("reminders", result.Reminders),
	)
	return nil
}
