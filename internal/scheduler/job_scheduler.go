// Package scheduler triggers sync cycles on a cron schedule.
package scheduler

import (
	"context"
	"sync"

	"labjobs/common/telemetry"
	"labjobs/internal/config"
	"labjobs/internal/errors"
	"labjobs/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var tracer = telemetry.GetTracer("labjobs/scheduler")

type CycleRunner interface {
	RunSyncCycle(ctx context.Context) (*models.CycleReport, error)
}

type JobScheduler struct {
	runner CycleRunner
	logger *zap.Logger
	spec   string

	mutex    sync.Mutex
	isActive bool
	cron     *cron.Cron
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewJobScheduler(runner CycleRunner, logger *zap.Logger, config *config.Config) *JobScheduler {
	return &JobScheduler{
		runner: runner,
		logger: logger,
		spec:   config.SyncSchedule,
	}
}

// Start registers the sync job, starts the cron loop and runs one cycle
// right away. Cycles run on their own context, cancelled by Stop.
func (s *JobScheduler) Start(ctx context.Context) error {
	_, span := tracer.Start(ctx, "JobScheduler.Start")
	defer span.End()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.isActive {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.logger}),
		cron.SkipIfStillRunning(cronLogger{s.logger}),
	))
	if _, err := c.AddFunc(s.spec, func() { s.runCycle(runCtx, "schedule") }); err != nil {
		cancel()
		span.RecordError(err)
		return errors.InvalidInput("invalid sync schedule "+s.spec, err)
	}

	s.cron = c
	s.cancel = cancel
	s.isActive = true
	c.Start()
	s.logger.Info("sync scheduler started", zap.String("schedule", s.spec))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(runCtx, "startup")
	}()

	return nil
}

// Stop halts the schedule, cancels a running cycle and waits for it to
// return or for ctx to expire.
func (s *JobScheduler) Stop(ctx context.Context) error {
	s.mutex.Lock()
	if !s.isActive {
		s.mutex.Unlock()
		return nil
	}
	s.isActive = false
	s.cancel()
	cronDone := s.cron.Stop()
	s.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *JobScheduler) runCycle(ctx context.Context, trigger string) {
	ctx, span := tracer.Start(ctx, "JobScheduler.runCycle")
	defer span.End()
	span.SetAttributes(telemetry.String("trigger", trigger))

	report, err := s.runner.RunSyncCycle(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrTypeUnavailable) {
			s.logger.Info("sync cycle skipped", zap.String("trigger", trigger), zap.Error(err))
			return
		}
		telemetry.Fail(span, err)
		s.logger.Error("sync cycle failed", zap.String("trigger", trigger), zap.Error(err))
		return
	}

	for _, failed := range report.Failed() {
		s.logger.Warn("source not updated",
			zap.String("cycle_id", report.CycleID),
			zap.String("source", failed.SourceID),
			zap.String("error_type", failed.ErrorType),
			zap.String("error", failed.Error))
	}
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
