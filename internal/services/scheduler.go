package services

import (
	"context"
	"sync"
	"time"

	"hostpilot/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPollInterval is how often usage-based rules are re-evaluated.
	DefaultPollInterval = 5 * time.Minute
	// DefaultActionTimeout bounds a single action execution so a hung
	// endpoint cannot permanently occupy a rule's execution slot.
	DefaultActionTimeout = 30 * time.Second
)

// Dispatcher executes a rule's action and reports a structured result.
// Implemented by ActionDispatcher; tests substitute recording fakes.
type Dispatcher interface {
	Execute(ctx context.Context, rule *models.AutomationRule) RunResult
}

// scheduledJob is the live timer/poll construct derived from one enabled
// rule. It is owned exclusively by the Scheduler and recreated on every
// rule mutation.
type scheduledJob struct {
	rule   *models.AutomationRule
	kind   models.TriggerKind
	cancel context.CancelFunc
}

// Scheduler owns per-rule jobs: a self-re-arming one-shot timer for cron
// rules and a fixed-interval poll for usage rules. A shared in-flight
// registry guarded by the scheduler mutex guarantees that a rule never has
// two executions running concurrently; overlapping ticks are dropped, not
// queued.
type Scheduler struct {
	mu       sync.Mutex
	jobs     map[string]*scheduledJob
	inFlight map[string]struct{}
	running  bool

	dispatcher    Dispatcher
	evaluator     *TriggerEvaluator
	clock         Clock
	pollInterval  time.Duration
	actionTimeout time.Duration
	logger        *logrus.Logger
	onResult      func(RunResult)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerOption 调度器可选配置
type SchedulerOption func(*Scheduler)

func WithClock(c Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func WithActionTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.actionTimeout = d
		}
	}
}

// SetRunResultHandler registers a callback invoked after every execution,
// used to feed the websocket status feed. Failures in the handler's
// consumers never propagate back into the scheduling loop.
func (s *Scheduler) SetRunResultHandler(fn func(RunResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

func NewScheduler(dispatcher Dispatcher, evaluator *TriggerEvaluator, logger *logrus.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:          make(map[string]*scheduledJob),
		inFlight:      make(map[string]struct{}),
		dispatcher:    dispatcher,
		evaluator:     evaluator,
		clock:         realClock{},
		pollInterval:  DefaultPollInterval,
		actionTimeout: DefaultActionTimeout,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start marks the scheduler as running. Jobs are armed individually via
// Schedule; the manager hands over every enabled rule before the engine
// accepts external traffic.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.logger.Info("Scheduler started")
}

// Stop cancels all pending timers and waits for in-flight executions to
// finish. In-flight work is not aborted mid-action beyond its own timeout.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	for id, job := range s.jobs {
		job.cancel()
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Schedule arms (or atomically re-arms) the job for the rule. The previous
// job for the same id, if any, is cancelled under the same lock, so there is
// never a moment with two active job definitions for one id.
func (s *Scheduler) Schedule(rule *models.AutomationRule) error {
	snapshot := rule.Clone()

	var sched cron.Schedule
	if snapshot.TriggerType == models.TriggerTime {
		var err error
		sched, err = models.ParseCron(snapshot.TriggerConfig.Cron)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	if old, ok := s.jobs[snapshot.ID]; ok {
		old.cancel()
	}
	jobCtx, cancel := context.WithCancel(s.ctx)
	s.jobs[snapshot.ID] = &scheduledJob{rule: snapshot, kind: snapshot.TriggerType, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	switch snapshot.TriggerType {
	case models.TriggerTime:
		go s.runCronJob(jobCtx, snapshot, sched)
	default:
		go s.runUsageJob(jobCtx, snapshot)
	}
	s.logger.Infof("Scheduled automation %s (%s trigger)", snapshot.ID, snapshot.TriggerType)
	return nil
}

// Unschedule cancels the rule's job. Unknown or already-cancelled ids are a
// no-op; update and delete flows call this defensively.
func (s *Scheduler) Unschedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.cancel()
		delete(s.jobs, id)
		s.logger.Infof("Unscheduled automation %s", id)
	}
}

// JobCount returns the number of active jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Job reports the trigger kind of the active job for id, if one exists.
func (s *Scheduler) Job(id string) (models.TriggerKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		return job.kind, true
	}
	return "", false
}

// RunNow dispatches the rule immediately, bypassing trigger evaluation but
// honoring the no-overlap invariant. It reports whether an execution was
// started.
func (s *Scheduler) RunNow(rule *models.AutomationRule) bool {
	return s.fire(rule.Clone(), "manual")
}

// runCronJob waits for the next cron occurrence, fires, then re-arms.
func (s *Scheduler) runCronJob(ctx context.Context, rule *models.AutomationRule, sched cron.Schedule) {
	defer s.wg.Done()
	for {
		now := s.clock.Now()
		next := sched.Next(now)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(next.Sub(now)):
			s.fire(rule, "cron")
		}
	}
}

// runUsageJob re-evaluates the rule's usage condition on a fixed cadence.
func (s *Scheduler) runUsageJob(ctx context.Context, rule *models.AutomationRule) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.pollInterval):
		}
		if s.evaluator.ShouldFire(ctx, rule) {
			s.fire(rule, "usage")
		}
	}
}

// fire starts one execution of the rule's action unless one is already in
// flight for the same id. Execution runs on its own goroutine with a bounded
// timeout; its context derives from the scheduler root, not the job, so an
// unscheduled rule's in-flight run still completes.
func (s *Scheduler) fire(rule *models.AutomationRule, reason string) bool {
	s.mu.Lock()
	if _, busy := s.inFlight[rule.ID]; busy {
		s.mu.Unlock()
		s.logger.Warnf("automation %s: previous execution still in flight, dropping %s tick", rule.ID, reason)
		return false
	}
	s.inFlight[rule.ID] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, rule.ID)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(s.ctx, s.actionTimeout)
		defer cancel()

		result := s.dispatcher.Execute(ctx, rule)
		if result.Success {
			s.logger.Infof("automation %s: %s action completed (%s)", rule.ID, rule.ActionType, reason)
		} else {
			s.logger.Errorf("automation %s: %s action failed: %s", rule.ID, rule.ActionType, result.Error)
		}
		s.mu.Lock()
		handler := s.onResult
		s.mu.Unlock()
		if handler != nil {
			handler(result)
		}
	}()
	return true
}
