package services

import (
	"context"
	"fmt"
	"sync"

	"hostpilot/internal/metrics"
	"hostpilot/internal/models"
	"hostpilot/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EngineStatus 引擎状态快照（/status 响应体）
type EngineStatus struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryPercent     float64 `json:"memory_percent"`
	DiskPercent       float64 `json:"disk_percent"`
	ActiveAutomations int     `json:"active_automations"`
	TotalAutomations  int     `json:"total_automations"`
	SchedulerRunning  bool    `json:"scheduler_running"`
}

// StatusSource feeds host usage into the status snapshot.
// Implemented by metrics.SystemSampler.
type StatusSource interface {
	Snapshot(ctx context.Context) metrics.SystemSnapshot
}

// AutomationService is the narrow engine surface the HTTP layer, the CLI and
// the websocket reporter call into. It coordinates the rule store and the
// scheduler under one mutation lock, so the scheduler's view is never stale
// relative to the store's.
type AutomationService struct {
	mu        sync.Mutex // 串行化「检查-写入-调度」复合变更
	store     *store.RuleStore
	scheduler *Scheduler
	sampler   StatusSource
	logger    *logrus.Logger
}

func NewAutomationService(ruleStore *store.RuleStore, scheduler *Scheduler, sampler StatusSource, logger *logrus.Logger) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationService{
		store:     ruleStore,
		scheduler: scheduler,
		sampler:   sampler,
		logger:    logger,
	}
}

// Start loads the persisted collection and hands every enabled rule to the
// scheduler. It must complete before the engine accepts external traffic; a
// load failure is the one fatal startup condition.
func (s *AutomationService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Load(ctx); err != nil {
		return err
	}
	s.scheduler.Start()
	for _, rule := range s.store.List(ctx) {
		if !rule.Enabled {
			continue
		}
		r := rule
		if err := s.scheduler.Schedule(&r); err != nil {
			// 单条损坏的规则不阻止引擎启动
			s.logger.Errorf("schedule automation %s on startup: %v", r.ID, err)
		}
	}
	return nil
}

// Stop cancels all jobs and waits for in-flight executions.
func (s *AutomationService) Stop() {
	s.scheduler.Stop()
}

// CreateRule validates and registers a new automation, scheduling it when
// enabled. An omitted id gets a generated UUID; an id that already exists is
// rejected (update is the replacement path).
func (s *AutomationService) CreateRule(ctx context.Context, rule *models.AutomationRule) (string, error) {
	if rule == nil {
		return "", &models.ValidationError{Reason: "definition required"}
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.Normalize()
	if err := rule.Validate(); err != nil {
		return "", err
	}

	// 查重与写入必须在同一把锁内，否则并发创建同一 id 会双双通过
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.store.Get(ctx, rule.ID); err == nil {
		return "", &models.ValidationError{Field: "id", Reason: fmt.Sprintf("automation %q already exists", rule.ID)}
	}

	if err := s.store.Put(ctx, rule); err != nil {
		return "", err
	}
	if rule.Enabled {
		if err := s.scheduler.Schedule(rule); err != nil {
			return "", err
		}
	}
	s.logger.Infof("Created automation %s (%s -> %s)", rule.ID, rule.TriggerType, rule.ActionType)
	return rule.ID, nil
}

// UpdateRule fully replaces the rule with the given id and atomically
// re-arms its job, so there is never a moment with both the old and new job
// definitions active — or with neither, for an enabled rule.
func (s *AutomationService) UpdateRule(ctx context.Context, id string, rule *models.AutomationRule) error {
	if rule == nil {
		return &models.ValidationError{Reason: "definition required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	rule.ID = id
	rule.Normalize()
	if err := rule.Validate(); err != nil {
		return err
	}

	if err := s.store.Put(ctx, rule); err != nil {
		return err
	}
	if rule.Enabled {
		if err := s.scheduler.Schedule(rule); err != nil {
			return err
		}
	} else {
		s.scheduler.Unschedule(id)
	}
	s.logger.Infof("Updated automation %s", id)
	return nil
}

// DeleteRule removes the rule and cancels its job. A rule must never remain
// schedulable after deletion.
func (s *AutomationService) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.scheduler.Unschedule(id)
	s.logger.Infof("Deleted automation %s", id)
	return nil
}

// GetRule returns the rule definition for id.
func (s *AutomationService) GetRule(ctx context.Context, id string) (*models.AutomationRule, error) {
	return s.store.Get(ctx, id)
}

// ListRules returns all rules in insertion order.
func (s *AutomationService) ListRules(ctx context.Context) []models.AutomationRule {
	return s.store.List(ctx)
}

// ExecuteNow dispatches the rule's action immediately, bypassing trigger
// evaluation. It reports whether an execution actually started; a run
// already in flight for the same id means it did not.
func (s *AutomationService) ExecuteNow(ctx context.Context, id string) (bool, error) {
	rule, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	started := s.scheduler.RunNow(rule)
	if !started {
		s.logger.Warnf("automation %s: manual execution skipped, already running", id)
	}
	return started, nil
}

// Status returns the engine status snapshot, including live host usage.
func (s *AutomationService) Status(ctx context.Context) *EngineStatus {
	active, total := s.store.Counts()
	st := &EngineStatus{
		ActiveAutomations: active,
		TotalAutomations:  total,
		SchedulerRunning:  s.scheduler.Running(),
	}
	if s.sampler != nil {
		snap := s.sampler.Snapshot(ctx)
		st.CPUPercent = snap.CPUPercent
		st.MemoryPercent = snap.MemoryPercent
		st.DiskPercent = snap.DiskPercent
	}
	return st
}
