package services

import (
	"context"

	"hostpilot/internal/models"

	"github.com/sirupsen/logrus"
)

// MetricsSource supplies current resource usage to the evaluator. The
// production implementation is metrics.SystemSampler; tests inject synthetic
// values to assert deterministic thresholds.
type MetricsSource interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	DiskPercent(ctx context.Context, path string) (float64, error)
}

// TriggerEvaluator decides whether a usage-based rule currently satisfies
// its condition. It is a pure decision function: its only side effect is
// reading current metrics. Time-based rules never pass through here — the
// scheduler computes their next occurrence directly.
type TriggerEvaluator struct {
	source MetricsSource
	logger *logrus.Logger
}

func NewTriggerEvaluator(source MetricsSource, logger *logrus.Logger) *TriggerEvaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &TriggerEvaluator{source: source, logger: logger}
}

// ShouldFire reports whether the rule's usage condition holds right now
// (current >= threshold). A sampling error or an unknown resource kind logs
// a warning and returns false; one malformed rule must never stop the poll
// loop for the others.
func (e *TriggerEvaluator) ShouldFire(ctx context.Context, rule *models.AutomationRule) bool {
	if rule.TriggerType != models.TriggerUsage {
		return false
	}

	cfg := rule.TriggerConfig
	var (
		current float64
		err     error
	)
	switch cfg.Resource {
	case models.ResourceCPU:
		current, err = e.source.CPUPercent(ctx)
	case models.ResourceMemory:
		current, err = e.source.MemoryPercent(ctx)
	case models.ResourceDisk:
		path := cfg.Path
		if path == "" {
			path = "/"
		}
		current, err = e.source.DiskPercent(ctx, path)
	default:
		// 正常情况下创建时已拒绝；运行期仍防御性跳过
		e.logger.Warnf("automation %s: unknown resource kind %q, skipping tick", rule.ID, cfg.Resource)
		return false
	}
	if err != nil {
		e.logger.Warnf("automation %s: sample %s failed: %v", rule.ID, cfg.Resource, err)
		return false
	}

	fire := current >= cfg.Threshold
	if fire {
		e.logger.Infof("automation %s: %s usage %.1f%% >= threshold %.1f%%", rule.ID, cfg.Resource, current, cfg.Threshold)
	}
	return fire
}
