package models

import (
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerKind 触发器类型
type TriggerKind string

const (
	TriggerTime  TriggerKind = "time"  // cron 定时触发
	TriggerUsage TriggerKind = "usage" // 资源用量阈值触发
)

// ActionKind 动作类型
type ActionKind string

const (
	ActionHTTPPost       ActionKind = "http_post"
	ActionDiscordWebhook ActionKind = "discord_webhook"
	ActionRestart        ActionKind = "restart"
	ActionShutdown       ActionKind = "shutdown"
	ActionBackup         ActionKind = "backup"
)

// ResourceKind 用量触发器监控的资源种类
type ResourceKind string

const (
	ResourceCPU    ResourceKind = "cpu"
	ResourceMemory ResourceKind = "memory"
	ResourceDisk   ResourceKind = "disk"
)

// TriggerConfig carries the kind-specific trigger parameters. Which fields
// are meaningful depends on AutomationRule.TriggerType: "time" uses Cron,
// "usage" uses Resource/Threshold and, for disk, Path.
type TriggerConfig struct {
	Cron      string       `json:"cron,omitempty"`
	Resource  ResourceKind `json:"resource,omitempty"`
	Threshold float64      `json:"threshold,omitempty"`
	Path      string       `json:"path,omitempty"`
}

// ActionConfig carries the kind-specific action parameters, keyed by
// AutomationRule.ActionType. Restart/shutdown take no parameters.
type ActionConfig struct {
	URL         string                 `json:"url,omitempty"`
	Headers     map[string]string      `json:"headers,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Description string                 `json:"description,omitempty"`
}

// AutomationRule 自动化规则定义（持久化模型 + API 模型）
type AutomationRule struct {
	ID            string        `gorm:"primaryKey" json:"id"`
	Name          string        `gorm:"not null" json:"name"`
	TriggerType   TriggerKind   `gorm:"not null" json:"trigger_type"`
	TriggerConfig TriggerConfig `gorm:"type:text;serializer:json" json:"trigger_config"`
	ActionType    ActionKind    `gorm:"not null" json:"action_type"`
	ActionConfig  ActionConfig  `gorm:"type:text;serializer:json" json:"action_config"`
	Enabled       bool          `gorm:"default:true" json:"enabled"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// cronParser accepts the standard 5-field expression (minute hour dom month dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a rule's 5-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Normalize fills in defaults that are implied rather than required:
// the disk trigger path defaults to the filesystem root.
func (r *AutomationRule) Normalize() {
	if r.TriggerType == TriggerUsage && r.TriggerConfig.Resource == ResourceDisk && r.TriggerConfig.Path == "" {
		r.TriggerConfig.Path = "/"
	}
}

// Validate checks the rule for structural validity. It returns a
// *ValidationError describing the first problem found, so a malformed rule
// is rejected before it is ever persisted or scheduled.
func (r *AutomationRule) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if r.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	switch r.TriggerType {
	case TriggerTime:
		if r.TriggerConfig.Cron == "" {
			return &ValidationError{Field: "trigger_config.cron", Reason: "required for time trigger"}
		}
		if _, err := ParseCron(r.TriggerConfig.Cron); err != nil {
			return &ValidationError{Field: "trigger_config.cron", Reason: "invalid cron expression: " + err.Error()}
		}
	case TriggerUsage:
		// 未知资源类型在创建时即拒绝，而不是轮询时静默跳过
		switch r.TriggerConfig.Resource {
		case ResourceCPU, ResourceMemory, ResourceDisk:
		default:
			return &ValidationError{Field: "trigger_config.resource", Reason: "unknown resource kind: " + string(r.TriggerConfig.Resource)}
		}
		if r.TriggerConfig.Threshold < 0 || r.TriggerConfig.Threshold > 100 {
			return &ValidationError{Field: "trigger_config.threshold", Reason: "must be between 0 and 100"}
		}
	default:
		return &ValidationError{Field: "trigger_type", Reason: "unknown trigger type: " + string(r.TriggerType)}
	}

	switch r.ActionType {
	case ActionHTTPPost:
		if r.ActionConfig.URL == "" {
			return &ValidationError{Field: "action_config.url", Reason: "required for http_post action"}
		}
	case ActionDiscordWebhook:
		if r.ActionConfig.Message == "" {
			return &ValidationError{Field: "action_config.message", Reason: "required for discord_webhook action"}
		}
	case ActionBackup:
		if r.ActionConfig.Description == "" {
			return &ValidationError{Field: "action_config.description", Reason: "required for backup action"}
		}
	case ActionRestart, ActionShutdown:
		// no parameters
	default:
		return &ValidationError{Field: "action_type", Reason: "unknown action type: " + string(r.ActionType)}
	}

	return nil
}

// Clone returns a deep copy so callers can hand rules across goroutine
// boundaries without sharing the header/data maps.
func (r *AutomationRule) Clone() *AutomationRule {
	out := *r
	if r.ActionConfig.Headers != nil {
		out.ActionConfig.Headers = make(map[string]string, len(r.ActionConfig.Headers))
		for k, v := range r.ActionConfig.Headers {
			out.ActionConfig.Headers[k] = v
		}
	}
	if r.ActionConfig.Data != nil {
		out.ActionConfig.Data = make(map[string]interface{}, len(r.ActionConfig.Data))
		for k, v := range r.ActionConfig.Data {
			out.ActionConfig.Data[k] = v
		}
	}
	return &out
}
