package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hostpilot/internal/metrics"
	"hostpilot/internal/models"

	"github.com/sirupsen/logrus"
)

// RunResult is the structured outcome of one firing. Failures are reported
// here and logged; they never propagate into the scheduling loop and never
// disable the rule.
type RunResult struct {
	RuleID    string            `json:"rule_id"`
	RuleName  string            `json:"rule_name"`
	Action    models.ActionKind `json:"action"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// BackupClient creates a backup through the hosting provider API.
// Implemented by fireapi.Client.
type BackupClient interface {
	CreateBackup(ctx context.Context, description string) error
}

// PowerController performs privileged host power operations.
type PowerController interface {
	Restart(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ActionDispatcher executes the configured effect of a firing rule. Each
// action kind's failure is caught and folded into the RunResult, so one
// failing action never aborts the scheduler or other rules. The dispatcher
// holds no persisted state; side effects are strictly external.
type ActionDispatcher struct {
	httpClient        *http.Client
	backup            BackupClient
	power             PowerController
	defaultWebhookURL string
	logger            *logrus.Logger
}

func NewActionDispatcher(httpClient *http.Client, backup BackupClient, power PowerController, defaultWebhookURL string, logger *logrus.Logger) *ActionDispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultActionTimeout}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ActionDispatcher{
		httpClient:        httpClient,
		backup:            backup,
		power:             power,
		defaultWebhookURL: defaultWebhookURL,
		logger:            logger,
	}
}

// Execute dispatches by action kind and reports the structured result.
func (d *ActionDispatcher) Execute(ctx context.Context, rule *models.AutomationRule) RunResult {
	started := time.Now()

	var err error
	switch rule.ActionType {
	case models.ActionHTTPPost:
		err = d.httpPost(ctx, rule.ActionConfig)
	case models.ActionDiscordWebhook:
		err = d.discordWebhook(ctx, rule.ActionConfig)
	case models.ActionRestart:
		err = d.power.Restart(ctx)
	case models.ActionShutdown:
		err = d.power.Shutdown(ctx)
	case models.ActionBackup:
		err = d.backup.CreateBackup(ctx, rule.ActionConfig.Description)
	default:
		err = fmt.Errorf("unsupported action type: %s", rule.ActionType)
	}

	result := RunResult{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Action:    rule.ActionType,
		Success:   err == nil,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if err != nil {
		result.Error = err.Error()
	}
	metrics.IncRunResult(string(rule.ActionType), result.Success)
	return result
}

// httpPost issues the configured POST. Any received HTTP response counts as
// success (the status code is logged); only transport-level errors fail.
func (d *ActionDispatcher) httpPost(ctx context.Context, cfg models.ActionConfig) error {
	data := cfg.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	d.logger.Infof("http_post %s returned %d", cfg.URL, resp.StatusCode)
	return nil
}

// discordPayload is the notification document posted to the webhook.
type discordPayload struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

// discordWebhook posts a structured notification embedding the message and a
// timestamp. An absent URL falls back to the process-wide default.
func (d *ActionDispatcher) discordWebhook(ctx context.Context, cfg models.ActionConfig) error {
	url := cfg.URL
	if url == "" {
		url = d.defaultWebhookURL
	}
	if url == "" {
		return fmt.Errorf("no webhook url configured")
	}

	payload := discordPayload{
		Content: cfg.Message,
		Embeds: []discordEmbed{{
			Description: cfg.Message,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	d.logger.Infof("discord_webhook returned %d", resp.StatusCode)
	return nil
}
