package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostpilot/internal/models"
)

// fakeClock is a manually advanced clock. After registers a waiter that
// fires only when Advance moves time past its deadline, so tests control
// every tick deterministically.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*clockWaiter
}

type clockWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.waiters = append(c.waiters, &clockWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward and fires every waiter whose deadline has
// passed.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}

// BlockUntil waits until at least n goroutines are parked in After.
func (c *fakeClock) BlockUntil(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		waiting := len(c.waiters)
		c.mu.Unlock()
		if waiting >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clock waiters", n)
}

// recordingDispatcher records every execution and can block a chosen rule's
// execution until released.
type recordingDispatcher struct {
	mu      sync.Mutex
	calls   []string
	fired   chan string
	blockID string
	release chan struct{}
	fail    bool
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{fired: make(chan string, 16)}
}

func (d *recordingDispatcher) Execute(ctx context.Context, rule *models.AutomationRule) RunResult {
	d.mu.Lock()
	d.calls = append(d.calls, rule.ID)
	blocked := d.blockID == rule.ID && d.release != nil
	release := d.release
	d.mu.Unlock()

	d.fired <- rule.ID
	if blocked {
		<-release
	}
	result := RunResult{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Action:    rule.ActionType,
		Success:   !d.fail,
		StartedAt: time.Now(),
	}
	if d.fail {
		result.Error = "forced failure"
	}
	return result
}

func (d *recordingDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func waitFired(t *testing.T, d *recordingDispatcher) string {
	t.Helper()
	select {
	case id := <-d.fired:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatch")
		return ""
	}
}

func assertNoFire(t *testing.T, d *recordingDispatcher) {
	t.Helper()
	select {
	case id := <-d.fired:
		t.Fatalf("unexpected dispatch for %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func nightlyRule(id string) *models.AutomationRule {
	return &models.AutomationRule{
		ID:            id,
		Name:          "nightly " + id,
		TriggerType:   models.TriggerTime,
		TriggerConfig: models.TriggerConfig{Cron: "0 2 * * *"},
		ActionType:    models.ActionDiscordWebhook,
		ActionConfig:  models.ActionConfig{Message: "ping"},
		Enabled:       true,
	}
}

func TestScheduler_CronFiresAtBoundary(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 1, 1, 1, 59, 0, 0, time.UTC))
	d := newRecordingDispatcher()
	s := NewScheduler(d, nil, testLogger(), WithClock(clock))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Schedule(nightlyRule("nightly")))
	clock.BlockUntil(t, 1)

	// one minute short of 02:00: nothing yet
	clock.Advance(59 * time.Second)
	assertNoFire(t, d)

	clock.Advance(time.Second)
	assert.Equal(t, "nightly", waitFired(t, d))

	// the job re-arms for the next day
	clock.BlockUntil(t, 1)
	clock.Advance(24 * time.Hour)
	assert.Equal(t, "nightly", waitFired(t, d))
}

func TestScheduler_UnscheduleCancelsPendingFire(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 1, 1, 1, 59, 0, 0, time.UTC))
	d := newRecordingDispatcher()
	s := NewScheduler(d, nil, testLogger(), WithClock(clock))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Schedule(nightlyRule("nightly")))
	clock.BlockUntil(t, 1)

	s.Unschedule("nightly")
	assert.Equal(t, 0, s.JobCount())

	// 等待定时器协程退出后再拨快时钟
	time.Sleep(50 * time.Millisecond)
	clock.Advance(2 * time.Minute)
	assertNoFire(t, d)
}

func TestScheduler_NoOverlapDropsConcurrentTick(t *testing.T) {
	d := newRecordingDispatcher()
	d.blockID = "busy"
	d.release = make(chan struct{})
	s := NewScheduler(d, nil, testLogger())
	s.Start()

	rule := nightlyRule("busy")

	require.True(t, s.RunNow(rule))
	assert.Equal(t, "busy", waitFired(t, d))

	// first execution still blocked: a second fire is dropped, not queued
	assert.False(t, s.RunNow(rule))
	assert.Equal(t, 1, d.callCount())

	close(d.release)
	require.Eventually(t, func() bool {
		return s.RunNow(rule)
	}, 2*time.Second, 5*time.Millisecond, "slot should free once the first execution returns")

	s.Stop()
	assert.Equal(t, 2, d.callCount())
}

func TestScheduler_BlockedRuleDoesNotStallOthers(t *testing.T) {
	d := newRecordingDispatcher()
	d.blockID = "slow"
	d.release = make(chan struct{})
	defer close(d.release)
	s := NewScheduler(d, nil, testLogger())
	s.Start()

	require.True(t, s.RunNow(nightlyRule("slow")))
	assert.Equal(t, "slow", waitFired(t, d))

	// a different rule executes while the first is still in flight
	require.True(t, s.RunNow(nightlyRule("fast")))
	assert.Equal(t, "fast", waitFired(t, d))
}

func TestScheduler_UsageRulePollsEvaluator(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	src := &stubMetrics{cpu: 50}
	eval := NewTriggerEvaluator(src, testLogger())
	d := newRecordingDispatcher()
	s := NewScheduler(d, eval, testLogger(), WithClock(clock), WithPollInterval(time.Minute))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Schedule(cpuRule(80)))
	clock.BlockUntil(t, 1)

	// below threshold: the poll runs but nothing fires
	clock.Advance(time.Minute)
	assertNoFire(t, d)
	clock.BlockUntil(t, 1)

	src.cpu = 85
	clock.Advance(time.Minute)
	assert.Equal(t, "cpu-rule", waitFired(t, d))
}

func TestScheduler_RescheduleReplacesJob(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	eval := NewTriggerEvaluator(&stubMetrics{cpu: 0}, testLogger())
	d := newRecordingDispatcher()
	s := NewScheduler(d, eval, testLogger(), WithClock(clock))
	s.Start()
	defer s.Stop()

	usage := cpuRule(80)
	usage.ID = "r1"
	require.NoError(t, s.Schedule(usage))

	timed := nightlyRule("r1")
	require.NoError(t, s.Schedule(timed))

	assert.Equal(t, 1, s.JobCount())
	kind, ok := s.Job("r1")
	require.True(t, ok)
	assert.Equal(t, models.TriggerTime, kind)
}

func TestScheduler_ScheduleRejectsBadCron(t *testing.T) {
	s := NewScheduler(newRecordingDispatcher(), nil, testLogger())
	s.Start()
	defer s.Stop()

	rule := nightlyRule("bad")
	rule.TriggerConfig.Cron = "not a cron"
	assert.Error(t, s.Schedule(rule))
	assert.Equal(t, 0, s.JobCount())
}

func TestScheduler_RunResultHandler(t *testing.T) {
	d := newRecordingDispatcher()
	d.fail = true
	s := NewScheduler(d, nil, testLogger())
	results := make(chan RunResult, 1)
	s.SetRunResultHandler(func(r RunResult) { results <- r })
	s.Start()

	require.True(t, s.RunNow(nightlyRule("r1")))
	s.Stop()

	select {
	case r := <-results:
		assert.Equal(t, "r1", r.RuleID)
		assert.Equal(t, models.ActionDiscordWebhook, r.Action)
		assert.False(t, r.Success)
		assert.Equal(t, "forced failure", r.Error)
	default:
		t.Fatal("no run result delivered")
	}
}

func TestScheduler_StopWaitsForInFlight(t *testing.T) {
	d := newRecordingDispatcher()
	s := NewScheduler(d, nil, testLogger())
	s.Start()
	assert.True(t, s.Running())

	require.True(t, s.RunNow(nightlyRule("r1")))
	s.Stop()

	assert.False(t, s.Running())
	assert.Equal(t, 1, d.callCount())
}
