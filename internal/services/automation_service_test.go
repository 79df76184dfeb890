package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"hostpilot/internal/models"
	"hostpilot/internal/store"
)

type serviceFixture struct {
	service    *AutomationService
	scheduler  *Scheduler
	dispatcher *recordingDispatcher
	metrics    *stubMetrics
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:service_" + name + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.AutomationRule{}))

	logger := testLogger()
	src := &stubMetrics{cpu: 10, memory: 20, disk: 30}
	d := newRecordingDispatcher()
	sched := NewScheduler(d, NewTriggerEvaluator(src, logger), logger)
	svc := NewAutomationService(store.NewRuleStore(db, logger), sched, src, logger)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Stop)

	return &serviceFixture{service: svc, scheduler: sched, dispatcher: d, metrics: src}
}

func TestService_CreateListGetRoundTrip(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	id, err := f.service.CreateRule(ctx, nightlyRule("n1"))
	require.NoError(t, err)
	assert.Equal(t, "n1", id)

	got, err := f.service.GetRule(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "0 2 * * *", got.TriggerConfig.Cron)

	rules := f.service.ListRules(ctx)
	require.Len(t, rules, 1)
	assert.Equal(t, "n1", rules[0].ID)

	// enabled rule got a job
	kind, ok := f.scheduler.Job("n1")
	require.True(t, ok)
	assert.Equal(t, models.TriggerTime, kind)
}

func TestService_CreateGeneratesID(t *testing.T) {
	f := newServiceFixture(t)

	rule := nightlyRule("")
	id, err := f.service.CreateRule(context.Background(), rule)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, rule.ID)
}

func TestService_CreateDuplicateIDRejected(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateRule(ctx, nightlyRule("dup"))
	require.NoError(t, err)

	_, err = f.service.CreateRule(ctx, nightlyRule("dup"))
	ve, ok := models.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "id", ve.Field)
}

func TestService_ConcurrentCreateSameIDOnlyOneWins(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	const workers = 4
	for round := 0; round < 100; round++ {
		id := fmt.Sprintf("dup-%d", round)
		var (
			wg        sync.WaitGroup
			successes int32
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.service.CreateRule(ctx, nightlyRule(id))
				if err == nil {
					atomic.AddInt32(&successes, 1)
					return
				}
				ve, ok := models.AsValidationError(err)
				if assert.True(t, ok, "loser must get a validation error, got %v", err) {
					assert.Equal(t, "id", ve.Field)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 1, successes, "round %d: exactly one create of %s may succeed", round, id)
	}
}

func TestService_CreateInvalidRuleRejected(t *testing.T) {
	f := newServiceFixture(t)

	rule := cpuRule(150)
	_, err := f.service.CreateRule(context.Background(), rule)
	ve, ok := models.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "trigger_config.threshold", ve.Field)

	assert.Empty(t, f.service.ListRules(context.Background()))
}

func TestService_CreateDisabledRuleNotScheduled(t *testing.T) {
	f := newServiceFixture(t)

	rule := nightlyRule("off")
	rule.Enabled = false
	_, err := f.service.CreateRule(context.Background(), rule)
	require.NoError(t, err)

	assert.Equal(t, 0, f.scheduler.JobCount())
}

func TestService_UpdateReplacesAndReschedules(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateRule(ctx, nightlyRule("r1"))
	require.NoError(t, err)

	replacement := cpuRule(80)
	require.NoError(t, f.service.UpdateRule(ctx, "r1", replacement))

	got, err := f.service.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.TriggerUsage, got.TriggerType)

	assert.Equal(t, 1, f.scheduler.JobCount())
	kind, ok := f.scheduler.Job("r1")
	require.True(t, ok)
	assert.Equal(t, models.TriggerUsage, kind)
}

func TestService_UpdateDisableCancelsJob(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateRule(ctx, nightlyRule("r1"))
	require.NoError(t, err)

	off := nightlyRule("r1")
	off.Enabled = false
	require.NoError(t, f.service.UpdateRule(ctx, "r1", off))

	assert.Equal(t, 0, f.scheduler.JobCount())
}

func TestService_UpdateUnknownIsNotFound(t *testing.T) {
	f := newServiceFixture(t)
	err := f.service.UpdateRule(context.Background(), "ghost", nightlyRule("ghost"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_DeleteCancelsJob(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateRule(ctx, nightlyRule("r1"))
	require.NoError(t, err)
	require.NoError(t, f.service.DeleteRule(ctx, "r1"))

	assert.Equal(t, 0, f.scheduler.JobCount())
	_, err = f.service.GetRule(ctx, "r1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, f.service.DeleteRule(ctx, "r1"), models.ErrNotFound)
}

func TestService_ExecuteNow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateRule(ctx, nightlyRule("r1"))
	require.NoError(t, err)

	started, err := f.service.ExecuteNow(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, "r1", waitFired(t, f.dispatcher))

	_, err = f.service.ExecuteNow(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_Status(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateRule(ctx, nightlyRule("on"))
	require.NoError(t, err)
	off := nightlyRule("off")
	off.Enabled = false
	_, err = f.service.CreateRule(ctx, off)
	require.NoError(t, err)

	st := f.service.Status(ctx)
	assert.Equal(t, 10.0, st.CPUPercent)
	assert.Equal(t, 20.0, st.MemoryPercent)
	assert.Equal(t, 30.0, st.DiskPercent)
	assert.Equal(t, 1, st.ActiveAutomations)
	assert.Equal(t, 2, st.TotalAutomations)
	assert.True(t, st.SchedulerRunning)
}

func TestService_StartSchedulesPersistedEnabledRules(t *testing.T) {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:restart_" + name + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.AutomationRule{}))

	logger := testLogger()
	ctx := context.Background()

	seed := store.NewRuleStore(db, logger)
	require.NoError(t, seed.Load(ctx))
	require.NoError(t, seed.Put(ctx, nightlyRule("enabled")))
	off := nightlyRule("disabled")
	off.Enabled = false
	require.NoError(t, seed.Put(ctx, off))

	d := newRecordingDispatcher()
	sched := NewScheduler(d, nil, logger)
	svc := NewAutomationService(store.NewRuleStore(db, logger), sched, nil, logger)
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	assert.Equal(t, 1, sched.JobCount())
	_, ok := sched.Job("enabled")
	assert.True(t, ok)
}
