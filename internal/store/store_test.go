package store_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"clipforge/internal/quota"
	"clipforge/internal/store"
	"clipforge/internal/testsupport"
)

func TestRecipeRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created, err := st.CreateRecipe(ctx, &store.Recipe{
		OwnerID: 7,
		Name:    "  Friday  Highlights ",
		Source: store.SourceParams{
			Kind:   store.SourceTwitch,
			Twitch: &store.TwitchSource{Channel: "streamer", WindowDays: 7},
		},
		LibraryFallback: true,
		MinDuration:     5,
		MaxDuration:     90,
		IncludeTags:     []string{"funny"},
	})
	if err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}
	if created.Name != "Friday Highlights" {
		t.Fatalf("expected normalized name, got %q", created.Name)
	}
	if created.ClipLimit != 10 {
		t.Fatalf("expected default clip limit 10, got %d", created.ClipLimit)
	}
	if created.Output.Width != 1920 || created.Output.Container != "mp4" {
		t.Fatalf("expected default output settings, got %+v", created.Output)
	}

	fetched, err := st.GetRecipe(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRecipe: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected recipe")
	}
	if fetched.Source.Kind != store.SourceTwitch || fetched.Source.Twitch.Channel != "streamer" {
		t.Fatalf("source did not survive round trip: %+v", fetched.Source)
	}
	if !fetched.LibraryFallback {
		t.Fatal("expected library fallback enabled")
	}
	if len(fetched.IncludeTags) != 1 || fetched.IncludeTags[0] != "funny" {
		t.Fatalf("unexpected include tags: %v", fetched.IncludeTags)
	}
}

func TestGetRecipeMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	recipe, err := st.GetRecipe(context.Background(), 9999)
	if err != nil {
		t.Fatalf("GetRecipe: %v", err)
	}
	if recipe != nil {
		t.Fatalf("expected nil for missing recipe, got %+v", recipe)
	}
}

func TestCreateRecipeRejectsUnknownSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	_, err := st.CreateRecipe(context.Background(), &store.Recipe{
		OwnerID: 1,
		Name:    "bad",
		Source:  store.SourceParams{Kind: "youtube"},
	})
	if err == nil {
		t.Fatal("expected error for unsupported source kind")
	}
}

func TestScheduleValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	recipe := testsupport.NewRecipe(t, st, 1, "sched-target")

	cases := []struct {
		name  string
		sched store.Schedule
	}{
		{"bad time", store.Schedule{RecipeID: recipe.ID, Type: store.ScheduleDaily, TimeOfDay: "25:00"}},
		{"bad weekday", store.Schedule{RecipeID: recipe.ID, Type: store.ScheduleWeekly, TimeOfDay: "10:00", Weekday: 7}},
		{"bad month day", store.Schedule{RecipeID: recipe.ID, Type: store.ScheduleMonthly, TimeOfDay: "10:00", MonthDay: 0}},
		{"bad type", store.Schedule{RecipeID: recipe.ID, Type: "hourly", TimeOfDay: "10:00"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := st.CreateSchedule(ctx, &tc.sched); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	sched, err := st.CreateSchedule(ctx, &store.Schedule{
		RecipeID:  recipe.ID,
		Type:      store.ScheduleWeekly,
		TimeOfDay: "18:30",
		Weekday:   5,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if sched.Timezone != "UTC" {
		t.Fatalf("expected UTC default timezone, got %q", sched.Timezone)
	}
}

func TestCreateOneShotScheduleWithoutTimeOfDay(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	recipe := testsupport.NewRecipe(t, st, 1, "one-shot")

	runAt := time.Date(2026, time.April, 1, 20, 0, 0, 0, time.UTC)
	sched, err := st.CreateSchedule(ctx, &store.Schedule{
		RecipeID: recipe.ID,
		Type:     store.ScheduleOnce,
		RunAt:    &runAt,
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if sched.RunAt == nil || !sched.RunAt.Equal(runAt) {
		t.Fatalf("expected run time preserved, got %v", sched.RunAt)
	}

	_, err = st.CreateSchedule(ctx, &store.Schedule{
		RecipeID: recipe.ID,
		Type:     store.ScheduleOnce,
		Enabled:  true,
	})
	if err == nil {
		t.Fatal("expected validation error for one-shot without a run time")
	}
}

func TestDisableScheduleClearsNextTrigger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	recipe := testsupport.NewRecipe(t, st, 1, "toggle")

	sched, err := st.CreateSchedule(ctx, &store.Schedule{
		RecipeID:  recipe.ID,
		Type:      store.ScheduleDaily,
		TimeOfDay: "09:00",
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	next := time.Now().UTC().Add(time.Hour)
	sched.NextTriggerAt = &next
	if err := st.UpdateSchedule(ctx, sched); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	if err := st.SetScheduleEnabled(ctx, sched.ID, false); err != nil {
		t.Fatalf("SetScheduleEnabled: %v", err)
	}
	updated, err := st.GetSchedule(ctx, sched.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if updated.Enabled {
		t.Fatal("expected schedule disabled")
	}
	if updated.NextTriggerAt != nil {
		t.Fatalf("expected cleared next trigger, got %v", updated.NextTriggerAt)
	}
}

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	recipe := testsupport.NewRecipe(t, st, 3, "run-recipe")

	run := testsupport.NewRun(t, st, recipe)
	if run.Status != store.RunStatusPending {
		t.Fatalf("expected pending, got %s", run.Status)
	}

	if err := st.UpdateRunStatus(ctx, run.ID, store.RunStatusAcquiring); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}
	completed := time.Now().UTC()
	if err := st.UpdateRunOutput(ctx, run.ID, store.RunStatusCompleted, "/out/final.mp4", 2048, &completed); err != nil {
		t.Fatalf("UpdateRunOutput: %v", err)
	}

	final, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if final.Status != store.RunStatusCompleted || final.OutputPath != "/out/final.mp4" || final.OutputBytes != 2048 {
		t.Fatalf("unexpected final run: %+v", final)
	}
	if final.CompletedAt == nil {
		t.Fatal("expected completed_at set")
	}
}

func TestMediaIdentityLookup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	older, err := st.CreateMedia(ctx, &store.Media{
		OwnerID:     4,
		Kind:        store.MediaKindClip,
		StoragePath: "/cache/a.mp4",
		SizeBytes:   100,
		IdentityKey: "twitch:slug-a",
	})
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}
	newer, err := st.CreateMedia(ctx, &store.Media{
		OwnerID:     4,
		Kind:        store.MediaKindClip,
		StoragePath: "/cache/a2.mp4",
		SizeBytes:   120,
		IdentityKey: "twitch:slug-a",
	})
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}

	found, err := st.FindMediaByIdentity(ctx, 4, "twitch:slug-a")
	if err != nil {
		t.Fatalf("FindMediaByIdentity: %v", err)
	}
	if found == nil || found.ID != newer.ID {
		t.Fatalf("expected newest match %d, got %+v", newer.ID, found)
	}

	other, err := st.FindMediaByIdentity(ctx, 5, "twitch:slug-a")
	if err != nil {
		t.Fatalf("FindMediaByIdentity: %v", err)
	}
	if other != nil {
		t.Fatalf("identity lookup crossed owner boundary: %+v", other)
	}

	used, err := st.StorageBytesUsed(ctx, 4)
	if err != nil {
		t.Fatalf("StorageBytesUsed: %v", err)
	}
	if want := older.SizeBytes + newer.SizeBytes; used != want {
		t.Fatalf("expected %d bytes used, got %d", want, used)
	}
}

func TestJobUpdateMergesResultFragments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	recipe := testsupport.NewRecipe(t, st, 1, "jobs")
	run := testsupport.NewRun(t, st, recipe)

	job, err := st.CreateJob(ctx, &store.Job{
		Kind:    store.JobKindAcquire,
		RunID:   run.ID,
		OwnerID: recipe.OwnerID,
		Queue:   "standard",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Handle == "" {
		t.Fatal("expected generated handle")
	}
	if job.Status != store.JobStatusStarted {
		t.Fatalf("expected started, got %s", job.Status)
	}

	progress := 150
	updated, err := st.UpdateJob(ctx, job.Handle, store.JobUpdate{
		Progress:       &progress,
		ResultFragment: map[string]any{"downloaded": float64(3)},
	})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if updated.Progress != 100 {
		t.Fatalf("expected clamped progress 100, got %d", updated.Progress)
	}
	if updated.CompletedAt != nil {
		t.Fatal("non-terminal update should not stamp completion")
	}

	status := store.JobStatusSuccess
	final, err := st.UpdateJob(ctx, job.Handle, store.JobUpdate{
		Status:         &status,
		ResultFragment: map[string]any{"reused": float64(2)},
	})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if final.CompletedAt == nil {
		t.Fatal("terminal update should stamp completion")
	}
	if final.ResultJSON == "" {
		t.Fatal("expected merged result json")
	}
	for _, key := range []string{"downloaded", "reused"} {
		if !strings.Contains(final.ResultJSON, `"`+key+`"`) {
			t.Fatalf("merged result missing %q: %s", key, final.ResultJSON)
		}
	}
}

func TestUpdateJobUnknownHandle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	job, err := st.UpdateJob(context.Background(), "no-such-handle", store.JobUpdate{})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for unknown handle, got %+v", job)
	}
}

func TestClaimNextJobIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	recipe := testsupport.NewRecipe(t, st, 1, "claims")
	run := testsupport.NewRun(t, st, recipe)

	first, err := st.CreateJob(ctx, &store.Job{Kind: store.JobKindAcquire, RunID: run.ID, OwnerID: 1, Queue: "standard"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	second, err := st.CreateJob(ctx, &store.Job{Kind: store.JobKindEncode, RunID: run.ID, OwnerID: 1, Queue: "standard"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	claimedA, err := st.ClaimNextJob(ctx, "standard", "worker-a")
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimedA == nil || claimedA.ID != first.ID {
		t.Fatalf("expected oldest job %d, got %+v", first.ID, claimedA)
	}
	if claimedA.ClaimedBy != "worker-a" || claimedA.ClaimedAt == nil {
		t.Fatalf("claim not recorded: %+v", claimedA)
	}

	claimedB, err := st.ClaimNextJob(ctx, "standard", "worker-b")
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimedB == nil || claimedB.ID != second.ID {
		t.Fatalf("expected second job %d, got %+v", second.ID, claimedB)
	}

	empty, err := st.ClaimNextJob(ctx, "standard", "worker-c")
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected empty queue, got %+v", empty)
	}
}

func TestWorkerHeartbeatAndLiveness(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.RecordWorkerHeartbeat(ctx, "w1", "accelerated"); err != nil {
		t.Fatalf("RecordWorkerHeartbeat: %v", err)
	}
	if err := st.RecordWorkerHeartbeat(ctx, "w2", "standard"); err != nil {
		t.Fatalf("RecordWorkerHeartbeat: %v", err)
	}

	cutoff := time.Now().UTC().Add(-time.Minute)
	count, err := st.LiveWorkerCount(ctx, "accelerated", cutoff)
	if err != nil {
		t.Fatalf("LiveWorkerCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 live accelerated worker, got %d", count)
	}

	stale, err := st.LiveWorkerCount(ctx, "accelerated", time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("LiveWorkerCount: %v", err)
	}
	if stale != 0 {
		t.Fatalf("future cutoff should exclude all workers, got %d", stale)
	}

	// Re-registering on another queue moves the worker rather than duplicating it.
	if err := st.RecordWorkerHeartbeat(ctx, "w1", "standard"); err != nil {
		t.Fatalf("RecordWorkerHeartbeat: %v", err)
	}
	workers, err := st.ListWorkers(ctx)
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	if len(workers) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(workers))
	}
}

func TestLiveWorkerCountOnSecondBoundary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	// Stored stamps carry a fractional second almost always; retry the rare
	// heartbeat that lands exactly on one so the cutoff below exercises the
	// mixed-precision comparison.
	var seen time.Time
	for i := 0; i < 5; i++ {
		if err := st.RecordWorkerHeartbeat(ctx, "w-boundary", "standard"); err != nil {
			t.Fatalf("RecordWorkerHeartbeat: %v", err)
		}
		workers, err := st.ListWorkers(ctx)
		if err != nil {
			t.Fatalf("ListWorkers: %v", err)
		}
		seen = workers[0].LastSeen
		if seen.Nanosecond() != 0 {
			break
		}
	}

	count, err := st.LiveWorkerCount(ctx, "standard", seen.Truncate(time.Second))
	if err != nil {
		t.Fatalf("LiveWorkerCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("whole-second cutoff must count the fractional heartbeat, got %d", count)
	}

	count, err = st.LiveWorkerCount(ctx, "standard", seen)
	if err != nil {
		t.Fatalf("LiveWorkerCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("cutoff equal to last_seen is inclusive, got %d", count)
	}
}

func TestTierLimitsDefaultUnlimited(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	limits, err := st.TierLimits(ctx, 42)
	if err != nil {
		t.Fatalf("TierLimits: %v", err)
	}
	if limits.StorageBytes != quota.Unlimited || limits.RenderSecondsPerM != quota.Unlimited || limits.MaxSchedules != quota.Unlimited {
		t.Fatalf("expected unlimited defaults, got %+v", limits)
	}

	want := quota.Limits{StorageBytes: 1 << 30, RenderSecondsPerM: 3600, MaxSchedules: 5}
	if err := st.SetTierLimits(ctx, 42, want); err != nil {
		t.Fatalf("SetTierLimits: %v", err)
	}
	limits, err = st.TierLimits(ctx, 42)
	if err != nil {
		t.Fatalf("TierLimits: %v", err)
	}
	if limits != want {
		t.Fatalf("expected %+v, got %+v", want, limits)
	}
}

func TestRenderUsageLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.RecordRenderUsage(ctx, 9, 1, 120, "2026-08"); err != nil {
		t.Fatalf("RecordRenderUsage: %v", err)
	}
	if err := st.RecordRenderUsage(ctx, 9, 2, 45, "2026-08"); err != nil {
		t.Fatalf("RecordRenderUsage: %v", err)
	}
	if err := st.RecordRenderUsage(ctx, 9, 3, 300, "2026-07"); err != nil {
		t.Fatalf("RecordRenderUsage: %v", err)
	}

	used, err := st.RenderSecondsUsed(ctx, 9, "2026-08")
	if err != nil {
		t.Fatalf("RenderSecondsUsed: %v", err)
	}
	if used != 165 {
		t.Fatalf("expected 165 seconds for period, got %d", used)
	}

	empty, err := st.RenderSecondsUsed(ctx, 9, "2026-06")
	if err != nil {
		t.Fatalf("RenderSecondsUsed: %v", err)
	}
	if empty != 0 {
		t.Fatalf("expected 0 for empty period, got %d", empty)
	}
}
