package recurrence_test

import (
	"testing"
	"time"

	"clipforge/internal/recurrence"
	"clipforge/internal/store"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestDailyBeforeTimeOfDayFiresSameDay(t *testing.T) {
	sched := &store.Schedule{
		Type:      store.ScheduleDaily,
		TimeOfDay: "14:00",
		Timezone:  "UTC",
		Enabled:   true,
	}
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

	next := recurrence.Next(sched, now)
	if next == nil {
		t.Fatal("expected a next trigger")
	}
	want := time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestDailyAfterTimeOfDayFiresNextDay(t *testing.T) {
	sched := &store.Schedule{
		Type:      store.ScheduleDaily,
		TimeOfDay: "14:00",
		Timezone:  "UTC",
		Enabled:   true,
	}
	now := time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)

	next := recurrence.Next(sched, now)
	if next == nil {
		t.Fatal("expected a next trigger")
	}
	want := time.Date(2026, time.March, 11, 14, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("candidate equal to now must advance a day; expected %v, got %v", want, next)
	}
}

func TestDailyHonorsTimezone(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	sched := &store.Schedule{
		Type:      store.ScheduleDaily,
		TimeOfDay: "09:00",
		Timezone:  "America/New_York",
		Enabled:   true,
	}
	// 08:30 in New York, so the same local day still qualifies.
	now := time.Date(2026, time.June, 5, 8, 30, 0, 0, loc).UTC()

	next := recurrence.Next(sched, now)
	if next == nil {
		t.Fatal("expected a next trigger")
	}
	want := time.Date(2026, time.June, 5, 9, 0, 0, 0, loc).UTC()
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestWeeklyAlwaysLandsOnConfiguredWeekday(t *testing.T) {
	loc := mustLoad(t, "Europe/Berlin")
	sched := &store.Schedule{
		Type:      store.ScheduleWeekly,
		TimeOfDay: "18:30",
		Weekday:   int(time.Friday),
		Timezone:  "Europe/Berlin",
		Enabled:   true,
	}

	for day := 1; day <= 14; day++ {
		now := time.Date(2026, time.April, day, 12, 0, 0, 0, loc).UTC()
		next := recurrence.Next(sched, now)
		if next == nil {
			t.Fatalf("day %d: expected a next trigger", day)
		}
		if got := next.In(loc).Weekday(); got != time.Friday {
			t.Fatalf("day %d: expected Friday, got %s", day, got)
		}
		if !next.After(now) {
			t.Fatalf("day %d: trigger %v not strictly after now %v", day, next, now)
		}
	}
}

func TestWeeklySameWeekdayAfterTimeAdvancesWholeWeek(t *testing.T) {
	sched := &store.Schedule{
		Type:      store.ScheduleWeekly,
		TimeOfDay: "08:00",
		Weekday:   int(time.Monday),
		Timezone:  "UTC",
		Enabled:   true,
	}
	// Monday 2026-03-09 at 09:00, one hour past the slot.
	now := time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC)

	next := recurrence.Next(sched, now)
	if next == nil {
		t.Fatal("expected a next trigger")
	}
	want := time.Date(2026, time.March, 16, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestMonthlyDay31ClampsToFebruary(t *testing.T) {
	sched := &store.Schedule{
		Type:      store.ScheduleMonthly,
		TimeOfDay: "12:00",
		MonthDay:  31,
		Timezone:  "UTC",
		Enabled:   true,
	}
	now := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	next := recurrence.Next(sched, now)
	if next == nil {
		t.Fatal("expected a next trigger")
	}
	want := time.Date(2024, time.February, 29, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected leap February clamp to %v, got %v", want, next)
	}
}

func TestMonthlyPastCandidateAdvancesAndReclamps(t *testing.T) {
	sched := &store.Schedule{
		Type:      store.ScheduleMonthly,
		TimeOfDay: "12:00",
		MonthDay:  31,
		Timezone:  "UTC",
		Enabled:   true,
	}
	// Past January's day 31, so the next slot is February's clamped last day.
	now := time.Date(2026, time.January, 31, 13, 0, 0, 0, time.UTC)

	next := recurrence.Next(sched, now)
	if next == nil {
		t.Fatal("expected a next trigger")
	}
	want := time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestOnceSchedules(t *testing.T) {
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(48 * time.Hour)
	past := now.Add(-time.Hour)

	sched := &store.Schedule{Type: store.ScheduleOnce, RunAt: &future, Enabled: true}
	next := recurrence.Next(sched, now)
	if next == nil || !next.Equal(future) {
		t.Fatalf("expected stored future run time %v, got %v", future, next)
	}

	sched.RunAt = &past
	if next := recurrence.Next(sched, now); next != nil {
		t.Fatalf("past one-shot must yield no trigger, got %v", next)
	}

	sched.RunAt = nil
	if next := recurrence.Next(sched, now); next != nil {
		t.Fatalf("one-shot without run time must yield no trigger, got %v", next)
	}
}

func TestDisabledScheduleYieldsNothing(t *testing.T) {
	sched := &store.Schedule{
		Type:      store.ScheduleDaily,
		TimeOfDay: "14:00",
		Timezone:  "UTC",
		Enabled:   false,
	}
	if next := recurrence.Next(sched, time.Now().UTC()); next != nil {
		t.Fatalf("disabled schedule must yield no trigger, got %v", next)
	}
}

func TestUnknownTimezoneFallsBackToUTC(t *testing.T) {
	sched := &store.Schedule{
		Type:      store.ScheduleDaily,
		TimeOfDay: "06:00",
		Timezone:  "Not/AZone",
		Enabled:   true,
	}
	now := time.Date(2026, time.March, 10, 3, 0, 0, 0, time.UTC)

	next := recurrence.Next(sched, now)
	if next == nil {
		t.Fatal("expected a next trigger")
	}
	want := time.Date(2026, time.March, 10, 6, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected UTC fallback %v, got %v", want, next)
	}
}
