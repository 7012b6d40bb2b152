// Package recurrence computes the next trigger instant for a schedule. It is
// a pure calculation over the schedule definition and a reference time; the
// scanner calls it on every tick for every enabled schedule, so it must stay
// cheap and side-effect free.
package recurrence

import (
	"time"

	"clipforge/internal/store"
)

// Next returns the earliest instant strictly after now at which the schedule
// should fire, in UTC, or nil when the schedule will never fire again.
// Candidate construction and comparison happen in the schedule's timezone so
// daylight-saving shifts move the trigger with the local clock. An
// unresolvable timezone name falls back to UTC rather than failing.
func Next(sched *store.Schedule, now time.Time) *time.Time {
	if sched == nil || !sched.Enabled {
		return nil
	}

	if sched.Type == store.ScheduleOnce {
		if sched.RunAt == nil || !sched.RunAt.After(now) {
			return nil
		}
		at := sched.RunAt.UTC()
		return &at
	}

	hour, minute, ok := parseTimeOfDay(sched.TimeOfDay)
	if !ok {
		return nil
	}
	loc := loadLocation(sched.Timezone)
	local := now.In(loc)

	var candidate time.Time
	switch sched.Type {
	case store.ScheduleDaily:
		candidate = dayCandidate(local, 0, hour, minute, loc)
		if !candidate.After(local) {
			candidate = dayCandidate(local, 1, hour, minute, loc)
		}
	case store.ScheduleWeekly:
		for offset := 0; offset <= 7; offset++ {
			candidate = dayCandidate(local, offset, hour, minute, loc)
			if int(candidate.Weekday()) == sched.Weekday && candidate.After(local) {
				break
			}
		}
	case store.ScheduleMonthly:
		candidate = monthCandidate(local, 0, sched.MonthDay, hour, minute, loc)
		if !candidate.After(local) {
			candidate = monthCandidate(local, 1, sched.MonthDay, hour, minute, loc)
		}
	default:
		return nil
	}

	utc := candidate.UTC()
	return &utc
}

func parseTimeOfDay(value string) (hour, minute int, ok bool) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, false
	}
	return parsed.Hour(), parsed.Minute(), true
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func dayCandidate(local time.Time, dayOffset, hour, minute int, loc *time.Location) time.Time {
	base := local.AddDate(0, 0, dayOffset)
	return time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, loc)
}

// monthCandidate clamps the configured day to the target month's length, so
// day 31 lands on the last day of shorter months.
func monthCandidate(local time.Time, monthOffset, monthDay, hour, minute int, loc *time.Location) time.Time {
	firstOfMonth := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, monthOffset, 0)
	day := monthDay
	if last := lastDayOfMonth(firstOfMonth); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(firstOfMonth.Year(), firstOfMonth.Month(), day, hour, minute, 0, 0, loc)
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
