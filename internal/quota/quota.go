// Package quota implements the pure admission decisions made before expensive
// work is dispatched. It never reads or writes state itself; callers supply a
// usage snapshot and the owner's tier limits.
package quota

import "fmt"

// Unlimited marks a tier ceiling that is not enforced.
const Unlimited int64 = -1

// Limits are the per-owner ceilings attached to a tier.
type Limits struct {
	StorageBytes      int64
	RenderSecondsPerM int64
	MaxSchedules      int64
}

// Usage is a point-in-time snapshot of an owner's consumption.
type Usage struct {
	StorageBytes  int64
	RenderSeconds int64
	Schedules     int64
}

// Decision reports the outcome of an admission check. Rejections carry the
// ceiling and remaining budget so callers can surface them verbatim.
type Decision struct {
	Allowed   bool
	Resource  string
	Requested int64
	Limit     int64
	Remaining int64
}

func (d Decision) String() string {
	if d.Allowed {
		return fmt.Sprintf("%s: allowed (%d requested, %d remaining)", d.Resource, d.Requested, d.Remaining)
	}
	return fmt.Sprintf("%s: rejected (%d requested, limit %d, %d remaining)", d.Resource, d.Requested, d.Limit, d.Remaining)
}

// CheckStorage decides whether requested additional bytes fit the storage
// ceiling. A request exactly equal to the remaining budget is allowed.
func CheckStorage(limits Limits, usage Usage, requestedBytes int64) Decision {
	return check("storage_bytes", limits.StorageBytes, usage.StorageBytes, requestedBytes)
}

// CheckRenderSeconds decides whether requested render time fits the monthly
// render budget.
func CheckRenderSeconds(limits Limits, usage Usage, requestedSeconds int64) Decision {
	return check("render_seconds", limits.RenderSecondsPerM, usage.RenderSeconds, requestedSeconds)
}

// CheckScheduleCount decides whether one more enabled schedule fits the tier.
func CheckScheduleCount(limits Limits, usage Usage) Decision {
	return check("schedules", limits.MaxSchedules, usage.Schedules, 1)
}

// RemainingStorage returns the byte budget left under the storage ceiling, or
// Unlimited when the tier does not enforce one. Used to derive the downloader
// byte ceiling.
func RemainingStorage(limits Limits, usage Usage) int64 {
	if limits.StorageBytes == Unlimited {
		return Unlimited
	}
	remaining := limits.StorageBytes - usage.StorageBytes
	if remaining < 0 {
		return 0
	}
	return remaining
}

func check(resource string, limit, used, requested int64) Decision {
	if limit == Unlimited {
		return Decision{Allowed: true, Resource: resource, Requested: requested, Limit: limit, Remaining: Unlimited}
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   requested <= remaining,
		Resource:  resource,
		Requested: requested,
		Limit:     limit,
		Remaining: remaining,
	}
}
