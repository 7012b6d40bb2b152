package store

import (
	"strings"
	"time"
)

// ScheduleType enumerates supported recurrence kinds.
type ScheduleType string

const (
	ScheduleOnce    ScheduleType = "once"
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
)

// ParseScheduleType converts a string into a known ScheduleType.
func ParseScheduleType(value string) (ScheduleType, bool) {
	normalized := ScheduleType(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ScheduleOnce, ScheduleDaily, ScheduleWeekly, ScheduleMonthly:
		return normalized, true
	}
	return "", false
}

// RunStatus is the lifecycle of a compilation run container.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusAcquiring RunStatus = "acquiring"
	RunStatusEncoding  RunStatus = "encoding"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusSkipped   RunStatus = "skipped"
)

// ParseRunStatus converts a string into a known RunStatus.
func ParseRunStatus(value string) (RunStatus, bool) {
	normalized := RunStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case RunStatusPending, RunStatusAcquiring, RunStatusEncoding, RunStatusCompleted, RunStatusFailed, RunStatusSkipped:
		return normalized, true
	}
	return "", false
}

// JobKind separates the two pipeline stages dispatched to workers.
type JobKind string

const (
	JobKindAcquire JobKind = "acquire"
	JobKindEncode  JobKind = "encode"
)

// JobStatus is the lifecycle of a dispatched run job. Jobs are created already
// started; success and failure are terminal.
type JobStatus string

const (
	JobStatusStarted JobStatus = "started"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailure JobStatus = "failure"
)

// IsTerminal reports whether a job status is final.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case JobStatusStarted, JobStatusSuccess, JobStatusFailure:
		return normalized, true
	}
	return "", false
}

// MediaKind distinguishes acquired clips from encoded compilations.
type MediaKind string

const (
	MediaKindClip        MediaKind = "clip"
	MediaKindCompilation MediaKind = "compilation"
)

// Recipe is a saved, reusable compilation definition.
type Recipe struct {
	ID              int64
	OwnerID         int64
	Name            string
	Source          SourceParams
	Output          OutputSettings
	ClipLimit       int
	LibraryFallback bool
	MinDuration     float64
	MaxDuration     float64
	IncludeTags     []string
	ExcludeTags     []string
	LastRunAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Schedule is a recurrence rule bound to one recipe. While Enabled is true,
// NextTriggerAt is either nil (needs recomputation) or the earliest future
// instant at which the schedule should fire.
type Schedule struct {
	ID              int64
	RecipeID        int64
	Type            ScheduleType
	TimeOfDay       string // "15:04" in the schedule's timezone
	Weekday         int        // 0-6, WEEKLY only
	MonthDay        int        // 1-31, MONTHLY only; clamped to shorter months
	RunAt           *time.Time // ONCE only; the single stored run instant, UTC
	Timezone        string     // IANA name
	Enabled         bool
	NextTriggerAt   *time.Time // UTC
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Run is one concrete execution of a recipe.
type Run struct {
	ID          int64
	RecipeID    int64
	OwnerID     int64
	Status      RunStatus
	OutputPath  string
	OutputBytes int64
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clip is one candidate piece of source content within a run.
type Clip struct {
	ID              int64
	RunID           int64
	OwnerID         int64
	SourceURL       string
	Title           string
	Creator         string
	IdentityKey     string
	MediaID         *int64
	Downloaded      bool
	DurationSeconds float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Media is a stored artifact with a derivable reuse identity.
type Media struct {
	ID              int64
	OwnerID         int64
	Kind            MediaKind
	StoragePath     string
	SizeBytes       int64
	DurationSeconds float64
	IdentityKey     string
	SourceURL       string
	CreatedAt       time.Time
}

// Job is one dispatched unit of work. The jobs table doubles as the dispatch
// queue: rows carry the target queue name and workers claim them through the
// gateway.
type Job struct {
	ID           int64
	Handle       string
	Kind         JobKind
	RunID        int64
	OwnerID      int64
	Queue        string
	Status       JobStatus
	Progress     int
	PayloadJSON  string
	ResultJSON   string
	ErrorMessage string
	ClaimedBy    string
	ClaimedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Worker is a live pool member, refreshed by heartbeat.
type Worker struct {
	WorkerID string
	Queue    string
	LastSeen time.Time
}
