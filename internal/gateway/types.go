package gateway

import "time"

// ClipDescriptor is the worker-facing view of a source item.
type ClipDescriptor struct {
	ID          int64  `json:"id"`
	RunID       int64  `json:"run_id"`
	OwnerID     int64  `json:"owner_id"`
	SourceURL   string `json:"source_url"`
	Title       string `json:"title,omitempty"`
	Creator     string `json:"creator,omitempty"`
	IdentityKey string `json:"identity_key"`
	Downloaded  bool   `json:"downloaded"`
}

// ClipStatusRequest reports an acquisition outcome for a source item.
type ClipStatusRequest struct {
	Acquired        bool    `json:"acquired"`
	MediaID         *int64  `json:"media_id,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// MediaDescriptor is the worker-facing view of a produced artifact.
type MediaDescriptor struct {
	ID              int64     `json:"id"`
	OwnerID         int64     `json:"owner_id"`
	Kind            string    `json:"kind"`
	StoragePath     string    `json:"storage_path"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds float64   `json:"duration_seconds"`
	IdentityKey     string    `json:"identity_key,omitempty"`
	SourceURL       string    `json:"source_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateMediaRequest registers a produced artifact.
type CreateMediaRequest struct {
	OwnerID         int64   `json:"owner_id"`
	Kind            string  `json:"kind"`
	StoragePath     string  `json:"storage_path"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	IdentityKey     string  `json:"identity_key,omitempty"`
	SourceURL       string  `json:"source_url,omitempty"`
}

// CreateMediaResponse returns the new record id.
type CreateMediaResponse struct {
	ID int64 `json:"id"`
}

// ReuseLookupRequest asks whether a prior artifact can stand in for a fresh
// download. IdentityKey is optional; when empty it is derived from SourceURL.
type ReuseLookupRequest struct {
	OwnerID     int64  `json:"owner_id"`
	SourceURL   string `json:"source_url"`
	IdentityKey string `json:"identity_key,omitempty"`
}

// ReuseLookupResponse reports a reuse hit. Found is true only when the record
// exists and its backing file is still present on disk.
type ReuseLookupResponse struct {
	Found bool             `json:"found"`
	Media *MediaDescriptor `json:"media,omitempty"`
}

// CreateJobRequest registers a dispatched unit of work.
type CreateJobRequest struct {
	Handle      string `json:"handle,omitempty"`
	Kind        string `json:"kind"`
	RunID       int64  `json:"run_id"`
	OwnerID     int64  `json:"owner_id"`
	Queue       string `json:"queue"`
	PayloadJSON string `json:"payload_json,omitempty"`
}

// CreateJobResponse returns the stored job identity.
type CreateJobResponse struct {
	ID     int64  `json:"id"`
	Handle string `json:"handle"`
}

// UpdateJobRequest carries a worker progress report. Omitted fields leave the
// stored value untouched; ResultFragment merges key by key.
type UpdateJobRequest struct {
	Status         *string        `json:"status,omitempty"`
	Progress       *int           `json:"progress,omitempty"`
	ResultFragment map[string]any `json:"result_fragment,omitempty"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
}

// JobDescriptor is the worker-facing view of a dispatched job.
type JobDescriptor struct {
	ID          int64      `json:"id"`
	Handle      string     `json:"handle"`
	Kind        string     `json:"kind"`
	RunID       int64      `json:"run_id"`
	OwnerID     int64      `json:"owner_id"`
	Queue       string     `json:"queue"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	PayloadJSON string     `json:"payload_json,omitempty"`
	ResultJSON  string     `json:"result_json,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// QuotaSnapshot bundles an owner's tier limits with current consumption so a
// worker can derive remaining budgets in one call.
type QuotaSnapshot struct {
	StorageBytesLimit  int64 `json:"storage_bytes_limit"`
	StorageBytesUsed   int64 `json:"storage_bytes_used"`
	RenderSecondsLimit int64 `json:"render_seconds_limit"`
	RenderSecondsUsed  int64 `json:"render_seconds_used"`
	MaxSchedules       int64 `json:"max_schedules"`
	SchedulesEnabled   int64 `json:"schedules_enabled"`
}

// RecordUsageRequest appends render seconds to the owner's monthly ledger.
type RecordUsageRequest struct {
	OwnerID int64 `json:"owner_id"`
	RunID   int64 `json:"run_id"`
	Seconds int64 `json:"seconds"`
}

// UpdateRunRequest mutates a run container. Omitted fields are untouched.
type UpdateRunRequest struct {
	Status      *string    `json:"status,omitempty"`
	OutputPath  *string    `json:"output_path,omitempty"`
	OutputBytes *int64     `json:"output_bytes,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunMediaResponse lists a run's acquired artifacts in clip order.
type RunMediaResponse struct {
	Media []MediaDescriptor `json:"media"`
}

// WorkerHelloRequest registers or refreshes a worker's pool membership.
type WorkerHelloRequest struct {
	WorkerID string `json:"worker_id"`
	Queue    string `json:"queue"`
}

// ClaimJobRequest asks for the oldest unclaimed job on the worker's queue.
type ClaimJobRequest struct {
	WorkerID string `json:"worker_id"`
	Queue    string `json:"queue"`
}

// ClaimJobResponse returns the claimed job, if any.
type ClaimJobResponse struct {
	Claimed bool           `json:"claimed"`
	Job     *JobDescriptor `json:"job,omitempty"`
}

// AcquirePayload is the payload carried by acquisition jobs.
type AcquirePayload struct {
	ClipID int64 `json:"clip_id"`
}

// EncodePayload is the payload carried by encode jobs.
type EncodePayload struct {
	RunID     int64  `json:"run_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FPS       int    `json:"fps"`
	Container string `json:"container"`
}
