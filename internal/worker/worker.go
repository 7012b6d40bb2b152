// Package worker runs the execution side of the job pipeline. A pool
// registers itself on one queue, claims jobs through the gateway, and
// executes acquisitions and encodes with the external tool clients. Workers
// never touch the store directly.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"clipforge/internal/acquire"
	"clipforge/internal/config"
	"clipforge/internal/gateway"
	"clipforge/internal/logging"
	"clipforge/internal/store"
)

// GatewayAPI is the slice of the gateway client the pool needs.
type GatewayAPI interface {
	Hello(ctx context.Context, workerID, queue string) error
	ClaimJob(ctx context.Context, workerID, queue string) (*gateway.JobDescriptor, error)
	UpdateJob(ctx context.Context, handle string, req gateway.UpdateJobRequest) error
	RunMedia(ctx context.Context, runID int64) ([]gateway.MediaDescriptor, error)
	UpdateRun(ctx context.Context, runID int64, req gateway.UpdateRunRequest) error
	RecordUsage(ctx context.Context, ownerID, runID, seconds int64) error
	CreateMedia(ctx context.Context, req gateway.CreateMediaRequest) (int64, error)
}

// AcquireRunner satisfies acquisition jobs.
type AcquireRunner interface {
	Execute(ctx context.Context, payload gateway.AcquirePayload) (*acquire.Outcome, error)
}

// Encoder stitches acquired clips into a compilation.
type Encoder interface {
	Concat(ctx context.Context, inputs []string, settings store.OutputSettings, destPath string) (string, error)
	Duration(ctx context.Context, path string) (float64, error)
}

// Pool is one worker process bound to a single queue.
type Pool struct {
	id           string
	queue        string
	client       GatewayAPI
	acquirer     AcquireRunner
	encoder      Encoder
	outputDir    string
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option adjusts pool construction.
type Option func(*Pool)

// WithWorkerID pins the pool's identity.
func WithWorkerID(id string) Option {
	return func(p *Pool) {
		if id != "" {
			p.id = id
		}
	}
}

// WithPollInterval overrides the idle claim interval.
func WithPollInterval(interval time.Duration) Option {
	return func(p *Pool) {
		if interval > 0 {
			p.pollInterval = interval
		}
	}
}

// NewPool wires a worker pool for one queue.
func NewPool(cfg *config.Config, client GatewayAPI, acquirer AcquireRunner, encoder Encoder, queue string, logger *slog.Logger, opts ...Option) *Pool {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "worker"
	}
	p := &Pool{
		id:           fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
		queue:        queue,
		client:       client,
		acquirer:     acquirer,
		encoder:      encoder,
		outputDir:    filepath.Join(cfg.Paths.DataDir, "compilations"),
		pollInterval: 2 * time.Second,
		logger:       logging.NewComponentLogger(logger, "worker"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(
		logging.String("worker_id", p.id),
		logging.String(logging.FieldQueue, p.queue))
	return p
}

// ID reports the pool's worker identity.
func (p *Pool) ID() string { return p.id }

// Run registers the pool and claims jobs until the context is cancelled.
// Claiming doubles as the heartbeat, so an idle worker stays visible to the
// queue resolver.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.client.Hello(ctx, p.id, p.queue); err != nil {
		return fmt.Errorf("worker hello: %w", err)
	}
	p.logger.Info("worker registered")

	for {
		processed, err := p.RunOnce(ctx)
		if err != nil {
			p.logger.Error("job processing failed", logging.Error(err))
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job was
// claimed; job-level failures are reported through the gateway and returned.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.client.ClaimJob(ctx, p.id, p.queue)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	log := p.logger.With(
		logging.String(logging.FieldJobHandle, job.Handle),
		logging.String("kind", job.Kind))
	log.Info("job claimed")

	var jobErr error
	switch store.JobKind(job.Kind) {
	case store.JobKindAcquire:
		jobErr = p.runAcquire(ctx, job)
	case store.JobKindEncode:
		jobErr = p.runEncode(ctx, job)
	default:
		jobErr = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	if jobErr != nil {
		p.failJob(ctx, job.Handle, jobErr)
		return true, jobErr
	}
	log.Info("job complete")
	return true, nil
}

func (p *Pool) runAcquire(ctx context.Context, job *gateway.JobDescriptor) error {
	var payload gateway.AcquirePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("decode acquire payload: %w", err)
	}
	p.reportProgress(ctx, job.Handle, 10)

	outcome, err := p.acquirer.Execute(ctx, payload)
	if err != nil {
		return err
	}

	status := string(store.JobStatusSuccess)
	progress := 100
	return p.client.UpdateJob(ctx, job.Handle, gateway.UpdateJobRequest{
		Status:   &status,
		Progress: &progress,
		ResultFragment: map[string]any{
			"result":           string(outcome.Result),
			"media_id":         outcome.MediaID,
			"size_bytes":       outcome.SizeBytes,
			"duration_seconds": outcome.DurationSeconds,
		},
	})
}

func (p *Pool) runEncode(ctx context.Context, job *gateway.JobDescriptor) error {
	var payload gateway.EncodePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("decode encode payload: %w", err)
	}
	media, err := p.client.RunMedia(ctx, payload.RunID)
	if err != nil {
		return fmt.Errorf("list run media: %w", err)
	}
	if len(media) == 0 {
		p.markRunFailed(ctx, payload.RunID)
		return fmt.Errorf("run %d has no acquired media", payload.RunID)
	}
	p.reportProgress(ctx, job.Handle, 25)

	inputs := make([]string, 0, len(media))
	for _, record := range media {
		inputs = append(inputs, record.StoragePath)
	}
	container := payload.Container
	if container == "" {
		container = "mp4"
	}
	dest := filepath.Join(p.outputDir, fmt.Sprintf("run-%d.%s", payload.RunID, container))
	settings := store.OutputSettings{
		Width:     payload.Width,
		Height:    payload.Height,
		FPS:       payload.FPS,
		Container: container,
	}
	if _, err := p.encoder.Concat(ctx, inputs, settings, dest); err != nil {
		p.markRunFailed(ctx, payload.RunID)
		return err
	}
	p.reportProgress(ctx, job.Handle, 85)

	info, err := os.Stat(dest)
	if err != nil {
		p.markRunFailed(ctx, payload.RunID)
		return fmt.Errorf("encoded output missing: %w", err)
	}
	duration, err := p.encoder.Duration(ctx, dest)
	if err != nil {
		p.logger.Warn("duration probe failed", logging.Error(err))
		duration = 0
	}

	if _, err := p.client.CreateMedia(ctx, gateway.CreateMediaRequest{
		OwnerID:         job.OwnerID,
		Kind:            string(store.MediaKindCompilation),
		StoragePath:     dest,
		SizeBytes:       info.Size(),
		DurationSeconds: duration,
	}); err != nil {
		return fmt.Errorf("register compilation: %w", err)
	}

	completedStatus := string(store.RunStatusCompleted)
	now := time.Now().UTC()
	size := info.Size()
	if err := p.client.UpdateRun(ctx, payload.RunID, gateway.UpdateRunRequest{
		Status:      &completedStatus,
		OutputPath:  &dest,
		OutputBytes: &size,
		CompletedAt: &now,
	}); err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if err := p.client.RecordUsage(ctx, job.OwnerID, payload.RunID, int64(duration)); err != nil {
		// The compilation already shipped; a ledger miss is not worth
		// failing the job over.
		p.logger.Warn("usage recording failed", logging.Error(err))
	}

	status := string(store.JobStatusSuccess)
	progress := 100
	return p.client.UpdateJob(ctx, job.Handle, gateway.UpdateJobRequest{
		Status:   &status,
		Progress: &progress,
		ResultFragment: map[string]any{
			"output_path":      dest,
			"output_bytes":     info.Size(),
			"duration_seconds": duration,
		},
	})
}

func (p *Pool) reportProgress(ctx context.Context, handle string, progress int) {
	if err := p.client.UpdateJob(ctx, handle, gateway.UpdateJobRequest{Progress: &progress}); err != nil {
		p.logger.Warn("progress report failed", logging.Error(err))
	}
}

func (p *Pool) failJob(ctx context.Context, handle string, cause error) {
	status := string(store.JobStatusFailure)
	message := cause.Error()
	if err := p.client.UpdateJob(ctx, handle, gateway.UpdateJobRequest{
		Status:       &status,
		ErrorMessage: &message,
	}); err != nil {
		p.logger.Error("failure report failed", logging.Error(err))
	}
}

func (p *Pool) markRunFailed(ctx context.Context, runID int64) {
	status := string(store.RunStatusFailed)
	if err := p.client.UpdateRun(ctx, runID, gateway.UpdateRunRequest{Status: &status}); err != nil {
		p.logger.Warn("run failure report failed", logging.Error(err))
	}
}
