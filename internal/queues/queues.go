// Package queues picks the execution queue for dispatched jobs based on live
// worker-pool membership. The housekeeping queue is reserved for maintenance
// work and is never a dispatch target for run jobs.
package queues

import (
	"context"
	"log/slog"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/logging"
)

// Membership reports live worker presence per queue. The store's worker
// heartbeat table satisfies it.
type Membership interface {
	LiveWorkerCount(ctx context.Context, queue string, since time.Time) (int, error)
}

// Resolver selects the target queue for acquisition and encode jobs. It sits
// on the critical dispatch path, so membership inspection runs under a short
// bounded timeout and any failure degrades to the configured default queue.
type Resolver struct {
	membership Membership
	cfg        config.Queues
	logger     *slog.Logger
	now        func() time.Time
}

// NewResolver builds a resolver over a membership source.
func NewResolver(membership Membership, cfg config.Queues, logger *slog.Logger) *Resolver {
	return &Resolver{
		membership: membership,
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "queues"),
		now:        time.Now,
	}
}

// Resolve returns the queue name for one dispatch. Accelerated-preferring
// work goes to the accelerated queue when it has a live worker, falling back
// to the standard queue; work without the preference tries standard first.
// When no workers are visible, or inspection fails, the configured default
// queue is returned so dispatch never blocks on pool state.
func (r *Resolver) Resolve(ctx context.Context, prefersAccelerated bool) string {
	timeout := time.Duration(r.cfg.ResolveTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cutoff := r.now().UTC().Add(-time.Duration(r.cfg.WorkerTTL) * time.Second)

	order := []string{r.cfg.Standard, r.cfg.Accelerated}
	if prefersAccelerated {
		order = []string{r.cfg.Accelerated, r.cfg.Standard}
	}
	for _, queue := range order {
		if queue == "" || queue == r.cfg.Housekeeping {
			continue
		}
		count, err := r.membership.LiveWorkerCount(ctx, queue, cutoff)
		if err != nil {
			r.logger.Warn("queue membership inspection failed",
				logging.String(logging.FieldQueue, queue),
				logging.Error(err))
			return r.cfg.Default
		}
		if count > 0 {
			return queue
		}
	}

	r.logger.Debug("no live workers visible, using default queue",
		logging.String(logging.FieldQueue, r.cfg.Default))
	return r.cfg.Default
}
