package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/gateway"
	"clipforge/internal/identity"
	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/queues"
	"clipforge/internal/store"
)

// SourceItem is one candidate clip returned by a source lister.
type SourceItem struct {
	URL      string
	Title    string
	Creator  string
	PostedAt time.Time
}

// SourceLister is the external clip-source API, consumed as an opaque
// collaborator.
type SourceLister interface {
	ListTopClips(ctx context.Context, channel string, windowDays, limit int) ([]SourceItem, error)
}

// RetryPolicy bounds the acquisition poll loop. Tests inject a zero-wait
// policy; production derives one from configuration.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// PolicyFromConfig derives the poll policy from the acquisition settings.
func PolicyFromConfig(cfg config.Acquire) RetryPolicy {
	interval := time.Duration(cfg.PollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := time.Duration(cfg.PollTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	attempts := int(timeout / interval)
	if attempts < 1 {
		attempts = 1
	}
	return RetryPolicy{MaxAttempts: attempts, Interval: interval}
}

// Status classifies a run result so callers cannot mistake a benign empty
// condition for a failure.
type Status string

const (
	StatusDispatched Status = "dispatched"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Skip reasons.
const (
	ReasonNoClips           = "no_clips"
	ReasonUnsupportedSource = "unsupported_source"
	ReasonNoAcquiredClips   = "no_acquired_clips"
)

// ItemOutcome records the dispatch fate of one source item.
type ItemOutcome struct {
	ClipID    int64
	JobHandle string
	Completed bool
	Acquired  bool
}

// Result is the outcome of one coordinated run.
type Result struct {
	Status          Status
	Reason          string
	RunID           int64
	EncodeJobHandle string
	Items           []ItemOutcome
}

// Coordinator orchestrates one end-to-end recipe run: list source clips,
// dedupe, dispatch acquisition jobs, poll for completion, then dispatch the
// encode job.
type Coordinator struct {
	store    *store.Store
	lister   SourceLister
	resolver *queues.Resolver
	notifier notifications.Service
	logger   *slog.Logger

	prefersAccelerated bool
	poll               RetryPolicy
	now                func() time.Time
}

// Option adjusts coordinator construction.
type Option func(*Coordinator)

// WithRetryPolicy overrides the acquisition poll policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Coordinator) {
		if policy.MaxAttempts > 0 {
			c.poll = policy
		}
	}
}

// New wires a coordinator.
func New(st *store.Store, lister SourceLister, resolver *queues.Resolver, notifier notifications.Service, cfg *config.Config, logger *slog.Logger, opts ...Option) *Coordinator {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	c := &Coordinator{
		store:              st,
		lister:             lister,
		resolver:           resolver,
		notifier:           notifier,
		logger:             logging.NewComponentLogger(logger, "coordinator"),
		prefersAccelerated: cfg.Scheduler.PreferAccelerated,
		poll:               PolicyFromConfig(cfg.Acquire),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one compilation run for the recipe. Expected empty conditions
// come back as a skipped result, never as an error; unexpected failures
// propagate to the caller.
func (c *Coordinator) Run(ctx context.Context, recipeID int64) (*Result, error) {
	recipe, err := c.store.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, fmt.Errorf("load recipe %d: %w", recipeID, err)
	}
	if recipe == nil {
		return nil, fmt.Errorf("recipe %d not found", recipeID)
	}
	log := c.logger.With(
		logging.Int64(logging.FieldRecipeID, recipe.ID),
		logging.Int64(logging.FieldOwnerID, recipe.OwnerID))

	candidates, skipReason, err := c.collectCandidates(ctx, recipe)
	if err != nil {
		return nil, err
	}
	if skipReason != "" {
		log.Info("run skipped", logging.String("reason", skipReason))
		c.runEffects(ctx, func(ctx context.Context) error {
			return c.notifier.NotifyRunSkipped(ctx, recipe.Name, skipReason)
		})
		return &Result{Status: StatusSkipped, Reason: skipReason}, nil
	}

	deduped := dedupe(candidates)

	run, err := c.store.CreateRun(ctx, recipe.ID, recipe.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	log = log.With(logging.Int64(logging.FieldRunID, run.ID))
	if err := c.store.UpdateRunStatus(ctx, run.ID, store.RunStatusAcquiring); err != nil {
		return nil, err
	}

	outcomes, err := c.dispatchAcquisitions(ctx, recipe, run, deduped)
	if err != nil {
		return nil, err
	}
	log.Info("dispatched acquisition jobs", logging.Int("count", len(outcomes)))

	c.awaitAcquisitions(ctx, run.ID, outcomes)

	acquired := 0
	for _, outcome := range outcomes {
		if outcome.Acquired {
			acquired++
		}
	}
	if acquired == 0 {
		log.Warn("no clips acquired, abandoning run")
		if err := c.store.UpdateRunStatus(ctx, run.ID, store.RunStatusFailed); err != nil {
			return nil, err
		}
		return &Result{Status: StatusFailed, Reason: ReasonNoAcquiredClips, RunID: run.ID, Items: outcomes}, nil
	}

	encodeHandle, err := c.dispatchEncode(ctx, recipe, run)
	if err != nil {
		return nil, err
	}
	if err := c.store.TouchRecipeLastRun(ctx, recipe.ID, c.now().UTC()); err != nil {
		return nil, err
	}
	log.Info("dispatched encode job",
		logging.String(logging.FieldJobHandle, encodeHandle),
		logging.Int("acquired", acquired))

	c.runEffects(ctx, func(ctx context.Context) error {
		return c.notifier.NotifyRunDispatched(ctx, recipe.Name, run.ID, acquired)
	})

	return &Result{
		Status:          StatusDispatched,
		RunID:           run.ID,
		EncodeJobHandle: encodeHandle,
		Items:           outcomes,
	}, nil
}

// collectCandidates resolves the recipe source into candidate items. A
// non-empty skip reason means the run has nothing to do.
func (c *Coordinator) collectCandidates(ctx context.Context, recipe *store.Recipe) ([]SourceItem, string, error) {
	var candidates []SourceItem

	switch recipe.Source.Kind {
	case store.SourceTwitch:
		listed, err := c.lister.ListTopClips(ctx, recipe.Source.Twitch.Channel, recipe.Source.Twitch.WindowDays, recipe.ClipLimit)
		if err != nil {
			// Transient lister failures degrade to the fallback path when
			// one is configured.
			c.logger.Warn("source lister failed", logging.Error(err))
			if !recipe.LibraryFallback {
				return nil, "", fmt.Errorf("list source clips: %w", err)
			}
		}
		candidates = listed
	case store.SourceLibrary:
		// Library recipes go straight to the owner's produced clips.
	default:
		return nil, ReasonUnsupportedSource, nil
	}

	if len(candidates) == 0 && (recipe.LibraryFallback || recipe.Source.Kind == store.SourceLibrary) {
		library, err := c.store.RecentClipsForOwner(ctx, recipe.OwnerID, recipe.ClipLimit,
			recipe.MinDuration, recipe.MaxDuration, recipe.IncludeTags, recipe.ExcludeTags)
		if err != nil {
			return nil, "", fmt.Errorf("library fallback: %w", err)
		}
		for _, media := range library {
			if media.SourceURL == "" {
				continue
			}
			candidates = append(candidates, SourceItem{URL: media.SourceURL})
		}
	}
	if len(candidates) == 0 {
		return nil, ReasonNoClips, nil
	}
	return candidates, "", nil
}

// dedupe drops candidates whose derived identity was already seen; the first
// occurrence wins and order is preserved.
func dedupe(items []SourceItem) []SourceItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]SourceItem, 0, len(items))
	for _, item := range items {
		key := identity.Key(item.URL)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func (c *Coordinator) dispatchAcquisitions(ctx context.Context, recipe *store.Recipe, run *store.Run, items []SourceItem) ([]ItemOutcome, error) {
	outcomes := make([]ItemOutcome, 0, len(items))
	for _, item := range items {
		clip, err := c.store.CreateClip(ctx, &store.Clip{
			RunID:       run.ID,
			OwnerID:     recipe.OwnerID,
			SourceURL:   item.URL,
			Title:       item.Title,
			Creator:     item.Creator,
			IdentityKey: identity.Key(item.URL),
		})
		if err != nil {
			return nil, fmt.Errorf("create clip: %w", err)
		}

		payload, err := json.Marshal(gateway.AcquirePayload{ClipID: clip.ID})
		if err != nil {
			return nil, fmt.Errorf("encode acquire payload: %w", err)
		}
		queue := c.resolver.Resolve(ctx, c.prefersAccelerated)
		job, err := c.store.CreateJob(ctx, &store.Job{
			Kind:        store.JobKindAcquire,
			RunID:       run.ID,
			OwnerID:     recipe.OwnerID,
			Queue:       queue,
			PayloadJSON: string(payload),
		})
		if err != nil {
			return nil, fmt.Errorf("create acquire job: %w", err)
		}
		outcomes = append(outcomes, ItemOutcome{ClipID: clip.ID, JobHandle: job.Handle})
	}
	return outcomes, nil
}

// awaitAcquisitions polls the dispatched handles until all reach a terminal
// state or the bounded policy is spent. Items that never finish are left
// un-acquired and simply excluded from the encode step.
func (c *Coordinator) awaitAcquisitions(ctx context.Context, runID int64, outcomes []ItemOutcome) {
	for attempt := 0; attempt < c.poll.MaxAttempts; attempt++ {
		pending := 0
		for i := range outcomes {
			if outcomes[i].Completed {
				continue
			}
			job, err := c.store.GetJobByHandle(ctx, outcomes[i].JobHandle)
			if err != nil || job == nil {
				pending++
				continue
			}
			if !job.Status.IsTerminal() {
				pending++
				continue
			}
			outcomes[i].Completed = true
			outcomes[i].Acquired = job.Status == store.JobStatusSuccess
		}
		if pending == 0 {
			return
		}
		if attempt == c.poll.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.poll.Interval):
		}
	}
	c.logger.Warn("acquisition poll budget exhausted",
		logging.Int64(logging.FieldRunID, runID))
}

func (c *Coordinator) dispatchEncode(ctx context.Context, recipe *store.Recipe, run *store.Run) (string, error) {
	if err := c.store.UpdateRunStatus(ctx, run.ID, store.RunStatusEncoding); err != nil {
		return "", err
	}
	payload, err := json.Marshal(gateway.EncodePayload{
		RunID:     run.ID,
		Width:     recipe.Output.Width,
		Height:    recipe.Output.Height,
		FPS:       recipe.Output.FPS,
		Container: recipe.Output.Container,
	})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	queue := c.resolver.Resolve(ctx, c.prefersAccelerated)
	job, err := c.store.CreateJob(ctx, &store.Job{
		Kind:        store.JobKindEncode,
		RunID:       run.ID,
		OwnerID:     recipe.OwnerID,
		Queue:       queue,
		PayloadJSON: string(payload),
	})
	if err != nil {
		return "", fmt.Errorf("create encode job: %w", err)
	}
	return job.Handle, nil
}

// runEffects executes post-commit side effects in order after the
// authoritative state transition. A failing effect is logged, never allowed
// to disturb the run itself.
func (c *Coordinator) runEffects(ctx context.Context, effects ...func(context.Context) error) {
	for _, effect := range effects {
		if err := effect(ctx); err != nil {
			c.logger.Warn("post-commit effect failed", logging.Error(err))
		}
	}
}
