package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"clipforge/internal/acquire"
	"clipforge/internal/config"
	"clipforge/internal/coordinator"
	"clipforge/internal/gateway"
	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/queues"
	"clipforge/internal/scanner"
	"clipforge/internal/store"
)

// Daemon hosts the control-plane services and enforces single-instance
// execution: the worker gateway, the due-task scanner, and the acquisition
// cache eviction loop.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *store.Store
	gateway     *gateway.Server
	scanner     *scanner.Scanner
	coordinator *coordinator.Coordinator
	cache       *acquire.Cache

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	GatewayAddr  string
	DatabasePath string
	LockFilePath string
}

// Option adjusts daemon construction.
type Option func(*options)

type options struct {
	lister coordinator.SourceLister
}

// WithSourceLister injects the external clip-source client. Without one,
// source listings come back empty and recipes fall through to their library
// fallback.
func WithSourceLister(lister coordinator.SourceLister) Option {
	return func(o *options) {
		if lister != nil {
			o.lister = lister
		}
	}
}

type emptyLister struct{}

func (emptyLister) ListTopClips(context.Context, string, int, int) ([]coordinator.SourceItem, error) {
	return nil, nil
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}
	settings := options{lister: emptyLister{}}
	for _, opt := range opts {
		opt(&settings)
	}

	notifier := notifications.NewService(cfg)
	gw, err := gateway.NewServer(cfg, st, logger, gateway.WithNotifier(notifier))
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	resolver := queues.NewResolver(st, cfg.Queues, logger)
	coord := coordinator.New(st, settings.lister, resolver, notifier, cfg, logger)
	sc := scanner.New(st, coord, cfg, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "clipforged.lock")
	return &Daemon{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		store:       st,
		gateway:     gw,
		scanner:     sc,
		coordinator: coord,
		cache:       acquire.NewCache(cfg, logger),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}, nil
}

// Start acquires the singleton lock and launches the hosted services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clipforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.gateway.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start gateway: %w", err)
	}
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.scanner.Run(runCtx)
	}()

	if d.cache != nil {
		interval := time.Duration(d.cfg.Acquire.CacheTTLHours) * time.Hour / 4
		if interval < time.Minute {
			interval = time.Minute
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.cache.RunEviction(runCtx, interval)
		}()
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("gateway", d.gateway.Addr()),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the hosted services and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.gateway.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// RunRecipe executes one compilation run on demand through the same
// coordinator the scanner uses.
func (d *Daemon) RunRecipe(ctx context.Context, recipeID int64) (*coordinator.Result, error) {
	return d.coordinator.Run(ctx, recipeID)
}

// ScanOnce walks the enabled schedules a single time.
func (d *Daemon) ScanOnce(ctx context.Context) (scanner.Summary, error) {
	return d.scanner.ScanOnce(ctx)
}

// EvictCache runs one eviction pass over the acquisition cache.
func (d *Daemon) EvictCache(ctx context.Context) (int, error) {
	if d.cache == nil {
		return 0, nil
	}
	return d.cache.EvictExpired(ctx)
}

// TestNotification triggers a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		GatewayAddr:  d.gateway.Addr(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
}
