package daemon_test

import (
	"context"
	"testing"
	"time"

	"clipforge/internal/coordinator"
	"clipforge/internal/daemon"
	"clipforge/internal/logging"
	"clipforge/internal/testsupport"
)

func TestStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status()
	if !status.Running {
		t.Fatal("expected running status")
	}
	if status.GatewayAddr == "" {
		t.Fatal("expected a bound gateway address")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected stopped status")
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	// The second instance must fail to take the lock. A fresh bind address
	// keeps the gateway out of the way.
	second, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected the second instance to be rejected")
	}
}

func TestScanOnceThroughDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, err := d.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if summary.Examined != 0 || summary.Triggered != 0 {
		t.Fatalf("expected an empty pass, got %+v", summary)
	}
}

func TestRunRecipeSkipsWithoutSources(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	recipe := testsupport.NewRecipe(t, st, 1, "Daemon Run")

	d, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	result, err := d.RunRecipe(context.Background(), recipe.ID)
	if err != nil {
		t.Fatalf("RunRecipe: %v", err)
	}
	if result.Status != coordinator.StatusSkipped {
		t.Fatalf("expected skipped result with no source client, got %s", result.Status)
	}
}
