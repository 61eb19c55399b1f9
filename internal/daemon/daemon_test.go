package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tubefront/internal/api"
	"tubefront/internal/config"
	"tubefront/internal/jobs"
	"tubefront/internal/progress"
	"tubefront/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t, nil, testsupport.WithStubbedBinaries())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := f.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Bind == f.cfg.API.Bind {
		t.Fatalf("expected resolved listener address, got %q", status.Bind)
	}
	if len(status.Dependencies) != 2 || !status.Dependencies[0].Available {
		t.Fatalf("expected stubbed dependencies to be available: %+v", status.Dependencies)
	}

	client, err := api.NewClient(f.daemon.Addr(), "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	remote, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("client.Status: %v", err)
	}
	if !remote.Running || remote.Jobs == nil {
		t.Fatalf("unexpected remote status %+v", remote)
	}

	// Second start should fail
	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	f.daemon.Stop()
	if f.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	first := newFixture(t, nil)
	ctx := context.Background()
	if err := first.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second := newFixture(t, func(cfg *config.Config) {
		cfg.Paths.StateDir = first.cfg.Paths.StateDir
	})
	if err := second.daemon.Start(ctx); err == nil {
		t.Fatal("expected lock contention to fail the second daemon")
	}

	first.daemon.Stop()
	if err := second.daemon.Start(ctx); err != nil {
		t.Fatalf("expected second daemon to start after first stopped: %v", err)
	}
}

func TestDaemonStartFailsInterruptedJobs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.ledger.Save(ctx, &jobs.Record{ID: "stuck", URL: testURL, Status: jobs.StatusDownloading}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	rec, err := f.ledger.Get(ctx, "stuck")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != jobs.StatusFailed || rec.ErrorMessage != jobs.InterruptedReason {
		t.Fatalf("expected interrupted job to be failed, got %+v", rec)
	}
}

func TestDaemonMaintainSweepsScratchAndProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stale := filepath.Join(f.cfg.Paths.ScratchDir, "0b7c6a2e-stale.mp4.part")
	testsupport.WriteFile(t, stale, 16)
	old := time.Now().Add(-2 * f.cfg.ScratchMaxAge())
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	fresh := filepath.Join(f.cfg.Paths.ScratchDir, "fresh.mp4")
	testsupport.WriteFile(t, fresh, 16)

	shortLived := progress.NewMemory(time.Millisecond)
	f.daemon.comp.Tracker = shortLived
	if err := shortLived.Record(ctx, progress.Snapshot{JobID: "old", Stage: progress.StageFinished}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	result := f.daemon.Maintain(ctx)
	if result.ScratchRemoved != 1 {
		t.Fatalf("expected one scratch file removed, got %+v", result)
	}
	if testsupport.Exists(stale) {
		t.Fatal("stale scratch file should be removed")
	}
	if !testsupport.Exists(fresh) {
		t.Fatal("fresh scratch file should be kept")
	}
	if result.ProgressPruned != 1 || shortLived.Len() != 0 {
		t.Fatalf("expected expired snapshot to be pruned, %d remain", shortLived.Len())
	}
}

func TestNewRequiresComponents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := New(cfg, Components{}, nil); err == nil {
		t.Fatal("expected error for missing components")
	}
}
