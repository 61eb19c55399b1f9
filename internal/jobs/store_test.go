package jobs_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"tubefront/internal/jobs"
	"tubefront/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	if store.Path() != cfg.JobsDBPath() {
		t.Fatalf("unexpected path %s", store.Path())
	}
	if !testsupport.Exists(cfg.JobsDBPath()) {
		t.Fatal("database file should exist")
	}

	// Reopening an initialized ledger must succeed.
	store.Close()
	reopened, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.Close()
}

func TestOpenResetsForeignSchemaVersion(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	if _, err := store.Reserve(ctx, "old-job"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", cfg.JobsDBPath())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	reopened, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(ctx, "old-job"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ledger to be reset, got %v", err)
	}
	if _, err := reopened.Reserve(ctx, "new-job"); err != nil {
		t.Fatalf("Reserve after reset: %v", err)
	}
}

func TestReserveAndSave(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))

	rec, err := store.Reserve(ctx, "job-1")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if rec.Status != jobs.StatusPending || rec.CreatedAt.IsZero() {
		t.Fatalf("unexpected reservation %+v", rec)
	}
	created := rec.CreatedAt

	if _, err := store.Reserve(ctx, "job-1"); err != nil {
		t.Fatalf("second Reserve should be a no-op: %v", err)
	}

	rec.URL = "https://video.example/abc"
	rec.Mode = "best"
	rec.Directive = "bestvideo+bestaudio/best"
	rec.Status = jobs.StatusDownloading
	rec.CreatedAt = time.Time{}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != jobs.StatusDownloading || got.Directive != rec.Directive || got.URL != rec.URL {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at changed: %v != %v", got.CreatedAt, created)
	}
	if got.FinishedAt != nil {
		t.Fatal("in-flight job should not have finished_at")
	}

	got.Status = jobs.StatusFailed
	got.ErrorKind = "download_failed"
	got.ErrorMessage = "ERROR: HTTP Error 403"
	if err := store.Save(ctx, got); err != nil {
		t.Fatal(err)
	}
	final, _ := store.Get(ctx, "job-1")
	if final.FinishedAt == nil || final.ErrorMessage != "ERROR: HTTP Error 403" {
		t.Fatalf("unexpected terminal record %+v", final)
	}
}

func TestGetUnknown(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Save(context.Background(), &jobs.Record{}); err == nil {
		t.Fatal("Save without id should fail")
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))

	base := time.Now().Add(-time.Hour)
	for i, status := range []jobs.Status{jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusDownloading} {
		rec := &jobs.Record{
			ID:        string(rune('a' + i)),
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Save(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "c" {
		t.Fatalf("expected newest first, got %d records starting %v", len(all), all)
	}

	limited, _ := store.List(ctx, 1)
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	failed, _ := store.List(ctx, 0, jobs.StatusFailed)
	if len(failed) != 1 || failed[0].ID != "b" {
		t.Fatalf("unexpected filter result %v", failed)
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 3 || summary.Completed != 1 || summary.Failed != 1 || summary.InFlight != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestFailInterrupted(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))

	for id, status := range map[string]jobs.Status{
		"probing":  jobs.StatusProbing,
		"sending":  jobs.StatusSending,
		"pending":  jobs.StatusPending,
		"complete": jobs.StatusCompleted,
	} {
		if err := store.Save(ctx, &jobs.Record{ID: id, Status: status}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.FailInterrupted(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 interrupted jobs, got %d", n)
	}
	rec, _ := store.Get(ctx, "probing")
	if rec.Status != jobs.StatusFailed || rec.ErrorMessage != jobs.InterruptedReason {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec, _ := store.Get(ctx, "pending"); rec.Status != jobs.StatusPending {
		t.Fatal("pending reservation should be untouched")
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))

	_ = store.Save(ctx, &jobs.Record{ID: "done", Status: jobs.StatusCompleted})
	_ = store.Save(ctx, &jobs.Record{ID: "active", Status: jobs.StatusDownloading})

	removed, err := store.Prune(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned job, got %d", removed)
	}
	if _, err := store.Get(ctx, "active"); err != nil {
		t.Fatal("in-flight job must survive pruning")
	}

	removed, _ = store.Prune(ctx, time.Now().Add(-time.Hour))
	if removed != 0 {
		t.Fatalf("nothing should be older than an hour ago, pruned %d", removed)
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := jobs.ParseStatus(" Failed "); !ok || s != jobs.StatusFailed {
		t.Fatalf("unexpected parse %q %v", s, ok)
	}
	if _, ok := jobs.ParseStatus("ripping"); ok {
		t.Fatal("unknown status should not parse")
	}
	if len(jobs.AllStatuses()) != 6 {
		t.Fatal("unexpected status count")
	}
}
