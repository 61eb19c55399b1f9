package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tubefront/internal/logs"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), logs.CurrentName)
	writeLog(t, path, "a\nb\nc\n")

	tests := []struct {
		name string
		n    int
		want []string
	}{
		{name: "fewer than available", n: 2, want: []string{"b", "c"}},
		{name: "more than available", n: 10, want: []string{"a", "b", "c"}},
		{name: "zero", n: 0, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, offset, err := logs.Last(path, tt.n, nil)
			if err != nil {
				t.Fatalf("Last: %v", err)
			}
			if len(lines) != len(tt.want) {
				t.Fatalf("got %#v, want %#v", lines, tt.want)
			}
			for i := range lines {
				if lines[i] != tt.want[i] {
					t.Fatalf("got %#v, want %#v", lines, tt.want)
				}
			}
			if offset != 6 {
				t.Fatalf("expected offset at end of file, got %d", offset)
			}
		})
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5, nil)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("unexpected result %#v %d %v", lines, offset, err)
	}
}

func TestJobFilter(t *testing.T) {
	keep := logs.JobFilter("job-7")
	cases := map[string]bool{
		`{"level":"INFO","msg":"download delivered","job_id":"job-7"}`:        true,
		`2026-01-01T00:00:00Z INFO download: delivered job_id=job-7 bytes=12`: true,
		`{"level":"INFO","msg":"download delivered","job_id":"job-70"}`:       false,
		`2026-01-01T00:00:00Z INFO api: request served`:                       false,
	}
	for line, want := range cases {
		if got := keep(line); got != want {
			t.Errorf("keep(%q) = %v, want %v", line, got, want)
		}
	}
	if logs.JobFilter("  ") != nil {
		t.Fatal("blank job id should disable filtering")
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func waitFor(t *testing.T, c *collector, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if lines := c.snapshot(); len(lines) >= n {
			return lines
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d lines, got %#v", n, c.snapshot())
	return nil
}

func TestFollowStreamsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, logs.CurrentName)
	writeLog(t, path, "old job_id=a\n")
	_, offset, err := logs.Last(path, 0, nil)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got collector
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, logs.FollowOptions{Offset: offset, Poll: 10 * time.Millisecond, Keep: logs.JobFilter("b")}, got.add)
	}()

	appendLog(t, path, "one job_id=a\ntwo job_id=b\npartial job_id=b")
	lines := waitFor(t, &got, 1)
	if lines[0] != "two job_id=b" {
		t.Fatalf("unexpected lines %#v", lines)
	}
	appendLog(t, path, " done\n")
	lines = waitFor(t, &got, 2)
	if lines[1] != "partial job_id=b done" {
		t.Fatalf("partial line not completed: %#v", lines)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
}

func TestFollowRestartsOnNewRun(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "tubefront-1.log")
	second := filepath.Join(dir, "tubefront-2.log")
	pointer := filepath.Join(dir, logs.CurrentName)
	writeLog(t, first, "first run line that is fairly long\n")
	if err := os.Symlink(first, pointer); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	_, offset, _ := logs.Last(pointer, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got collector
	go func() {
		_ = logs.Follow(ctx, pointer, logs.FollowOptions{Offset: offset, Poll: 10 * time.Millisecond}, got.add)
	}()

	writeLog(t, second, "second run\n")
	if err := os.Remove(pointer); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(second, pointer); err != nil {
		t.Fatal(err)
	}
	lines := waitFor(t, &got, 1)
	if lines[0] != "second run" {
		t.Fatalf("unexpected lines %#v", lines)
	}
}
