package credentials_test

import (
	"os"
	"path/filepath"
	"testing"

	"tubefront/internal/credentials"
	"tubefront/internal/logging"
)

const cookieBody = "# Netscape HTTP Cookie File\n.example.com\tTRUE\t/\tTRUE\t0\tSID\tabc\n"

func writeSource(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(src, []byte(cookieBody), 0o444); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return src
}

func TestProvisionCreatesPerJobCopy(t *testing.T) {
	src := writeSource(t)
	workDir := filepath.Join(t.TempDir(), "work")
	p := credentials.New(src, workDir, false, logging.NewNop())

	a := p.Provision("job-a")
	b := p.Provision("job-b")
	if a.Origin != credentials.OriginWorkingCopy || b.Origin != credentials.OriginWorkingCopy {
		t.Fatalf("expected working copies, got %q and %q", a.Origin, b.Origin)
	}
	if a.Path == b.Path {
		t.Fatalf("expected distinct paths per job, got %q", a.Path)
	}
	if filepath.Dir(a.Path) != workDir {
		t.Fatalf("expected copy under work dir, got %q", a.Path)
	}
	got, err := os.ReadFile(a.Path)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(got) != cookieBody {
		t.Fatalf("unexpected copy content %q", got)
	}

	a.Release()
	a.Release()
	if _, err := os.Stat(a.Path); !os.IsNotExist(err) {
		t.Fatalf("expected released copy to be removed, err=%v", err)
	}
	if _, err := os.Stat(b.Path); err != nil {
		t.Fatalf("expected other job's copy to remain: %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source must never be removed: %v", err)
	}
}

func TestProvisionOverwritesStaleCopy(t *testing.T) {
	src := writeSource(t)
	workDir := t.TempDir()
	p := credentials.New(src, workDir, false, logging.NewNop())

	stale := filepath.Join(workDir, "job-1.cookies.txt")
	if err := os.WriteFile(stale, []byte("stale content that is much longer than the source bundle ......................................."), 0o600); err != nil {
		t.Fatal(err)
	}
	lease := p.Provision("job-1")
	if lease.Path != stale {
		t.Fatalf("expected path %q, got %q", stale, lease.Path)
	}
	got, _ := os.ReadFile(lease.Path)
	if string(got) != cookieBody {
		t.Fatalf("expected overwrite, got %q", got)
	}
}

func TestProvisionMissingSourceIsUnauthenticated(t *testing.T) {
	p := credentials.New(filepath.Join(t.TempDir(), "absent.txt"), t.TempDir(), false, logging.NewNop())
	lease := p.Provision("job")
	if lease.Authenticated() || lease.Origin != credentials.OriginNone {
		t.Fatalf("expected unauthenticated lease, got %+v", lease)
	}
	lease.Release()

	empty := credentials.New("", t.TempDir(), false, nil)
	if empty.Provision("job").Authenticated() {
		t.Fatal("expected unauthenticated lease without source")
	}
}

func TestProvisionUnreadableSourceIsUnauthenticated(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses file permission checks")
	}
	src := writeSource(t)
	if err := os.Chmod(src, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(src, 0o644) })

	for _, workDir := range []string{
		filepath.Join(t.TempDir(), "work"),
		"",
	} {
		p := credentials.New(src, workDir, false, logging.NewNop())
		lease := p.Provision("job")
		if lease.Authenticated() || lease.Origin != credentials.OriginNone || lease.Path != "" {
			t.Fatalf("work dir %q: expected unauthenticated lease, got %+v", workDir, lease)
		}
		lease.Release()
	}
}

func TestProvisionFallsBackToSource(t *testing.T) {
	src := writeSource(t)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := credentials.New(src, filepath.Join(blocker, "work"), false, logging.NewNop())

	lease := p.Provision("job")
	if lease.Origin != credentials.OriginSource || lease.Path != src {
		t.Fatalf("expected fallback to source, got %+v", lease)
	}
	lease.Release()
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("release must not remove the source: %v", err)
	}
}

func TestSharedModeReusesSinglePath(t *testing.T) {
	src := writeSource(t)
	workDir := t.TempDir()
	p := credentials.New(src, workDir, true, logging.NewNop())

	a := p.Provision("job-a")
	b := p.Provision("job-b")
	if a.Path != b.Path {
		t.Fatalf("expected shared path, got %q and %q", a.Path, b.Path)
	}
	a.Release()
	if _, err := os.Stat(b.Path); err != nil {
		t.Fatalf("shared copy must survive release: %v", err)
	}

	status := p.Check()
	if !status.SourceExists || !status.SharedCopy || !status.SharedExists || status.SharedPath != a.Path {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.SourceSize != int64(len(cookieBody)) {
		t.Fatalf("unexpected source size %d", status.SourceSize)
	}
}
