package credentials

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"tubefront/internal/fileutil"
	"tubefront/internal/logging"
	"tubefront/internal/services"
	"tubefront/internal/textutil"
)

// Lease origins.
const (
	OriginWorkingCopy = "working_copy"
	OriginSource      = "source"
	OriginNone        = "none"
)

const sharedScope = "shared"

// Lease is one provisioned credential path. A zero Path means unauthenticated.
type Lease struct {
	Path   string
	Origin string

	once    sync.Once
	release func()
}

// Authenticated reports whether the lease carries a credential path.
func (l *Lease) Authenticated() bool {
	return l != nil && l.Path != ""
}

// Release removes the per-job working copy. Safe to call more than once.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		if l.release != nil {
			l.release()
		}
	})
}

// Status is the credential diagnostic reported by the API and CLI.
type Status struct {
	SourcePath   string    `json:"source_path"`
	SourceExists bool      `json:"source_exists"`
	SourceSize   int64     `json:"source_size,omitempty"`
	WorkDir      string    `json:"work_dir"`
	SharedCopy   bool      `json:"shared_copy"`
	SharedPath   string    `json:"shared_path,omitempty"`
	SharedExists bool      `json:"shared_exists"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Provisioner hands out credential leases.
type Provisioner struct {
	source  string
	workDir string
	shared  bool
	logger  *slog.Logger

	mu sync.Mutex
}

// New constructs a provisioner. An empty source disables authentication.
func New(source, workDir string, shared bool, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		source:  strings.TrimSpace(source),
		workDir: strings.TrimSpace(workDir),
		shared:  shared,
		logger:  logging.NewComponentLogger(logger, "credentials"),
	}
}

// Provision returns a lease for scope (normally the job id). The working copy
// is overwritten on every call, never appended to.
func (p *Provisioner) Provision(scope string) *Lease {
	if p == nil || p.source == "" {
		return &Lease{Origin: OriginNone}
	}
	if err := readable(p.source); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.warn("credential source unreadable", err, "requests run unauthenticated")
		} else {
			p.logger.Debug("credential source absent", logging.String("source", p.source))
		}
		return &Lease{Origin: OriginNone}
	}

	target := p.workingPath(scope)
	if err := p.copyTo(target); err != nil {
		p.warn("credential working copy failed", err, "engine uses the read-only source; cookie updates are discarded")
		if readable(p.source) == nil {
			return &Lease{Path: p.source, Origin: OriginSource}
		}
		return &Lease{Origin: OriginNone}
	}

	lease := &Lease{Path: target, Origin: OriginWorkingCopy}
	if !p.shared {
		lease.release = func() {
			if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
				logging.WarnWithContext(p.logger, "credential working copy not removed", "lifecycle_fault",
					logging.String("path", target),
					logging.Error(err),
					logging.String(logging.FieldImpact, "stale cookie copy left in work dir"),
					logging.String(logging.FieldErrorHint, "remove the file from the credential work dir manually"),
				)
			}
		}
	}
	return lease
}

// Check reports source and working copy presence.
func (p *Provisioner) Check() Status {
	status := Status{
		SourcePath: p.source,
		WorkDir:    p.workDir,
		SharedCopy: p.shared,
		CheckedAt:  time.Now().UTC(),
	}
	if p.source != "" {
		if info, err := os.Stat(p.source); err == nil && !info.IsDir() {
			status.SourceExists = true
			status.SourceSize = info.Size()
		}
	}
	if p.shared {
		status.SharedPath = p.workingPath(sharedScope)
		if _, err := os.Stat(status.SharedPath); err == nil {
			status.SharedExists = true
		}
	}
	return status
}

// readable reports whether the process may open path for reading; a bare
// stat succeeds on files whose mode denies it.
func readable(path string) error {
	return unix.Access(path, unix.R_OK)
}

func (p *Provisioner) workingPath(scope string) string {
	if p.shared || strings.TrimSpace(scope) == "" {
		scope = sharedScope
	}
	return filepath.Join(p.workDir, textutil.SanitizeToken(scope)+".cookies.txt")
}

func (p *Provisioner) copyTo(target string) error {
	if p.workDir == "" {
		return errors.New("credential work dir not configured")
	}
	if err := os.MkdirAll(p.workDir, 0o700); err != nil {
		return err
	}
	if p.shared {
		p.mu.Lock()
		defer p.mu.Unlock()
	}
	return fileutil.ReplaceFile(p.source, target, 0o600)
}

func (p *Provisioner) warn(msg string, err error, impact string) {
	logging.WarnWithContext(p.logger, msg, "credential_unavailable",
		logging.String("source", p.source),
		logging.Error(services.Wrap(services.ErrCredentialUnavailable, "credentials", "provision", "", err)),
		logging.String(logging.FieldImpact, impact),
		logging.String(logging.FieldErrorHint, "check credentials.source and credentials.work_dir permissions"),
	)
}
