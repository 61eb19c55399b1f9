package scratch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tubefront/internal/logging"
	"tubefront/internal/services"
)

const maxAllocateAttempts = 8

// Output is one allocated scratch path.
type Output struct {
	Stem      string
	Ext       string
	Path      string
	CreatedAt time.Time

	once sync.Once
}

// Template returns the engine output template that keeps every file the
// engine writes under this allocation's stem.
func (o *Output) Template() string {
	return filepath.Join(filepath.Dir(o.Path), o.Stem+".%(ext)s")
}

// Manager allocates and releases scratch outputs.
type Manager struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*Output
}

// NewManager constructs a Manager rooted at dir. The directory is created on
// demand.
func NewManager(dir string, logger *slog.Logger) (*Manager, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("scratch directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return &Manager{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "scratch"),
		active: make(map[string]*Output),
	}, nil
}

// Dir returns the scratch root.
func (m *Manager) Dir() string { return m.dir }

// Allocate reserves a new output path with the given extension. The file is
// not created; the engine writes it.
func (m *Manager) Allocate(ext string) (*Output, error) {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		return nil, services.Wrap(services.ErrInputInvalid, "scratch", "allocate", "extension required", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for range maxAllocateAttempts {
		stem := uuid.NewString()
		if _, taken := m.active[stem]; taken {
			continue
		}
		if m.stemInUse(stem) {
			continue
		}
		out := &Output{
			Stem:      stem,
			Ext:       ext,
			Path:      filepath.Join(m.dir, stem+"."+ext),
			CreatedAt: time.Now(),
		}
		m.active[stem] = out
		return out, nil
	}
	return nil, services.Wrap(services.ErrLifecycle, "scratch", "allocate", "could not find a free output name", nil)
}

// Release removes the output and its side files. Only the first call for an
// allocation does any work; it reports whether this call performed the
// release. Removal failures are logged and swallowed.
func (m *Manager) Release(out *Output) bool {
	if out == nil {
		return false
	}
	released := false
	out.once.Do(func() {
		released = true
		m.mu.Lock()
		delete(m.active, out.Stem)
		m.mu.Unlock()
		m.removeStem(out)
	})
	return released
}

// Active returns the number of outstanding allocations.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) isActive(stem string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[stem]
	return ok
}

func (m *Manager) stemInUse(stem string) bool {
	matches, err := filepath.Glob(filepath.Join(m.dir, stem+".*"))
	return err != nil || len(matches) > 0
}

func (m *Manager) removeStem(out *Output) {
	paths := []string{out.Path}
	if matches, err := filepath.Glob(filepath.Join(m.dir, out.Stem+".*")); err == nil {
		for _, p := range matches {
			if p != out.Path {
				paths = append(paths, p)
			}
		}
	}
	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, os.ErrNotExist):
		default:
			logging.WarnWithContext(m.logger, "failed to remove scratch file", "scratch_release_failed",
				logging.String("path", p),
				logging.Error(services.Wrap(services.ErrLifecycle, "scratch", "release", "", err)),
				logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed until the next sweep"),
			)
		}
	}
	m.logger.Debug("scratch output released",
		logging.String("stem", out.Stem),
		logging.Int("files_removed", removed),
		logging.Duration("held", time.Since(out.CreatedAt)),
	)
}
