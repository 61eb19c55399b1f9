package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ScratchDir string `toml:"scratch_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// API contains HTTP surface configuration.
type API struct {
	Bind                  string  `toml:"bind"`
	Token                 string  `toml:"token"`
	RatePerSecond         float64 `toml:"rate_per_second"`
	RateBurst             int     `toml:"rate_burst"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	LegacyRoutes          bool    `toml:"legacy_routes"`
}

// Engine contains settings for the yt-dlp extraction engine.
type Engine struct {
	Binary                 string  `toml:"binary"`
	UserAgent              string  `toml:"user_agent"`
	Retries                int     `toml:"retries"`
	FragmentConcurrency    int     `toml:"fragment_concurrency"`
	HTTPChunkSize          string  `toml:"http_chunk_size"`
	SleepRequestsSeconds   float64 `toml:"sleep_requests_seconds"`
	ProbeTimeoutSeconds    int     `toml:"probe_timeout_seconds"`
	DownloadTimeoutSeconds int     `toml:"download_timeout_seconds"`
	FFmpegBinary           string  `toml:"ffmpeg_binary"`
}

// Credentials contains cookie bundle provisioning settings.
type Credentials struct {
	Source     string `toml:"source"`
	WorkDir    string `toml:"work_dir"`
	SharedCopy bool   `toml:"shared_copy"`
}

// Policy contains the service-wide format negotiation preferences.
type Policy struct {
	MinHeight           int    `toml:"min_height"`
	PreferredVideoCodec string `toml:"preferred_video_codec"`
	PreferredAudioCodec string `toml:"preferred_audio_codec"`
	MergeContainer      string `toml:"merge_container"`
	AudioFormat         string `toml:"audio_format"`
}

// Download contains orchestrator limits.
type Download struct {
	MaxConcurrent int `toml:"max_concurrent"`
}

// Progress contains progress tracker settings.
type Progress struct {
	Backend    string `toml:"backend"`
	TTLSeconds int    `toml:"ttl_seconds"`
	RedisURL   string `toml:"redis_url"`
}

// Scratch contains scratch directory hygiene settings.
type Scratch struct {
	MaxAgeMinutes        int `toml:"max_age_minutes"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

// Jobs contains job ledger settings.
type Jobs struct {
	LedgerEnabled  bool `toml:"ledger_enabled"`
	RetentionHours int  `toml:"retention_hours"`
}

// Notifications contains ntfy alert settings.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifyCompleted       bool   `toml:"notify_completed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tubefront.
//
// Configuration sections by subsystem:
//   - Paths: scratch, state, and log directories
//   - API: HTTP bind address, bearer token, and rate limits
//   - Engine: yt-dlp binary and transfer tuning
//   - Credentials: cookie bundle source and per-job working copies
//   - Policy: rendition preferences used by the format selector
//   - Download: orchestrator concurrency
//   - Progress: progress tracker backend and retention
//   - Scratch: leaked output sweeping
//   - Jobs: transient job ledger
//   - Notifications: optional ntfy alerts for failed downloads
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Engine        Engine        `toml:"engine"`
	Credentials   Credentials   `toml:"credentials"`
	Policy        Policy        `toml:"policy"`
	Download      Download      `toml:"download"`
	Progress      Progress      `toml:"progress"`
	Scratch       Scratch       `toml:"scratch"`
	Jobs          Jobs          `toml:"jobs"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tubefront.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The credential work dir is only created when a credential source is configured.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ScratchDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Credentials.Source) != "" {
		if err := os.MkdirAll(c.Credentials.WorkDir, 0o700); err != nil {
			return fmt.Errorf("create credential work directory %q: %w", c.Credentials.WorkDir, err)
		}
	}
	return nil
}

// EngineBinary returns the yt-dlp executable name or path.
func (c *Config) EngineBinary() string {
	if c == nil || strings.TrimSpace(c.Engine.Binary) == "" {
		return defaultEngineBinary
	}
	return c.Engine.Binary
}

// FFmpegBinary returns the ffmpeg executable used by the engine for merging and extraction.
func (c *Config) FFmpegBinary() string {
	if c == nil || strings.TrimSpace(c.Engine.FFmpegBinary) == "" {
		return defaultFFmpegBinary
	}
	return c.Engine.FFmpegBinary
}

// JobsDBPath returns the location of the transient job ledger.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "tubefrontd.lock")
}

// PIDPath returns the file the daemon writes its process id to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "tubefrontd.pid")
}

// ProgressTTL returns how long progress snapshots remain queryable.
func (c *Config) ProgressTTL() time.Duration {
	return time.Duration(c.Progress.TTLSeconds) * time.Second
}

// ScratchMaxAge returns the age after which unreleased scratch files are swept.
func (c *Config) ScratchMaxAge() time.Duration {
	return time.Duration(c.Scratch.MaxAgeMinutes) * time.Minute
}

// ScratchSweepInterval returns the period between scratch sweeps.
func (c *Config) ScratchSweepInterval() time.Duration {
	return time.Duration(c.Scratch.SweepIntervalSeconds) * time.Second
}

// JobRetention returns how long finished jobs remain in the ledger.
func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.Jobs.RetentionHours) * time.Hour
}

// NotificationTimeout bounds one ntfy request.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

// ProbeTimeout bounds metadata-only engine calls.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Engine.ProbeTimeoutSeconds) * time.Second
}

// DownloadTimeout bounds a single engine download invocation.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Engine.DownloadTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultScratchDir() string {
	return filepath.Join(os.TempDir(), "tubefront")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
