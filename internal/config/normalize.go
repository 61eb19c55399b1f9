package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeEngine()
	if err := c.normalizeCredentials(); err != nil {
		return err
	}
	c.normalizePolicy()
	c.normalizeProgress()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir()
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("TUBEFRONT_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	if c.API.RateBurst <= 0 && c.API.RatePerSecond > 0 {
		c.API.RateBurst = 1
	}
}

func (c *Config) normalizeEngine() {
	c.Engine.Binary = strings.TrimSpace(c.Engine.Binary)
	if c.Engine.Binary == "" {
		c.Engine.Binary = defaultEngineBinary
	}
	c.Engine.FFmpegBinary = strings.TrimSpace(c.Engine.FFmpegBinary)
	if c.Engine.FFmpegBinary == "" {
		c.Engine.FFmpegBinary = defaultFFmpegBinary
	}
	if value, ok := os.LookupEnv("BROWSER_UA"); ok && strings.TrimSpace(value) != "" {
		c.Engine.UserAgent = strings.TrimSpace(value)
	}
	c.Engine.UserAgent = strings.TrimSpace(c.Engine.UserAgent)
	if c.Engine.UserAgent == "" {
		c.Engine.UserAgent = defaultUserAgent
	}
	c.Engine.HTTPChunkSize = strings.TrimSpace(c.Engine.HTTPChunkSize)
	if c.Engine.Retries < 0 {
		c.Engine.Retries = 0
	}
	if c.Engine.SleepRequestsSeconds < 0 {
		c.Engine.SleepRequestsSeconds = 0
	}
}

func (c *Config) normalizeCredentials() error {
	var err error
	if value, ok := os.LookupEnv("COOKIE_FILE"); ok && strings.TrimSpace(value) != "" {
		c.Credentials.Source = strings.TrimSpace(value)
	}
	c.Credentials.Source = strings.TrimSpace(c.Credentials.Source)
	if c.Credentials.Source, err = expandPath(c.Credentials.Source); err != nil {
		return fmt.Errorf("credentials.source: %w", err)
	}
	if strings.TrimSpace(c.Credentials.WorkDir) == "" {
		c.Credentials.WorkDir = filepath.Join(c.Paths.ScratchDir, "credentials")
	}
	if c.Credentials.WorkDir, err = expandPath(c.Credentials.WorkDir); err != nil {
		return fmt.Errorf("credentials.work_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePolicy() {
	c.Policy.PreferredVideoCodec = strings.ToLower(strings.TrimSpace(c.Policy.PreferredVideoCodec))
	c.Policy.PreferredAudioCodec = strings.ToLower(strings.TrimSpace(c.Policy.PreferredAudioCodec))
	c.Policy.MergeContainer = strings.ToLower(strings.TrimSpace(c.Policy.MergeContainer))
	if c.Policy.MergeContainer == "" {
		c.Policy.MergeContainer = defaultMergeContainer
	}
	c.Policy.AudioFormat = strings.ToLower(strings.TrimSpace(c.Policy.AudioFormat))
	if c.Policy.AudioFormat == "" {
		c.Policy.AudioFormat = defaultAudioFormat
	}
	if c.Policy.MinHeight < 0 {
		c.Policy.MinHeight = 0
	}
}

func (c *Config) normalizeProgress() {
	c.Progress.Backend = strings.ToLower(strings.TrimSpace(c.Progress.Backend))
	if c.Progress.Backend == "" {
		c.Progress.Backend = defaultProgressBackend
	}
	c.Progress.RedisURL = strings.TrimSpace(c.Progress.RedisURL)
	if c.Progress.RedisURL == "" {
		if value, ok := os.LookupEnv("REDIS_URL"); ok {
			c.Progress.RedisURL = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
