package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	supportedMergeContainers = map[string]struct{}{"mp4": {}, "mkv": {}, "webm": {}, "mov": {}}
	supportedAudioFormats    = map[string]struct{}{"mp3": {}, "m4a": {}, "aac": {}, "opus": {}, "flac": {}, "wav": {}, "vorbis": {}}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validatePolicy(); err != nil {
		return err
	}
	if err := c.validateProgress(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"download.max_concurrent":        c.Download.MaxConcurrent,
		"scratch.max_age_minutes":        c.Scratch.MaxAgeMinutes,
		"scratch.sweep_interval_seconds": c.Scratch.SweepIntervalSeconds,
		"jobs.retention_hours":           c.Jobs.RetentionHours,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		return errors.New("paths.scratch_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.RatePerSecond < 0 {
		return errors.New("api.rate_per_second must be >= 0 (0 disables rate limiting)")
	}
	if c.API.RequestTimeoutSeconds <= 0 {
		return errors.New("api.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if err := ensurePositiveMap(map[string]int{
		"engine.fragment_concurrency":     c.Engine.FragmentConcurrency,
		"engine.probe_timeout_seconds":    c.Engine.ProbeTimeoutSeconds,
		"engine.download_timeout_seconds": c.Engine.DownloadTimeoutSeconds,
	}); err != nil {
		return err
	}
	// A synchronous download holds its response open through metadata
	// extraction and the fetch, so the write budget must cover both.
	if need := c.Engine.ProbeTimeoutSeconds + c.Engine.DownloadTimeoutSeconds; c.API.RequestTimeoutSeconds < need {
		return fmt.Errorf("api.request_timeout_seconds (%d) must be at least engine.probe_timeout_seconds + engine.download_timeout_seconds (%d)",
			c.API.RequestTimeoutSeconds, need)
	}
	return nil
}

func (c *Config) validatePolicy() error {
	if _, ok := supportedMergeContainers[c.Policy.MergeContainer]; !ok {
		return fmt.Errorf("policy.merge_container %q is not supported", c.Policy.MergeContainer)
	}
	if _, ok := supportedAudioFormats[c.Policy.AudioFormat]; !ok {
		return fmt.Errorf("policy.audio_format %q is not supported", c.Policy.AudioFormat)
	}
	return nil
}

func (c *Config) validateProgress() error {
	switch c.Progress.Backend {
	case ProgressBackendMemory:
	case ProgressBackendRedis:
		if c.Progress.RedisURL == "" {
			return errors.New("progress.redis_url must be set when progress.backend is \"redis\" (or set REDIS_URL)")
		}
	default:
		return fmt.Errorf("progress.backend %q must be \"memory\" or \"redis\"", c.Progress.Backend)
	}
	if c.Progress.TTLSeconds <= 0 {
		return errors.New("progress.ttl_seconds must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) topic URL, got %q", topic)
	}
	return nil
}
