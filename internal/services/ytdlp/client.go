package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tubefront/internal/services"
)

// Settings holds engine tuning applied to every invocation.
type Settings struct {
	UserAgent           string
	Retries             int
	FragmentConcurrency int
	HTTPChunkSize       string
	SleepRequests       float64
	FFmpegLocation      string
}

// FetchRequest describes one download.
type FetchRequest struct {
	URL            string
	Format         string
	OutputTemplate string
	CookieFile     string
	ExtractAudio   bool
	AudioFormat    string
	MergeContainer string
}

// Invocation is the complete, engine-agnostic description of one yt-dlp run.
type Invocation struct {
	Binary     string
	URL        string
	Probe      bool
	Format     string
	Output     string
	CookieFile string
	Settings   Settings

	ExtractAudio   bool
	AudioFormat    string
	MergeContainer string
}

// Executor runs an invocation. onProgress may be nil. The returned string is
// the engine's stdout, which carries the JSON document for probes.
type Executor interface {
	Run(ctx context.Context, inv Invocation, onProgress func(Progress)) (string, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithTimeouts bounds probe and fetch invocations. Zero leaves a bound unset.
func WithTimeouts(probe, fetch time.Duration) Option {
	return func(c *Client) {
		c.probeTimeout = probe
		c.fetchTimeout = fetch
	}
}

// Client wraps yt-dlp interactions.
type Client struct {
	binary       string
	settings     Settings
	probeTimeout time.Duration
	fetchTimeout time.Duration
	exec         Executor
}

// New constructs a yt-dlp client.
func New(binary string, settings Settings, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	client := &Client{
		binary:   binary,
		settings: settings,
		exec:     commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Binary returns the configured executable.
func (c *Client) Binary() string {
	return c.binary
}

// Probe runs the engine in metadata-only mode and decodes the catalog document.
// Errors are classified as services.ErrNotFound, services.ErrNetwork, or
// services.ErrEngine.
func (c *Client) Probe(ctx context.Context, url, cookieFile string) (*Info, error) {
	probeCtx := ctx
	if c.probeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, c.probeTimeout)
		defer cancel()
	}

	stdout, err := c.exec.Run(probeCtx, Invocation{
		Binary:     c.binary,
		URL:        url,
		Probe:      true,
		CookieFile: cookieFile,
		Settings:   c.settings,
	}, nil)
	if err != nil {
		return nil, classify(err)
	}

	var info Info
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &info); err != nil {
		return nil, fmt.Errorf("%w: decode probe output: %w", services.ErrEngine, err)
	}
	return &info, nil
}

// Fetch downloads the rendition selected by req.Format into req.OutputTemplate.
// The caller decides success by checking the output path; a nil error only
// means the engine exited cleanly.
func (c *Client) Fetch(ctx context.Context, req FetchRequest, onProgress func(Progress)) error {
	if strings.TrimSpace(req.URL) == "" {
		return errors.New("fetch url required")
	}
	if strings.TrimSpace(req.Format) == "" {
		return errors.New("fetch format required")
	}
	if strings.TrimSpace(req.OutputTemplate) == "" {
		return errors.New("fetch output template required")
	}

	fetchCtx := ctx
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	inv := Invocation{
		Binary:         c.binary,
		URL:            req.URL,
		Format:         req.Format,
		Output:         req.OutputTemplate,
		CookieFile:     req.CookieFile,
		Settings:       c.settings,
		ExtractAudio:   req.ExtractAudio,
		AudioFormat:    req.AudioFormat,
		MergeContainer: req.MergeContainer,
	}
	if _, err := c.exec.Run(fetchCtx, inv, onProgress); err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("yt-dlp fetch timed out after %s: %w", c.fetchTimeout, err)
		}
		return err
	}
	return nil
}
