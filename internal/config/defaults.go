package config

const (
	defaultConfigPath             = "~/.config/tubefront/config.toml"
	defaultStateDir               = "~/.local/share/tubefront"
	defaultLogDir                 = "~/.local/share/tubefront/logs"
	defaultAPIBind                = "127.0.0.1:7490"
	defaultRatePerSecond          = 5
	defaultRateBurst              = 10
	defaultRequestTimeoutSeconds  = 2100
	defaultEngineBinary           = "yt-dlp"
	defaultFFmpegBinary           = "ffmpeg"
	defaultUserAgent              = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultEngineRetries          = 10
	defaultFragmentConcurrency    = 4
	defaultHTTPChunkSize          = "10M"
	defaultSleepRequestsSeconds   = 1
	defaultProbeTimeoutSeconds    = 60
	defaultDownloadTimeoutSeconds = 1800
	defaultCredentialSource       = "/etc/secrets/cookies.txt"
	defaultMinHeight              = 720
	defaultVideoCodec             = "avc1"
	defaultAudioCodec             = "mp4a"
	defaultMergeContainer         = "mp4"
	defaultAudioFormat            = "mp3"
	defaultMaxConcurrent          = 2
	defaultProgressBackend        = ProgressBackendMemory
	defaultProgressTTLSeconds     = 3600
	defaultScratchMaxAgeMinutes   = 120
	defaultSweepIntervalSeconds   = 600
	defaultJobRetentionHours      = 24
	defaultNotifyTimeoutSeconds   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Progress tracker backends.
const (
	ProgressBackendMemory = "memory"
	ProgressBackendRedis  = "redis"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ScratchDir: defaultScratchDir(),
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		API: API{
			Bind:                  defaultAPIBind,
			RatePerSecond:         defaultRatePerSecond,
			RateBurst:             defaultRateBurst,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			LegacyRoutes:          true,
		},
		Engine: Engine{
			Binary:                 defaultEngineBinary,
			UserAgent:              defaultUserAgent,
			Retries:                defaultEngineRetries,
			FragmentConcurrency:    defaultFragmentConcurrency,
			HTTPChunkSize:          defaultHTTPChunkSize,
			SleepRequestsSeconds:   defaultSleepRequestsSeconds,
			ProbeTimeoutSeconds:    defaultProbeTimeoutSeconds,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
			FFmpegBinary:           defaultFFmpegBinary,
		},
		Credentials: Credentials{
			Source: defaultCredentialSource,
		},
		Policy: Policy{
			MinHeight:           defaultMinHeight,
			PreferredVideoCodec: defaultVideoCodec,
			PreferredAudioCodec: defaultAudioCodec,
			MergeContainer:      defaultMergeContainer,
			AudioFormat:         defaultAudioFormat,
		},
		Download: Download{
			MaxConcurrent: defaultMaxConcurrent,
		},
		Progress: Progress{
			Backend:    defaultProgressBackend,
			TTLSeconds: defaultProgressTTLSeconds,
		},
		Scratch: Scratch{
			MaxAgeMinutes:        defaultScratchMaxAgeMinutes,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
		},
		Jobs: Jobs{
			LedgerEnabled:  true,
			RetentionHours: defaultJobRetentionHours,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
