package config

const (
	defaultDataDir          = "~/.local/share/clipforge/data"
	defaultStagingDir       = "~/.local/share/clipforge/staging"
	defaultCacheDir         = "~/.cache/clipforge/clips"
	defaultLogDir           = "~/.local/share/clipforge/logs"
	defaultGatewayBind      = "127.0.0.1:7519"
	defaultWorkerBaseURL    = "http://127.0.0.1:7519"
	defaultScanInterval     = 60
	defaultQueueAccelerated = "accelerated"
	defaultQueueStandard    = "standard"
	defaultQueueHousekeep   = "housekeeping"
	defaultResolveTimeout   = 2
	defaultWorkerTTL        = 90
	defaultPollInterval     = 5
	defaultPollTimeout      = 300
	defaultCacheTTLHours    = 2
	defaultDownloaderBinary = "yt-dlp"
	defaultDownloadTimeout  = 600
	defaultFFmpegBinary     = "ffmpeg"
	defaultFFprobeBinary    = "ffprobe"
	defaultEncodeTimeout    = 3600
	defaultNotifyTimeout    = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			CacheDir:   defaultCacheDir,
			LogDir:     defaultLogDir,
		},
		Gateway: Gateway{
			Bind:          defaultGatewayBind,
			WorkerBaseURL: defaultWorkerBaseURL,
		},
		Scheduler: Scheduler{
			ScanInterval:      defaultScanInterval,
			PreferAccelerated: false,
		},
		Queues: Queues{
			Accelerated:    defaultQueueAccelerated,
			Standard:       defaultQueueStandard,
			Housekeeping:   defaultQueueHousekeep,
			Default:        defaultQueueStandard,
			ResolveTimeout: defaultResolveTimeout,
			WorkerTTL:      defaultWorkerTTL,
		},
		Acquire: Acquire{
			PollInterval:     defaultPollInterval,
			PollTimeout:      defaultPollTimeout,
			CacheTTLHours:    defaultCacheTTLHours,
			DownloaderBinary: defaultDownloaderBinary,
			DownloadTimeout:  defaultDownloadTimeout,
		},
		Encode: Encode{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			EncodeTimeout: defaultEncodeTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Runs:           true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
