package config

const (
	defaultDataDir    = "~/.local/share/reelsmith"
	defaultStagingDir = "~/.local/share/reelsmith/staging"
	defaultLogDir     = "~/.local/share/reelsmith/logs"
	defaultStorageDir = "~/.local/share/reelsmith/media"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultQueuePollInterval    = 5
	defaultErrorRetryInterval   = 10
	defaultHeartbeatInterval    = 15
	defaultHeartbeatTimeout     = 120
	defaultPipelineConcurrency  = 2
	defaultSceneConcurrency     = 4
	defaultCompositeConcurrency = 2

	defaultProviderBaseURL         = "https://api.klingai.com"
	defaultProviderTokenTTL        = 1800
	defaultProviderTokenMargin     = 60
	defaultProviderRequestTimeout  = 45
	defaultProviderPollInterval    = 10
	defaultProviderMaxPollAttempts = 120
	defaultProviderRetryBaseMillis = 500
	defaultProviderRetryMaxMillis  = 8000
	defaultProviderRetryAttempts   = 4

	defaultDownloaderBaseURL = "http://127.0.0.1:8001"
	defaultDownloaderTimeout = 120

	defaultFrameIntervalSec = 2.0
	defaultMaxFrames        = 30
	defaultMinSceneSeconds  = 1.0

	defaultComposerWaitPollInterval = 5
	defaultComposerWaitBudget       = 1800

	defaultNotifyRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Queue: Queue{
			PollInterval:         defaultQueuePollInterval,
			ErrorRetryInterval:   defaultErrorRetryInterval,
			HeartbeatInterval:    defaultHeartbeatInterval,
			HeartbeatTimeout:     defaultHeartbeatTimeout,
			PipelineConcurrency:  defaultPipelineConcurrency,
			SceneConcurrency:     defaultSceneConcurrency,
			CompositeConcurrency: defaultCompositeConcurrency,
		},
		Provider: Provider{
			BaseURL:           defaultProviderBaseURL,
			TokenTTLSeconds:   defaultProviderTokenTTL,
			TokenSafetyMargin: defaultProviderTokenMargin,
			RequestTimeout:    defaultProviderRequestTimeout,
			PollInterval:      defaultProviderPollInterval,
			MaxPollAttempts:   defaultProviderMaxPollAttempts,
			RetryBaseMillis:   defaultProviderRetryBaseMillis,
			RetryMaxMillis:    defaultProviderRetryMaxMillis,
			RetryAttempts:     defaultProviderRetryAttempts,
		},
		Downloader: Downloader{
			BaseURL:        defaultDownloaderBaseURL,
			RequestTimeout: defaultDownloaderTimeout,
		},
		Analysis: Analysis{
			FrameIntervalSec: defaultFrameIntervalSec,
			MaxFrames:        defaultMaxFrames,
			MinSceneSeconds:  defaultMinSceneSeconds,
		},
		Composer: Composer{
			WaitPollInterval: defaultComposerWaitPollInterval,
			WaitBudget:       defaultComposerWaitBudget,
		},
		Storage: Storage{
			RootDir: defaultStorageDir,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
