package config

const (
	defaultDataDir              = "~/.local/share/snatcher"
	defaultLogDir               = "~/.local/share/snatcher/logs"
	defaultAPIBind              = "127.0.0.1:7519"
	defaultNarrativePath        = "~/.config/snatcher/narrative.txt"
	defaultGatingThreshold      = 0.6
	defaultNotifyThreshold      = 0.65
	defaultCosineWeight         = 0.3
	defaultEmbeddingsURL        = "http://localhost:11434/api/embeddings"
	defaultEmbeddingsModel      = "nomic-embed-text"
	defaultBroadcastAddr        = "255.255.255.255:9"
	defaultWakeAttempts         = 3
	defaultSettleSeconds        = 30
	defaultIdleSeconds          = 300
	defaultReasonerBaseURL      = "http://localhost:11434"
	defaultReasonerModel        = "neural-chat"
	defaultReasonerTimeout      = 600
	defaultGeneratorBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultGeneratorModel       = "anthropic/claude-sonnet-4.5"
	defaultGeneratorTimeout     = 60
	defaultIngestTimeout        = 30
	defaultIngestUserAgent      = "snatcher/0.1"
	defaultNotifyTimeout        = 10
	defaultApprovalWindowHours  = 48
	defaultHardExpiryHours      = 336
	defaultSweepIntervalSeconds = 300
	defaultPollInterval         = 5
	defaultErrorRetryInterval   = 10
	defaultWorkers              = 4
	defaultRetryBaseSeconds     = 2
	defaultRetryMaxAttempts     = 5
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Profile: Profile{
			NarrativePath: defaultNarrativePath,
		},
		Matching: Matching{
			GatingThreshold: defaultGatingThreshold,
			NotifyThreshold: defaultNotifyThreshold,
			CosineWeight:    defaultCosineWeight,
			EmbeddingsURL:   defaultEmbeddingsURL,
			EmbeddingsModel: defaultEmbeddingsModel,
		},
		Resource: Resource{
			BroadcastAddr: defaultBroadcastAddr,
			WakeAttempts:  defaultWakeAttempts,
			SettleSeconds: defaultSettleSeconds,
			IdleSeconds:   defaultIdleSeconds,
		},
		Reasoner: Reasoner{
			BaseURL:        defaultReasonerBaseURL,
			Model:          defaultReasonerModel,
			TimeoutSeconds: defaultReasonerTimeout,
		},
		Generator: Generator{
			BaseURL:        defaultGeneratorBaseURL,
			Model:          defaultGeneratorModel,
			TimeoutSeconds: defaultGeneratorTimeout,
		},
		Ingest: Ingest{
			RequestTimeout: defaultIngestTimeout,
			UserAgent:      defaultIngestUserAgent,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Approval: Approval{
			WindowHours:          defaultApprovalWindowHours,
			HardExpiryHours:      defaultHardExpiryHours,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			Workers:            defaultWorkers,
			RetryBaseSeconds:   defaultRetryBaseSeconds,
			RetryMaxAttempts:   defaultRetryMaxAttempts,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
