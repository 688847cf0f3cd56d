package config

const (
	defaultWorkDir              = "~/.local/share/voxbrief/work"
	defaultLogDir               = "~/.local/share/voxbrief/logs"
	defaultLockDir              = "~/.local/share/voxbrief/locks"
	defaultCaptureBackend       = CaptureBackendCommand
	defaultFFmpegBinary         = "ffmpeg"
	defaultCaptureInputFormat   = "alsa"
	defaultCaptureDevice        = "default"
	defaultCaptureSampleRate    = 48000
	defaultCaptureChannels      = 2
	defaultCaptureChunkMillis   = 100
	defaultTranscriptionBackend = TranscriptionBackendWhisperX
	defaultWhisperXModel        = "large-v3-turbo"
	defaultOpenAITranscribe     = "whisper-1"
	defaultTranscriptLanguage   = "english"
	defaultChunkLengthSeconds   = 30
	defaultStrideSeconds        = 5
	defaultAnalysisProvider     = AnalysisProviderHTTP
	defaultAnalysisBaseURL      = "https://api.openai.com/v1/chat/completions"
	defaultAnalysisModel        = "gpt-3.5-turbo"
	defaultAnalysisMaxTokens    = 500
	defaultAnalysisTemperature  = 0.7
	defaultServerBind           = "127.0.0.1:7600"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
			LockDir: defaultLockDir,
		},
		Capture: Capture{
			Backend:      defaultCaptureBackend,
			FFmpegBinary: defaultFFmpegBinary,
			InputFormat:  defaultCaptureInputFormat,
			Device:       defaultCaptureDevice,
			SampleRate:   defaultCaptureSampleRate,
			Channels:     defaultCaptureChannels,
			ChunkMillis:  defaultCaptureChunkMillis,
			Hotplug:      true,
		},
		Transcription: Transcription{
			Backend:            defaultTranscriptionBackend,
			Model:              defaultWhisperXModel,
			Language:           defaultTranscriptLanguage,
			ChunkLengthSeconds: defaultChunkLengthSeconds,
			StrideSeconds:      defaultStrideSeconds,
			ReturnTimestamps:   false,
		},
		Analysis: Analysis{
			Provider:    defaultAnalysisProvider,
			BaseURL:     defaultAnalysisBaseURL,
			Model:       defaultAnalysisModel,
			MaxTokens:   defaultAnalysisMaxTokens,
			Temperature: defaultAnalysisTemperature,
		},
		Server: Server{
			Bind:    defaultServerBind,
			Metrics: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
