package config

const (
	defaultWorkspaceDir         = "~/.local/share/captioner/workspaces"
	defaultOutputDir            = "~/.local/share/captioner/output"
	defaultLogDir               = "~/.local/share/captioner/logs"
	defaultFontSize             = 30
	defaultCaptionColor         = "#000000"
	defaultTopMargin            = 50
	defaultLineHeight           = 35
	defaultSideMargin           = 20
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultFrameRate            = 25.0
	defaultExtractTimeout       = 600
	defaultRenderTimeout        = 1800
	defaultEncodeTimeout        = 1200
	defaultVideoCodec           = "libx264"
	defaultPixelFormat          = "yuv420p"
	defaultAudioCodec           = "aac"
	defaultStaleWorkspaceHours  = 24
	defaultDownloadTimeout      = 300
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			OutputDir:    defaultOutputDir,
			LogDir:       defaultLogDir,
		},
		Caption: Caption{
			FontSize:   defaultFontSize,
			Color:      defaultCaptionColor,
			TopMargin:  defaultTopMargin,
			LineHeight: defaultLineHeight,
			SideMargin: defaultSideMargin,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:     defaultFFmpegBinary,
			FFprobeBinary:    defaultFFprobeBinary,
			DefaultFrameRate: defaultFrameRate,
			ExtractTimeout:   defaultExtractTimeout,
			RenderTimeout:    defaultRenderTimeout,
			EncodeTimeout:    defaultEncodeTimeout,
			VideoCodec:       defaultVideoCodec,
			PixelFormat:      defaultPixelFormat,
			AudioCodec:       defaultAudioCodec,
		},
		Workflow: Workflow{
			StaleWorkspaceHours: defaultStaleWorkspaceHours,
			DownloadTimeout:     defaultDownloadTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Errors:         true,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
