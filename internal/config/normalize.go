package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCaption(); err != nil {
		return err
	}
	c.normalizeFFmpeg()
	c.normalizeWorkflow()
	c.normalizeNotifications()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCaption() error {
	c.Caption.FontPath = strings.TrimSpace(c.Caption.FontPath)
	if c.Caption.FontPath == "" {
		if value, ok := os.LookupEnv("CAPTIONER_FONT"); ok {
			c.Caption.FontPath = strings.TrimSpace(value)
		}
	}
	if c.Caption.FontPath != "" {
		expanded, err := expandPath(c.Caption.FontPath)
		if err != nil {
			return fmt.Errorf("caption.font_path: %w", err)
		}
		c.Caption.FontPath = expanded
	}
	c.Caption.Color = strings.TrimSpace(c.Caption.Color)
	if c.Caption.Color == "" {
		c.Caption.Color = defaultCaptionColor
	}
	if c.Caption.FontSize == 0 {
		c.Caption.FontSize = defaultFontSize
	}
	if c.Caption.LineHeight == 0 {
		c.Caption.LineHeight = defaultLineHeight
	}
	return nil
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.FFmpegBinary = strings.TrimSpace(c.FFmpeg.FFmpegBinary)
	if c.FFmpeg.FFmpegBinary == "" {
		c.FFmpeg.FFmpegBinary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
	if c.FFmpeg.DefaultFrameRate == 0 {
		c.FFmpeg.DefaultFrameRate = defaultFrameRate
	}
	c.FFmpeg.VideoCodec = strings.TrimSpace(c.FFmpeg.VideoCodec)
	if c.FFmpeg.VideoCodec == "" {
		c.FFmpeg.VideoCodec = defaultVideoCodec
	}
	c.FFmpeg.PixelFormat = strings.TrimSpace(c.FFmpeg.PixelFormat)
	if c.FFmpeg.PixelFormat == "" {
		c.FFmpeg.PixelFormat = defaultPixelFormat
	}
	c.FFmpeg.AudioCodec = strings.TrimSpace(c.FFmpeg.AudioCodec)
	if c.FFmpeg.AudioCodec == "" {
		c.FFmpeg.AudioCodec = defaultAudioCodec
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.RenderWorkers < 0 {
		c.Workflow.RenderWorkers = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeHistory() error {
	c.History.Path = strings.TrimSpace(c.History.Path)
	if c.History.Path == "" {
		return nil
	}
	expanded, err := expandPath(c.History.Path)
	if err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	c.History.Path = expanded
	return nil
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
