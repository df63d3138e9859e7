package config

import (
	"errors"
	"fmt"
	"os"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCaption(); err != nil {
		return err
	}
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCaption() error {
	if c.Caption.FontSize <= 0 {
		return errors.New("caption.font_size must be positive")
	}
	if c.Caption.LineHeight <= 0 {
		return errors.New("caption.line_height must be positive")
	}
	if c.Caption.TopMargin < 0 {
		return errors.New("caption.top_margin must be >= 0")
	}
	if c.Caption.SideMargin < 0 {
		return errors.New("caption.side_margin must be >= 0")
	}
	if _, err := ParseColor(c.Caption.Color); err != nil {
		return fmt.Errorf("caption.color: %w", err)
	}
	if c.Caption.FontPath != "" {
		info, err := os.Stat(c.Caption.FontPath)
		if err != nil {
			return fmt.Errorf("caption.font_path: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("caption.font_path: %s is a directory", c.Caption.FontPath)
		}
	}
	return nil
}

func (c *Config) validateFFmpeg() error {
	if c.FFmpeg.DefaultFrameRate <= 0 {
		return errors.New("ffmpeg.default_frame_rate must be positive")
	}
	return ensurePositiveMap(map[string]int{
		"ffmpeg.extract_timeout": c.FFmpeg.ExtractTimeout,
		"ffmpeg.render_timeout":  c.FFmpeg.RenderTimeout,
		"ffmpeg.encode_timeout":  c.FFmpeg.EncodeTimeout,
	})
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.stale_workspace_hours": c.Workflow.StaleWorkspaceHours,
		"workflow.download_timeout":      c.Workflow.DownloadTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.RenderWorkers > 256 {
		return errors.New("workflow.render_workers must be <= 256")
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
