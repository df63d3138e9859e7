package config

import (
	_ "embed"
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkspaceDir string `toml:"workspace_dir"`
	OutputDir    string `toml:"output_dir"`
	LogDir       string `toml:"log_dir"`
}

// Caption contains the fixed caption style applied to every frame.
type Caption struct {
	// FontPath points at a TrueType/OpenType file. Empty selects the embedded
	// Go Regular face.
	FontPath   string  `toml:"font_path"`
	FontSize   float64 `toml:"font_size"`
	Color      string  `toml:"color"`
	TopMargin  int     `toml:"top_margin"`
	LineHeight int     `toml:"line_height"`
	// SideMargin is applied to both the left and right edge when computing the
	// maximum line width.
	SideMargin int `toml:"side_margin"`
}

// FFmpeg contains transcoder binaries, codecs, and per-stage timeouts (seconds).
type FFmpeg struct {
	FFmpegBinary     string  `toml:"ffmpeg_binary"`
	FFprobeBinary    string  `toml:"ffprobe_binary"`
	DefaultFrameRate float64 `toml:"default_frame_rate"`
	ExtractTimeout   int     `toml:"extract_timeout"`
	RenderTimeout    int     `toml:"render_timeout"`
	EncodeTimeout    int     `toml:"encode_timeout"`
	VideoCodec       string  `toml:"video_codec"`
	PixelFormat      string  `toml:"pixel_format"`
	AudioCodec       string  `toml:"audio_codec"`
}

// Workflow contains job execution settings.
type Workflow struct {
	// RenderWorkers bounds the frame render pool. Zero means one per CPU.
	RenderWorkers       int `toml:"render_workers"`
	StaleWorkspaceHours int `toml:"stale_workspace_hours"`
	DownloadTimeout     int `toml:"download_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
}

// History controls the SQLite job history.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for captioner.
//
// Configuration sections by subsystem:
//   - Paths: workspace root, delivered output, and logs
//   - Caption: font resource and fixed style
//   - FFmpeg: transcoder binaries, codecs, and stage timeouts
//   - Workflow: render concurrency and workspace hygiene
//   - Notifications: ntfy push notification settings
//   - History: SQLite job history
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Caption       Caption       `toml:"caption"`
	FFmpeg        FFmpeg        `toml:"ffmpeg"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	History       History       `toml:"history"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/captioner/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("captioner.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a caption run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CaptionColor returns the parsed caption colour. Validate guarantees the
// configured value parses; an unparseable value falls back to opaque black.
func (c *Config) CaptionColor() color.RGBA {
	parsed, err := ParseColor(c.Caption.Color)
	if err != nil {
		return color.RGBA{A: 0xff}
	}
	return parsed
}

// RenderWorkers resolves the render pool size.
func (c *Config) RenderWorkers() int {
	if c.Workflow.RenderWorkers > 0 {
		return c.Workflow.RenderWorkers
	}
	return runtime.NumCPU()
}

// StageTimeouts returns the per-stage subprocess deadlines.
func (c *Config) StageTimeouts() (extract, render, encode time.Duration) {
	return seconds(c.FFmpeg.ExtractTimeout), seconds(c.FFmpeg.RenderTimeout), seconds(c.FFmpeg.EncodeTimeout)
}

// DownloadTimeout returns the deadline applied to remote source downloads.
func (c *Config) DownloadTimeout() time.Duration {
	return seconds(c.Workflow.DownloadTimeout)
}

// StaleWorkspaceAge returns the age after which an unlocked workspace is swept.
func (c *Config) StaleWorkspaceAge() time.Duration {
	return time.Duration(c.Workflow.StaleWorkspaceHours) * time.Hour
}

// HistoryPath returns the SQLite history location.
func (c *Config) HistoryPath() string {
	if strings.TrimSpace(c.History.Path) != "" {
		return c.History.Path
	}
	return filepath.Join(c.Paths.LogDir, "captioner.db")
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

var namedColors = map[string]color.RGBA{
	"black":  {A: 0xff},
	"white":  {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	"red":    {R: 0xff, A: 0xff},
	"green":  {G: 0x80, A: 0xff},
	"blue":   {B: 0xff, A: 0xff},
	"yellow": {R: 0xff, G: 0xff, A: 0xff},
}

// ParseColor accepts "#RRGGBB", "#RRGGBBAA", or a small set of CSS colour names.
func ParseColor(value string) (color.RGBA, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if named, ok := namedColors[value]; ok {
		return named, nil
	}
	hex := strings.TrimPrefix(value, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("color %q: expected #RRGGBB or #RRGGBBAA", value)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	raw, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q: %w", value, err)
	}
	return color.RGBA{
		R: uint8(raw >> 24),
		G: uint8(raw >> 16),
		B: uint8(raw >> 8),
		A: uint8(raw),
	}, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
