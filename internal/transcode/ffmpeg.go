package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"captioner/internal/logging"
	"captioner/internal/media/ffprobe"
	"captioner/internal/services"
)

var commandContext = exec.CommandContext

const (
	stageTranscode = "transcode"
	stderrTailMax  = 2048
	killGrace      = 5 * time.Second
)

var frameNamePattern = regexp.MustCompile(`^frame_(\d+)\.png$`)

// Option configures the FFmpeg transcoder.
type Option func(*FFmpeg)

// WithFFmpegBinary overrides the ffmpeg executable.
func WithFFmpegBinary(binary string) Option {
	return func(f *FFmpeg) {
		if binary = strings.TrimSpace(binary); binary != "" {
			f.ffmpeg = binary
		}
	}
}

// WithFFprobeBinary overrides the ffprobe executable.
func WithFFprobeBinary(binary string) Option {
	return func(f *FFmpeg) {
		if binary = strings.TrimSpace(binary); binary != "" {
			f.ffprobe = binary
		}
	}
}

// WithCodecs overrides the output video codec, pixel format, and audio codec.
// Empty values keep the defaults.
func WithCodecs(video, pixelFormat, audio string) Option {
	return func(f *FFmpeg) {
		if video = strings.TrimSpace(video); video != "" {
			f.videoCodec = video
		}
		if pixelFormat = strings.TrimSpace(pixelFormat); pixelFormat != "" {
			f.pixelFormat = pixelFormat
		}
		if audio = strings.TrimSpace(audio); audio != "" {
			f.audioCodec = audio
		}
	}
}

// WithDefaultFrameRate sets the rate used when a request carries none.
func WithDefaultFrameRate(rate float64) Option {
	return func(f *FFmpeg) {
		if rate > 0 {
			f.defaultRate = rate
		}
	}
}

// WithLogger attaches a logger for command tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FFmpeg) {
		f.logger = logging.NewComponentLogger(logger, "ffmpeg")
	}
}

// FFmpeg implements Transcoder with the ffmpeg and ffprobe command-line tools.
type FFmpeg struct {
	ffmpeg      string
	ffprobe     string
	videoCodec  string
	pixelFormat string
	audioCodec  string
	defaultRate float64
	logger      *slog.Logger
}

// New constructs an FFmpeg transcoder using defaults.
func New(opts ...Option) *FFmpeg {
	f := &FFmpeg{
		ffmpeg:      "ffmpeg",
		ffprobe:     "ffprobe",
		videoCodec:  "libx264",
		pixelFormat: "yuv420p",
		audioCodec:  "aac",
		defaultRate: 25,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Probe inspects videoPath with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, videoPath string) (MediaInfo, error) {
	if strings.TrimSpace(videoPath) == "" {
		return MediaInfo{}, services.Wrap(services.ErrValidation, stageTranscode, "probe", "video path required", nil)
	}
	output, err := f.run(ctx, f.ffprobe, ffprobe.Args(videoPath)...)
	if err != nil {
		return MediaInfo{}, services.WrapContext(ctx, services.ErrMedia, stageTranscode, "probe", "ffprobe failed", err)
	}
	result, err := ffprobe.Parse(output)
	if err != nil {
		return MediaInfo{}, services.Wrap(services.ErrMedia, stageTranscode, "probe", "decode ffprobe output", err)
	}
	video, ok := result.PrimaryVideo()
	if !ok {
		return MediaInfo{}, services.Wrap(services.ErrMedia, stageTranscode, "probe", "no video stream in "+filepath.Base(videoPath), nil)
	}
	duration := result.DurationSeconds()
	if math.IsNaN(duration) {
		duration = 0
	}
	return MediaInfo{
		Width:      video.Width,
		Height:     video.Height,
		FrameRate:  result.FrameRate(),
		VideoCodec: video.CodecName,
		HasAudio:   result.HasAudio(),
		Duration:   duration,
	}, nil
}

// ExtractAudio copies the first audio stream into audioPath without
// re-encoding. audioPath should carry a container that accepts any codec
// (Matroska audio, .mka).
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-c:a", "copy",
		audioPath,
	}
	if _, err := f.run(ctx, f.ffmpeg, args...); err != nil {
		removePartial(audioPath)
		return services.WrapContext(ctx, services.ErrMedia, stageTranscode, "extract audio", "ffmpeg failed", err)
	}
	info, err := os.Stat(audioPath)
	if err != nil || info.Size() == 0 {
		removePartial(audioPath)
		return services.Wrap(services.ErrMedia, stageTranscode, "extract audio", "no audio written", err)
	}
	return nil
}

// ExtractFrames writes every decoded video frame into framesDir as a PNG and
// returns them in presentation order.
func (f *FFmpeg) ExtractFrames(ctx context.Context, videoPath, framesDir string) ([]Frame, error) {
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrWorkspace, stageTranscode, "extract frames", "create frames directory", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-map", "0:v:0",
		"-an",
		"-sn",
		"-fps_mode", "passthrough",
		"-start_number", "1",
		"-f", "image2",
		"-c:v", "png",
		filepath.Join(framesDir, FramePattern),
	}
	if _, err := f.run(ctx, f.ffmpeg, args...); err != nil {
		return nil, services.WrapContext(ctx, services.ErrMedia, stageTranscode, "extract frames", "ffmpeg failed", err)
	}
	frames, err := ListFrames(framesDir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, services.Wrap(services.ErrMedia, stageTranscode, "extract frames", "video produced zero frames", nil)
	}
	return frames, nil
}

// Encode reassembles the frames in req.FramesDir with req.AudioPath into an
// H.264 MP4 at req.OutputPath. The output file only exists when Encode
// returns nil.
func (f *FFmpeg) Encode(ctx context.Context, req EncodeRequest) error {
	if _, err := os.Stat(FramePath(req.FramesDir, 1)); err != nil {
		return services.Wrap(services.ErrMedia, stageTranscode, "encode", "first frame missing", err)
	}
	if _, err := os.Stat(req.AudioPath); err != nil {
		return services.Wrap(services.ErrMedia, stageTranscode, "encode", "audio track missing", err)
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return services.Wrap(services.ErrValidation, stageTranscode, "encode", "output path required", nil)
	}
	rate := req.FrameRate.String()
	if !req.FrameRate.Valid() {
		rate = strconv.FormatFloat(f.defaultRate, 'f', -1, 64)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-framerate", rate,
		"-start_number", "1",
		"-i", filepath.Join(req.FramesDir, FramePattern),
		"-i", req.AudioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", f.videoCodec,
		"-pix_fmt", f.pixelFormat,
		"-c:a", f.audioCodec,
		"-movflags", "+faststart",
		req.OutputPath,
	}
	if _, err := f.run(ctx, f.ffmpeg, args...); err != nil {
		removePartial(req.OutputPath)
		return services.WrapContext(ctx, services.ErrMedia, stageTranscode, "encode", "ffmpeg failed", err)
	}
	if info, err := os.Stat(req.OutputPath); err != nil || info.Size() == 0 {
		removePartial(req.OutputPath)
		return services.Wrap(services.ErrMedia, stageTranscode, "encode", "encoder wrote no output", err)
	}
	return nil
}

// ListFrames returns the frames in dir ordered by numeric index. Indices must
// run contiguously from 1; a gap means ffmpeg was interrupted or the
// directory was tampered with.
func ListFrames(dir string) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrWorkspace, stageTranscode, "list frames", "read frames directory", err)
	}
	frames := make([]Frame, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := frameNamePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		frames = append(frames, Frame{Index: index, Path: filepath.Join(dir, entry.Name())})
	}
	slices.SortFunc(frames, func(a, b Frame) int { return a.Index - b.Index })
	for i, frame := range frames {
		if frame.Index != i+1 {
			return nil, services.Wrap(services.ErrMedia, stageTranscode, "list frames",
				fmt.Sprintf("frame sequence broken at %d (found %d)", i+1, frame.Index), nil)
		}
	}
	return frames, nil
}

func (f *FFmpeg) run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative pid targets the whole group so encoder helpers die too.
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = killGrace

	f.logger.Debug("running command",
		logging.String("binary", binary),
		logging.String("args", strings.Join(args, " ")),
	)
	start := time.Now()
	err := cmd.Run()
	if err != nil {
		return stdout.Bytes(), &commandError{binary: binary, err: err, stderr: tail(stderr.Bytes())}
	}
	f.logger.Debug("command finished",
		logging.String("binary", binary),
		logging.Duration("elapsed", time.Since(start)),
	)
	return stdout.Bytes(), nil
}

type commandError struct {
	binary string
	err    error
	stderr string
}

func (e *commandError) Error() string {
	if e.stderr == "" {
		return fmt.Sprintf("%s: %v", filepath.Base(e.binary), e.err)
	}
	return fmt.Sprintf("%s: %v: %s", filepath.Base(e.binary), e.err, e.stderr)
}

func (e *commandError) Unwrap() error { return e.err }

func tail(output []byte) string {
	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) <= stderrTailMax {
		return trimmed
	}
	return "..." + trimmed[len(trimmed)-stderrTailMax:]
}

func removePartial(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	_ = os.Remove(path)
}

var _ Transcoder = (*FFmpeg)(nil)
