package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"captioner/internal/services"
)

const probeJSON = `{"streams":[{"index":0,"codec_name":"h264","codec_type":"video","width":320,"height":240,"avg_frame_rate":"24000/1001","r_frame_rate":"24000/1001"},{"index":1,"codec_name":"aac","codec_type":"audio"}],"format":{"duration":"4.2"}}`

func setHelperCommand(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string(nil), args...)
		}
		helperArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFMPEG_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	target := ""
	if len(args) > 0 {
		target = args[len(args)-1]
	}

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "probe":
		fmt.Print(probeJSON)
	case "probe-audio-only":
		fmt.Print(`{"streams":[{"index":0,"codec_type":"audio"}],"format":{}}`)
	case "frames":
		for i := 1; i <= 3; i++ {
			_ = os.WriteFile(fmt.Sprintf(target, i), []byte("png"), 0o644)
		}
	case "frames-gap":
		for _, i := range []int{1, 2, 4} {
			_ = os.WriteFile(fmt.Sprintf(target, i), []byte("png"), 0o644)
		}
	case "write":
		_ = os.WriteFile(target, []byte("media"), 0o644)
	case "partial-fail":
		_ = os.WriteFile(target, []byte("partial"), 0o644)
		fmt.Fprintln(os.Stderr, "Conversion failed!")
		os.Exit(1)
	case "no-audio":
		fmt.Fprintln(os.Stderr, "Stream map '0:a:0' matches no streams.")
		os.Exit(1)
	case "sleep":
		time.Sleep(30 * time.Second)
	}
	os.Exit(0)
}

func TestProbeParsesMediaInfo(t *testing.T) {
	var args []string
	setHelperCommand(t, "probe", &args)

	info, err := New().Probe(context.Background(), "/videos/clip.mp4")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if info.Width != 320 || info.Height != 240 || !info.HasAudio || info.VideoCodec != "h264" {
		t.Fatalf("unexpected media info: %+v", info)
	}
	if info.FrameRate != (Rate{Num: 24000, Den: 1001}) {
		t.Fatalf("unexpected frame rate %+v", info.FrameRate)
	}
	if args[len(args)-1] != "/videos/clip.mp4" {
		t.Fatalf("expected path as final ffprobe argument, got %v", args)
	}
}

func TestProbeWithoutVideoIsMediaError(t *testing.T) {
	setHelperCommand(t, "probe-audio-only", nil)
	_, err := New().Probe(context.Background(), "/videos/song.m4a")
	if !errors.Is(err, services.ErrMedia) {
		t.Fatalf("expected ErrMedia, got %v", err)
	}
}

func TestExtractFramesListsNumerically(t *testing.T) {
	var args []string
	setHelperCommand(t, "frames", &args)
	dir := filepath.Join(t.TempDir(), "frames")

	frames, err := New().ExtractFrames(context.Background(), "in.mp4", dir)
	if err != nil {
		t.Fatalf("ExtractFrames returned error: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, frame := range frames {
		if frame.Index != i+1 || frame.Path != FramePath(dir, i+1) {
			t.Fatalf("unexpected frame %d: %+v", i, frame)
		}
	}
	if idx := findArg(args, "-fps_mode"); idx == -1 || args[idx+1] != "passthrough" {
		t.Fatalf("expected passthrough frame mode, got %v", args)
	}
}

func TestExtractFramesZeroFramesIsMediaError(t *testing.T) {
	setHelperCommand(t, "success", nil)
	_, err := New().ExtractFrames(context.Background(), "in.mp4", t.TempDir())
	if !errors.Is(err, services.ErrMedia) {
		t.Fatalf("expected ErrMedia for zero frames, got %v", err)
	}
}

func TestExtractFramesDetectsGap(t *testing.T) {
	setHelperCommand(t, "frames-gap", nil)
	_, err := New().ExtractFrames(context.Background(), "in.mp4", t.TempDir())
	if !errors.Is(err, services.ErrMedia) || !strings.Contains(err.Error(), "broken at 3") {
		t.Fatalf("expected sequence error, got %v", err)
	}
}

func TestListFramesOrdersPastFourDigits(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 10001; i++ {
		if i != 1 && i != 2 && i < 9999 {
			continue
		}
		if err := os.WriteFile(FramePath(dir, i), nil, 0o644); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	if _, err := ListFrames(dir); err == nil {
		t.Fatal("expected gap error for sparse sequence")
	}

	dir = t.TempDir()
	for i := 1; i <= 10002; i++ {
		if err := os.WriteFile(FramePath(dir, i), nil, 0o644); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}
	frames, err := ListFrames(dir)
	if err != nil {
		t.Fatalf("ListFrames returned error: %v", err)
	}
	if len(frames) != 10002 {
		t.Fatalf("expected 10002 frames, got %d", len(frames))
	}
	if filepath.Base(frames[9999].Path) != "frame_10000.png" {
		t.Fatalf("expected frame_10000.png after frame_9999.png, got %s", frames[9999].Path)
	}
}

func TestExtractAudioNoStreamIsMediaError(t *testing.T) {
	setHelperCommand(t, "no-audio", nil)
	audio := filepath.Join(t.TempDir(), "audio.mka")
	err := New().ExtractAudio(context.Background(), "in.mp4", audio)
	if !errors.Is(err, services.ErrMedia) {
		t.Fatalf("expected ErrMedia, got %v", err)
	}
	if !strings.Contains(err.Error(), "matches no streams") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestExtractAudioCopiesStream(t *testing.T) {
	var args []string
	setHelperCommand(t, "write", &args)
	audio := filepath.Join(t.TempDir(), "audio.mka")
	if err := New().ExtractAudio(context.Background(), "in.mp4", audio); err != nil {
		t.Fatalf("ExtractAudio returned error: %v", err)
	}
	if idx := findArg(args, "-c:a"); idx == -1 || args[idx+1] != "copy" {
		t.Fatalf("expected stream copy, got %v", args)
	}
}

func TestEncodeArguments(t *testing.T) {
	var args []string
	setHelperCommand(t, "write", &args)
	dir := t.TempDir()
	req := writeEncodeInputs(t, dir)
	req.FrameRate = Rate{}

	ff := New(WithCodecs("libx265", "", ""), WithDefaultFrameRate(30))
	if err := ff.Encode(context.Background(), req); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	checks := map[string]string{
		"-framerate": "30",
		"-c:v":       "libx265",
		"-pix_fmt":   "yuv420p",
		"-c:a":       "aac",
		"-movflags":  "+faststart",
	}
	for flag, want := range checks {
		idx := findArg(args, flag)
		if idx == -1 || idx+1 >= len(args) || args[idx+1] != want {
			t.Fatalf("expected %s %s in %v", flag, want, args)
		}
	}
}

func TestEncodeKeepsRationalFrameRate(t *testing.T) {
	var args []string
	setHelperCommand(t, "write", &args)
	req := writeEncodeInputs(t, t.TempDir())
	req.FrameRate = Rate{Num: 30000, Den: 1001}

	if err := New().Encode(context.Background(), req); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if idx := findArg(args, "-framerate"); idx == -1 || args[idx+1] != "30000/1001" {
		t.Fatalf("expected -framerate 30000/1001, got %v", args)
	}
}

func TestEncodeFailureRemovesPartialOutput(t *testing.T) {
	setHelperCommand(t, "partial-fail", nil)
	req := writeEncodeInputs(t, t.TempDir())

	err := New().Encode(context.Background(), req)
	if !errors.Is(err, services.ErrMedia) {
		t.Fatalf("expected ErrMedia, got %v", err)
	}
	if _, statErr := os.Stat(req.OutputPath); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial output to be removed, stat err=%v", statErr)
	}
}

func TestEncodeRequiresInputs(t *testing.T) {
	dir := t.TempDir()
	err := New().Encode(context.Background(), EncodeRequest{FramesDir: dir, AudioPath: filepath.Join(dir, "a.mka"), OutputPath: filepath.Join(dir, "o.mp4")})
	if !errors.Is(err, services.ErrMedia) {
		t.Fatalf("expected ErrMedia for missing frames, got %v", err)
	}
}

func TestDeadlineBecomesTimeout(t *testing.T) {
	setHelperCommand(t, "sleep", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New().ExtractFrames(ctx, "in.mp4", t.TempDir())
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("expected prompt kill, took %s", elapsed)
	}
}

func TestCancelMidRunIsCanceled(t *testing.T) {
	setHelperCommand(t, "sleep", nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)
	defer cancel()

	start := time.Now()
	_, err := New().ExtractFrames(ctx, "in.mp4", t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, services.ErrMedia) {
		t.Fatalf("interrupted ffmpeg must not be a media error: %v", err)
	}
	if got := services.Kind(err); got != "canceled" {
		t.Fatalf("Kind = %q, want canceled", got)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("expected prompt kill, took %s", elapsed)
	}
}

func writeEncodeInputs(t *testing.T, dir string) EncodeRequest {
	t.Helper()
	frames := filepath.Join(dir, "frames")
	if err := os.MkdirAll(frames, 0o755); err != nil {
		t.Fatalf("mkdir frames: %v", err)
	}
	if err := os.WriteFile(FramePath(frames, 1), []byte("png"), 0o644); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	audio := filepath.Join(dir, "audio.mka")
	if err := os.WriteFile(audio, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return EncodeRequest{FramesDir: frames, AudioPath: audio, OutputPath: filepath.Join(dir, "output.mp4"), FrameRate: Rate{Num: 24, Den: 1}}
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}
