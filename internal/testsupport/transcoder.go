package testsupport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"captioner/internal/services"
	"captioner/internal/transcode"
)

// FakeTranscoder is an in-process transcode.Transcoder. ExtractFrames writes
// real white PNG frames so the renderer can decode them; ExtractAudio and
// Encode write placeholder files.
type FakeTranscoder struct {
	Info       transcode.MediaInfo
	FrameCount int

	ProbeErr  error
	AudioErr  error
	FramesErr error
	EncodeErr error

	// BeforeEncode runs with the request before the output is written. Tests
	// use it to inspect rendered frames while the workspace still exists.
	BeforeEncode func(req transcode.EncodeRequest) error
	// HangEncode makes Encode block until ctx is done and then fail the way a
	// killed ffmpeg does.
	HangEncode bool

	mu      sync.Mutex
	calls   []string
	encoded []transcode.EncodeRequest
}

// NewFakeTranscoder returns a fake for a width x height video with audio.
func NewFakeTranscoder(frames, width, height int) *FakeTranscoder {
	return &FakeTranscoder{
		Info: transcode.MediaInfo{
			Width:      width,
			Height:     height,
			FrameRate:  transcode.Rate{Num: 25, Den: 1},
			VideoCodec: "h264",
			HasAudio:   true,
		},
		FrameCount: frames,
	}
}

// Calls returns the operations invoked so far, in order.
func (f *FakeTranscoder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Encoded returns every encode request received.
func (f *FakeTranscoder) Encoded() []transcode.EncodeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcode.EncodeRequest(nil), f.encoded...)
}

func (f *FakeTranscoder) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// Probe implements transcode.Transcoder.
func (f *FakeTranscoder) Probe(ctx context.Context, _ string) (transcode.MediaInfo, error) {
	f.record("probe")
	if f.ProbeErr != nil {
		return transcode.MediaInfo{}, f.ProbeErr
	}
	return f.Info, ctx.Err()
}

// ExtractAudio implements transcode.Transcoder.
func (f *FakeTranscoder) ExtractAudio(ctx context.Context, _ string, audioPath string) error {
	f.record("extract_audio")
	if f.AudioErr != nil {
		return f.AudioErr
	}
	if !f.Info.HasAudio {
		return services.Wrap(services.ErrMedia, "transcode", "extract audio", "no audio stream", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writePattern(audioPath, 64)
}

// ExtractFrames implements transcode.Transcoder.
func (f *FakeTranscoder) ExtractFrames(ctx context.Context, _ string, framesDir string) ([]transcode.Frame, error) {
	f.record("extract_frames")
	if f.FramesErr != nil {
		return nil, f.FramesErr
	}
	if f.FrameCount <= 0 {
		return nil, services.Wrap(services.ErrMedia, "transcode", "extract frames", "video produced zero frames", nil)
	}
	frames := make([]transcode.Frame, 0, f.FrameCount)
	for i := 1; i <= f.FrameCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := transcode.FramePath(framesDir, i)
		if err := writeFrame(path, f.Info.Width, f.Info.Height); err != nil {
			return nil, fmt.Errorf("fake frame %d: %w", i, err)
		}
		frames = append(frames, transcode.Frame{Index: i, Path: path})
	}
	return frames, nil
}

// Encode implements transcode.Transcoder.
func (f *FakeTranscoder) Encode(ctx context.Context, req transcode.EncodeRequest) error {
	f.record("encode")
	f.mu.Lock()
	f.encoded = append(f.encoded, req)
	f.mu.Unlock()
	if f.EncodeErr != nil {
		return f.EncodeErr
	}
	if _, err := os.Stat(req.AudioPath); err != nil {
		return services.Wrap(services.ErrMedia, "transcode", "encode", "audio track missing", err)
	}
	if _, err := os.Stat(transcode.FramePath(req.FramesDir, 1)); err != nil {
		return services.Wrap(services.ErrMedia, "transcode", "encode", "first frame missing", err)
	}
	if f.BeforeEncode != nil {
		if err := f.BeforeEncode(req); err != nil {
			return err
		}
	}
	if f.HangEncode {
		<-ctx.Done()
		return services.WrapContext(ctx, services.ErrMedia, "transcode", "encode", "ffmpeg failed", errors.New("ffmpeg: signal: killed"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.OutputPath == "" {
		return errors.New("fake encode: output path required")
	}
	return writePattern(req.OutputPath, 256)
}

var _ transcode.Transcoder = (*FakeTranscoder)(nil)
