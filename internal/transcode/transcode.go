package transcode

import (
	"context"
	"fmt"
	"path/filepath"

	"captioner/internal/media/ffprobe"
)

// FramePattern is the ffmpeg image2 pattern used for extracted frames.
const FramePattern = "frame_%04d.png"

// Rate is an exact frame rate ("30000/1001"). The zero value means unknown.
type Rate = ffprobe.Rate

// MediaInfo summarises the properties of a source video the pipeline needs.
type MediaInfo struct {
	Width      int
	Height     int
	FrameRate  Rate
	VideoCodec string
	HasAudio   bool
	Duration   float64
}

// Frame is one extracted still. Index is 1-based and defines output order.
type Frame struct {
	Index int
	Path  string
}

// FramePath returns the on-disk path for frame index inside dir.
func FramePath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf(FramePattern, index))
}

// EncodeRequest describes a reassembly of rendered frames plus audio.
type EncodeRequest struct {
	FramesDir  string
	AudioPath  string
	OutputPath string
	// FrameRate is passed to ffmpeg verbatim so the output keeps the source
	// timing exactly. An invalid rate selects the transcoder default.
	FrameRate Rate
}

// Transcoder splits a video into frames and audio and reassembles it.
type Transcoder interface {
	Probe(ctx context.Context, videoPath string) (MediaInfo, error)
	ExtractAudio(ctx context.Context, videoPath, audioPath string) error
	ExtractFrames(ctx context.Context, videoPath, framesDir string) ([]Frame, error)
	Encode(ctx context.Context, req EncodeRequest) error
}
