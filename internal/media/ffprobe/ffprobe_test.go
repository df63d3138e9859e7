package ffprobe

import (
	"math"
	"testing"
)

const sampleProbe = `{
  "streams": [
    {"index": 0, "codec_name": "mjpeg", "codec_type": "video", "width": 0, "height": 0, "r_frame_rate": "90000/1"},
    {"index": 1, "codec_name": "h264", "codec_type": "video", "width": 1280, "height": 720,
     "pix_fmt": "yuv420p", "r_frame_rate": "60000/1001", "avg_frame_rate": "30000/1001", "nb_frames": "300"},
    {"index": 2, "codec_name": "aac", "codec_type": "audio", "sample_rate": "48000", "channels": 2}
  ],
  "format": {"filename": "clip.mp4", "nb_streams": 3, "duration": "10.010000", "size": "2048", "bit_rate": "1636"}
}`

func TestParseSelectsPrimaryVideo(t *testing.T) {
	result, err := Parse([]byte(sampleProbe))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	video, ok := result.PrimaryVideo()
	if !ok {
		t.Fatal("expected primary video stream")
	}
	if video.Index != 1 || video.Width != 1280 || video.Height != 720 {
		t.Fatalf("unexpected primary video: %+v", video)
	}
	rate := result.FrameRate()
	if rate.String() != "30000/1001" {
		t.Fatalf("expected exact avg frame rate 30000/1001, got %q", rate.String())
	}
	if math.Abs(rate.FPS()-29.97) > 0.01 {
		t.Fatalf("expected ~29.97 fps, got %v", rate.FPS())
	}
	if !result.HasAudio() || result.AudioStreamCount() != 1 {
		t.Fatal("expected one audio stream")
	}
	if result.DurationSeconds() != 10.01 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
}

func TestFrameRateFallsBackToRFrameRate(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "video", Width: 640, Height: 480, RFrameRate: "25/1", AvgFrameRate: "0/0"}}}
	if got := result.FrameRate(); got != (Rate{Num: 25, Den: 1}) {
		t.Fatalf("expected 25/1, got %+v", got)
	}
	if got := (Result{}).FrameRate(); got.Valid() {
		t.Fatalf("expected no rate without video, got %+v", got)
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"25/1", "25/1"},
		{"24000/1001", "24000/1001"},
		{"50/2", "25/1"},
		{"24", "24/1"},
		{"23.976", "2997/125"},
		{"0/0", ""},
		{"30/0", ""},
		{"abc", ""},
		{"", ""},
		{"-5/1", ""},
	}
	for _, tc := range tests {
		if got := ParseRate(tc.in).String(); got != tc.want {
			t.Errorf("ParseRate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDurationHandlesInvalidNumbers(t *testing.T) {
	if got := (Result{}).DurationSeconds(); got != 0 {
		t.Fatalf("expected 0 for missing duration, got %v", got)
	}
	if got := (Result{Format: Format{Duration: "bad"}}).DurationSeconds(); !math.IsNaN(got) {
		t.Fatalf("expected NaN, got %v", got)
	}
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}
