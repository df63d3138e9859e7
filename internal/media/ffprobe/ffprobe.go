package ffprobe

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Args returns the ffprobe arguments used to inspect path.
func Args(path string) []string {
	return []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path}
}

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Duration string `json:"duration"`
}

// Rate is an exact frame rate as the rational ffprobe reports it. The zero
// value means unknown.
type Rate struct {
	Num int64
	Den int64
}

// Valid reports whether r is a positive, finite rate.
func (r Rate) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// FPS returns r in frames per second, or 0 when r is not valid.
func (r Rate) FPS() float64 {
	if !r.Valid() {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// String formats r the way ffmpeg's -framerate accepts it ("30000/1001").
func (r Rate) String() string {
	if !r.Valid() {
		return ""
	}
	return strconv.FormatInt(r.Num, 10) + "/" + strconv.FormatInt(r.Den, 10)
}

// Parse decodes an ffprobe JSON payload.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// PrimaryVideo returns the first video stream. Attached pictures (cover art)
// report codec_type video too, so streams without dimensions are skipped.
func (r Result) PrimaryVideo() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") && stream.Width > 0 && stream.Height > 0 {
			return stream, true
		}
	}
	return Stream{}, false
}

// FrameRate returns the primary video frame rate, or the zero Rate when
// ffprobe reported nothing usable. avg_frame_rate wins over r_frame_rate
// because r_frame_rate is the timebase guess and overshoots on VFR sources.
func (r Result) FrameRate() Rate {
	video, ok := r.PrimaryVideo()
	if !ok {
		return Rate{}
	}
	if rate := ParseRate(video.AvgFrameRate); rate.Valid() {
		return rate
	}
	return ParseRate(video.RFrameRate)
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// HasAudio reports whether the container carries at least one audio stream.
func (r Result) HasAudio() bool {
	return r.AudioStreamCount() > 0
}

// DurationSeconds returns the container duration in seconds, 0 when absent,
// or NaN when ffprobe reported something unparseable.
func (r Result) DurationSeconds() float64 {
	cleaned := strings.TrimSpace(r.Format.Duration)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

// ParseRate converts an ffprobe rational ("30000/1001") or decimal ("23.976")
// rate into a reduced Rate. Malformed, zero, or negative values yield the zero
// Rate.
func ParseRate(value string) Rate {
	value = strings.TrimSpace(value)
	if value == "" {
		return Rate{}
	}
	if num, den, found := strings.Cut(value, "/"); found {
		if d, err := strconv.ParseInt(strings.TrimSpace(den), 10, 64); err != nil || d == 0 {
			return Rate{}
		}
		value = strings.TrimSpace(num) + "/" + strings.TrimSpace(den)
	}
	rat, ok := new(big.Rat).SetString(value)
	if !ok || rat.Sign() <= 0 || !rat.Num().IsInt64() || !rat.Denom().IsInt64() {
		return Rate{}
	}
	return Rate{Num: rat.Num().Int64(), Den: rat.Denom().Int64()}
}
