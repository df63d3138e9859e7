package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

var commandContext = exec.CommandContext

// CaptionRequirements lists the binaries the caption pipeline shells out to.
func CaptionRequirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     defaultCommand(ffmpegBinary, "ffmpeg"),
			Description: "Required for frame extraction and encoding",
		},
		{
			Name:        "FFprobe",
			Command:     defaultCommand(ffprobeBinary, "ffprobe"),
			Description: "Required for media inspection",
		},
	}
}

// CheckEncoder reports whether ffmpegBinary was built with the named encoder
// (for example libx264). A stock ffmpeg without GPL components lacks it.
func CheckEncoder(ctx context.Context, ffmpegBinary, encoder string) Status {
	binary := defaultCommand(ffmpegBinary, "ffmpeg")
	status := Status{Requirement: Requirement{
		Name:        "Encoder " + encoder,
		Command:     binary,
		Description: "Required to encode captioned output",
	}}
	cmd := commandContext(ctx, binary, "-hide_banner", "-encoders") //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		status.Detail = fmt.Sprintf("list encoders: %v", err)
		return status
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// Encoder lines look like " V....D libx264   libx264 H.264 ..."
		if len(fields) >= 2 && fields[1] == encoder {
			status.Available = true
			return status
		}
	}
	status.Detail = fmt.Sprintf("%s does not provide encoder %q", binary, encoder)
	return status
}

func defaultCommand(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}
