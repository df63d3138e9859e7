package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"captioner/internal/config"
	"captioner/internal/deps"
	"captioner/internal/render"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFont verifies the configured caption font parses and yields a face at size.
func CheckFont(path string, size float64) Result {
	const name = "Caption font"
	f, err := render.SharedFont(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	r, err := render.NewRenderer(render.Style{Font: f, Size: size})
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	_ = r.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s at %gpx", f.Source(), size)}
}

// CheckSystemDeps evaluates the ffmpeg toolchain for the given config: both
// binaries on PATH and the configured video encoder compiled in.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries(deps.CaptionRequirements(cfg.FFmpeg.FFmpegBinary, cfg.FFmpeg.FFprobeBinary))
	if len(statuses) > 0 && statuses[0].Available {
		statuses = append(statuses, deps.CheckEncoder(ctx, cfg.FFmpeg.FFmpegBinary, cfg.FFmpeg.VideoCodec))
	}
	return statuses
}
