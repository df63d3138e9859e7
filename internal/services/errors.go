package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDownload      = errors.New("download error")
	ErrMedia         = errors.New("media error")
	ErrRender        = errors.New("render error")
	ErrTimeout       = errors.New("timeout")
	ErrWorkspace     = errors.New("workspace error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrMedia
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// WrapContext behaves like Wrap but reclassifies the failure when ctx is done.
// An expired deadline becomes ErrTimeout and a cancellation keeps
// context.Canceled as its only marker. Subprocesses killed through ctx
// otherwise surface as a bare "signal: killed".
func WrapContext(ctx context.Context, marker error, stage, operation, message string, err error) error {
	if ctx != nil {
		switch ctxErr := ctx.Err(); {
		case errors.Is(ctxErr, context.DeadlineExceeded):
			return Wrap(ErrTimeout, stage, operation, "deadline exceeded", err)
		case errors.Is(ctxErr, context.Canceled):
			return Wrap(ctxErr, stage, operation, "interrupted", err)
		}
	}
	return Wrap(marker, stage, operation, message, err)
}

// Kind returns a short label for the first marker found in err. Cancellation is
// reported separately so interrupted jobs are not mistaken for media faults.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrDownload):
		return "download"
	case errors.Is(err, ErrMedia):
		return "media"
	case errors.Is(err, ErrRender):
		return "render"
	case errors.Is(err, ErrWorkspace):
		return "workspace"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
