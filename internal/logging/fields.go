package logging

import (
	"log/slog"
	"time"
)

// Structured keys shared by every component.
const (
	FieldComponent     = "component"
	FieldJobID         = "job_id"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldImpact        = "impact"
	FieldFramesDone    = "frames_done"
	FieldFramesTotal   = "frames_total"
)

type Attr = slog.Attr

func String(key, value string) Attr { return slog.String(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Error records err under "error". A nil error is logged as "<nil>" so a
// missing cause is visible rather than silently dropped.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Frames records render progress as done/total.
func Frames(done, total int) []Attr {
	return []Attr{Int(FieldFramesDone, done), Int(FieldFramesTotal, total)}
}
