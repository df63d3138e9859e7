package logging

import (
	"context"
	"log/slog"

	"captioner/internal/services"
)

// WithContext returns logger stamped with the job, stage, and correlation
// IDs carried by ctx. Missing values are omitted.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var args []any
	if id, ok := services.JobIDFromContext(ctx); ok {
		args = append(args, slog.String(FieldJobID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		args = append(args, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		args = append(args, slog.String(FieldCorrelationID, rid))
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}

// NewComponentLogger tags logger with a component name. A nil logger yields
// a discarding one.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(slog.String(FieldComponent, component))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
