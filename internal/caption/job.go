package caption

import (
	"time"

	"captioner/internal/layout"
	"captioner/internal/source"
	"captioner/internal/workspace"
)

// Status is a caption job lifecycle state.
type Status string

const (
	StatusCreated     Status = "created"
	StatusDownloading Status = "downloading"
	StatusExtracting  Status = "extracting"
	StatusRendering   Status = "rendering"
	StatusEncoding    Status = "encoding"
	StatusDelivering  Status = "delivering"
	StatusCleanup     Status = "cleanup"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

// Terminal reports whether s ends a job. A failed job still passes through
// StatusCleanup and is then recorded as StatusFailed again, so history for
// either outcome ends on a terminal status:
//
//	success: ... -> delivering -> cleanup -> done
//	failure: ... -> <stage> -> failed -> cleanup -> failed
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Job is the in-flight state of one caption request.
type Job struct {
	ID         string
	Source     string
	Caption    string
	Workspace  *workspace.Workspace
	SourcePath string
	OutputPath string
	Status     Status
	Err        error
	FrameCount int
	Lines      []layout.Line
	StartedAt  time.Time
	FinishedAt time.Time
}

// Request is one caption job submission.
type Request struct {
	Source  source.Source
	Caption string
}

// Result describes a successfully delivered caption job.
type Result struct {
	JobID      string
	OutputPath string
	FrameCount int
	Lines      []layout.Line
	Duration   time.Duration
}

// Update is emitted on every status change and while frames render.
type Update struct {
	JobID       string
	Status      Status
	FramesDone  int
	FramesTotal int
}
