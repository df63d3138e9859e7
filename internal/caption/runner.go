package caption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"captioner/internal/fileutil"
	"captioner/internal/jobstore"
	"captioner/internal/layout"
	"captioner/internal/logging"
	"captioner/internal/notifications"
	"captioner/internal/render"
	"captioner/internal/services"
	"captioner/internal/source"
	"captioner/internal/textutil"
	"captioner/internal/transcode"
	"captioner/internal/workspace"
)

// Recorder persists job transitions. *jobstore.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, rec jobstore.Record) error
}

// WorkspaceProvider allocates per-job workspaces. *workspace.Manager satisfies it.
type WorkspaceProvider interface {
	Create(jobID string) (*workspace.Workspace, error)
}

// LayoutSettings positions caption lines on the frame, in pixels.
type LayoutSettings struct {
	TopMargin  int
	LineHeight int
	SideMargin int
}

// Timeouts bound each stage. A zero value leaves the stage unbounded.
type Timeouts struct {
	Download time.Duration
	Extract  time.Duration
	Render   time.Duration
	Encode   time.Duration
}

// Options configures a Runner.
type Options struct {
	Transcoder transcode.Transcoder
	Workspaces WorkspaceProvider
	Style      render.Style
	Layout     LayoutSettings
	// Workers bounds the render pool. Zero means one per CPU.
	Workers   int
	Timeouts  Timeouts
	OutputDir string
	Recorder  Recorder
	Notifier  notifications.Service
	Logger    *slog.Logger
	// Progress, when set, receives status changes and render progress. It is
	// called from worker goroutines and must not block.
	Progress func(Update)

	newID func() string
	now   func() time.Time
}

// Runner executes caption jobs. Run is safe for concurrent use; each call
// gets its own workspace.
type Runner struct {
	transcoder transcode.Transcoder
	workspaces WorkspaceProvider
	style      render.Style
	layout     LayoutSettings
	workers    int
	timeouts   Timeouts
	outputDir  string
	recorder   Recorder
	notifier   notifications.Service
	logger     *slog.Logger
	progress   func(Update)
	newID      func() string
	now        func() time.Time
}

// NewRunner validates opts and returns a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Transcoder == nil {
		return nil, services.Wrap(services.ErrConfiguration, "caption", "new runner", "transcoder required", nil)
	}
	if opts.Workspaces == nil {
		return nil, services.Wrap(services.ErrConfiguration, "caption", "new runner", "workspace provider required", nil)
	}
	if opts.OutputDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "caption", "new runner", "output directory required", nil)
	}
	if opts.Style.Font == nil {
		return nil, services.Wrap(services.ErrConfiguration, "caption", "new runner", "caption font required", nil)
	}
	if opts.Layout.LineHeight <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "caption", "new runner", "line height must be positive", nil)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	newID := opts.newID
	if newID == nil {
		newID = uuid.NewString
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		transcoder: opts.Transcoder,
		workspaces: opts.Workspaces,
		style:      opts.Style,
		layout:     opts.Layout,
		workers:    workers,
		timeouts:   opts.Timeouts,
		outputDir:  opts.OutputDir,
		recorder:   opts.Recorder,
		notifier:   opts.Notifier,
		logger:     logging.NewComponentLogger(logger, "caption"),
		progress:   opts.Progress,
		newID:      newID,
		now:        now,
	}, nil
}

// Run executes one caption job end to end and returns the delivered output.
// The job workspace is removed before Run returns regardless of outcome.
func (r *Runner) Run(ctx context.Context, req Request) (result Result, err error) {
	job := &Job{
		ID:        r.newID(),
		Caption:   textutil.NormalizeCaption(req.Caption),
		Status:    StatusCreated,
		StartedAt: r.now(),
	}
	if req.Source != nil {
		job.Source = req.Source.String()
	}
	ctx = services.WithJobID(ctx, job.ID)
	r.transition(ctx, job, StatusCreated)

	defer func() {
		// Bookkeeping after a cancel still has to reach history and ntfy.
		finalCtx := context.WithoutCancel(ctx)
		if err != nil {
			r.fail(finalCtx, job, err)
		}
		r.transition(finalCtx, job, StatusCleanup)
		r.cleanup(finalCtx, job)
		job.FinishedAt = r.now()
		if err != nil {
			job.Status = StatusFailed
			r.record(finalCtx, job)
			r.notifyFailure(finalCtx, job)
			return
		}
		r.transition(finalCtx, job, StatusDone)
		result = Result{
			JobID:      job.ID,
			OutputPath: job.OutputPath,
			FrameCount: job.FrameCount,
			Lines:      job.Lines,
			Duration:   job.FinishedAt.Sub(job.StartedAt),
		}
		r.notifyCompleted(finalCtx, job)
	}()

	if req.Source == nil {
		return Result{}, services.Wrap(services.ErrValidation, "caption", "validate", "source required", nil)
	}
	if job.Caption == "" {
		return Result{}, services.Wrap(services.ErrValidation, "caption", "validate", "caption text is empty", nil)
	}

	stageCtx := r.transition(ctx, job, StatusDownloading)
	if err := r.download(stageCtx, job, req.Source); err != nil {
		return Result{}, err
	}

	stageCtx = r.transition(ctx, job, StatusExtracting)
	info, frames, err := r.extract(stageCtx, job)
	if err != nil {
		return Result{}, err
	}

	stageCtx = r.transition(ctx, job, StatusRendering)
	if err := r.renderFrames(stageCtx, job, frames); err != nil {
		return Result{}, err
	}

	stageCtx = r.transition(ctx, job, StatusEncoding)
	if err := r.encode(stageCtx, job, info); err != nil {
		return Result{}, err
	}

	stageCtx = r.transition(ctx, job, StatusDelivering)
	if err := r.deliver(stageCtx, job, req.Source); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

func (r *Runner) download(ctx context.Context, job *Job, src source.Source) error {
	ws, err := r.workspaces.Create(job.ID)
	if err != nil {
		return err
	}
	job.Workspace = ws

	fetchCtx, cancel := withTimeout(ctx, r.timeouts.Download)
	defer cancel()
	path, err := src.Fetch(fetchCtx, ws.Dir)
	if err != nil {
		return classify(fetchCtx, err, services.ErrDownload, "fetch source")
	}
	job.SourcePath = path
	r.stageLogger(ctx).Info("source ready",
		logging.String("source", job.Source),
		logging.String("path", path),
	)
	return nil
}

func (r *Runner) extract(ctx context.Context, job *Job) (transcode.MediaInfo, []transcode.Frame, error) {
	extractCtx, cancel := withTimeout(ctx, r.timeouts.Extract)
	defer cancel()

	info, err := r.transcoder.Probe(extractCtx, job.SourcePath)
	if err != nil {
		return transcode.MediaInfo{}, nil, classify(extractCtx, err, services.ErrMedia, "probe")
	}
	if !info.HasAudio {
		return transcode.MediaInfo{}, nil, services.Wrap(services.ErrMedia, "extracting", "probe", "source has no audio stream", nil)
	}

	var frames []transcode.Frame
	g, gctx := errgroup.WithContext(extractCtx)
	g.Go(func() error {
		return r.transcoder.ExtractAudio(gctx, job.SourcePath, job.Workspace.AudioPath())
	})
	g.Go(func() error {
		extracted, err := r.transcoder.ExtractFrames(gctx, job.SourcePath, job.Workspace.FramesDir)
		if err != nil {
			return err
		}
		frames = extracted
		return nil
	})
	if err := g.Wait(); err != nil {
		return transcode.MediaInfo{}, nil, classify(extractCtx, err, services.ErrMedia, "extract")
	}
	if len(frames) == 0 {
		return transcode.MediaInfo{}, nil, services.Wrap(services.ErrMedia, "extracting", "extract frames", "video produced zero frames", nil)
	}

	job.FrameCount = len(frames)
	r.stageLogger(ctx).Info("extraction complete",
		logging.Int("frames", len(frames)),
		logging.Int("width", info.Width),
		logging.Int("height", info.Height),
		logging.String("frame_rate", info.FrameRate.String()),
	)
	return info, frames, nil
}

func (r *Runner) renderFrames(ctx context.Context, job *Job, frames []transcode.Frame) error {
	renderCtx, cancel := withTimeout(ctx, r.timeouts.Render)
	defer cancel()

	workers := min(r.workers, len(frames))
	pool := make(chan *render.Renderer, workers)
	defer func() {
		close(pool)
		for rend := range pool {
			_ = rend.Close()
		}
	}()
	for range workers {
		rend, err := render.NewRenderer(r.style)
		if err != nil {
			return err
		}
		pool <- rend
	}

	width, err := render.FrameWidth(frames[0].Path)
	if err != nil {
		return err
	}
	// Layout depends only on text, face, and width, so one pass serves all frames.
	measurer := <-pool
	lines := layout.Wrap(job.Caption, measurer.Measurer(), layout.Options{
		MaxWidth:   layout.MaxWidthFor(width, r.layout.SideMargin),
		Top:        r.layout.TopMargin,
		LineHeight: r.layout.LineHeight,
	})
	pool <- measurer
	job.Lines = lines

	logger := r.stageLogger(ctx)
	logger.Info("caption layout computed",
		logging.Int("lines", len(lines)),
		logging.Int("frame_width", width),
		logging.Int("workers", workers),
	)
	logger.Debug("caption lines", logging.String("lines", strings.Join(layout.Texts(lines), " | ")))

	total := len(frames)
	var done atomic.Int64
	sampler := logging.NewProgressSampler(total, 10)

	g, gctx := errgroup.WithContext(renderCtx)
	g.SetLimit(workers)
	for _, frame := range frames {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rend := <-pool
			defer func() { pool <- rend }()
			if err := rend.RenderCaption(frame.Path, lines); err != nil {
				return err
			}
			n := int(done.Add(1))
			r.emit(Update{JobID: job.ID, Status: StatusRendering, FramesDone: n, FramesTotal: total})
			if percent, ok := sampler.Observe(n); ok {
				attrs := append(logging.Frames(n, total), logging.Int("percent", percent))
				logger.LogAttrs(gctx, slog.LevelInfo, "render progress", attrs...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return classify(renderCtx, err, services.ErrRender, "render frames")
	}
	if err := renderCtx.Err(); err != nil {
		return classify(renderCtx, err, services.ErrRender, "render frames")
	}
	if got := int(done.Load()); got != total {
		return services.Wrap(services.ErrRender, "rendering", "render frames",
			fmt.Sprintf("rendered %d of %d frames", got, total), nil)
	}
	return nil
}

func (r *Runner) encode(ctx context.Context, job *Job, info transcode.MediaInfo) error {
	encodeCtx, cancel := withTimeout(ctx, r.timeouts.Encode)
	defer cancel()
	err := r.transcoder.Encode(encodeCtx, transcode.EncodeRequest{
		FramesDir:  job.Workspace.FramesDir,
		AudioPath:  job.Workspace.AudioPath(),
		OutputPath: job.Workspace.OutputPath(),
		FrameRate:  info.FrameRate,
	})
	if err != nil {
		return classify(encodeCtx, err, services.ErrMedia, "encode")
	}
	return nil
}

func (r *Runner) deliver(ctx context.Context, job *Job, src source.Source) error {
	dest := filepath.Join(r.outputDir, OutputName(source.Name(src), job.ID))
	if err := fileutil.Move(job.Workspace.OutputPath(), dest); err != nil {
		return services.Wrap(services.ErrWorkspace, "delivering", "move output", dest, err)
	}
	job.OutputPath = dest
	r.stageLogger(ctx).Info("caption delivered",
		logging.String("output", dest),
		logging.Int("frames", job.FrameCount),
	)
	return nil
}

// OutputName is the delivered file name for a job.
func OutputName(sourceName, jobID string) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-captioned-%s.mp4", textutil.SanitizeToken(sourceName), short)
}

func (r *Runner) cleanup(ctx context.Context, job *Job) {
	if job.Workspace == nil {
		return
	}
	if err := job.Workspace.Remove(); err != nil {
		logging.WarnWithContext(r.stageLogger(ctx), "workspace cleanup failed", "workspace_cleanup_failed",
			logging.String("workspace", job.Workspace.Dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the directory manually or run captioner clean"),
			logging.String(logging.FieldImpact, "scratch frames remain on disk"),
		)
	}
}

func (r *Runner) fail(ctx context.Context, job *Job, err error) {
	failedIn := job.Status
	job.Err = err
	r.transition(ctx, job, StatusFailed)
	logging.ErrorWithContext(r.stageLogger(ctx), "caption job failed", "job_failed",
		logging.String("failed_stage", string(failedIn)),
		logging.String("error_kind", services.Kind(err)),
		logging.Error(err),
	)
}

func (r *Runner) notifyFailure(ctx context.Context, job *Job) {
	if r.notifier == nil || errors.Is(job.Err, context.Canceled) {
		return
	}
	if err := r.notifier.NotifyError(ctx, job.Err, job.Source); err != nil {
		logging.WarnWithContext(r.stageLogger(ctx), "failure notification failed", "notification_failed",
			logging.Error(err),
		)
	}
}

func (r *Runner) notifyCompleted(ctx context.Context, job *Job) {
	if r.notifier == nil {
		return
	}
	elapsed := job.FinishedAt.Sub(job.StartedAt)
	if err := r.notifier.NotifyCaptionCompleted(ctx, job.Source, job.OutputPath, job.FrameCount, elapsed); err != nil {
		logging.WarnWithContext(r.stageLogger(ctx), "completion notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "output was delivered but nobody was told"),
		)
	}
}

// transition moves job to status, records it, and returns ctx stamped with
// the new stage.
func (r *Runner) transition(ctx context.Context, job *Job, status Status) context.Context {
	job.Status = status
	ctx = services.WithStage(ctx, string(status))
	if !status.Terminal() && status != StatusCreated {
		r.stageLogger(ctx).Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	}
	r.emit(Update{JobID: job.ID, Status: status, FramesTotal: job.FrameCount})
	r.record(ctx, job)
	return ctx
}

func (r *Runner) record(ctx context.Context, job *Job) {
	if r.recorder == nil {
		return
	}
	rec := jobstore.Record{
		ID:         job.ID,
		Source:     job.Source,
		Caption:    job.Caption,
		Status:     string(job.Status),
		OutputPath: job.OutputPath,
		FrameCount: job.FrameCount,
		LineCount:  len(job.Lines),
		CreatedAt:  job.StartedAt,
		UpdatedAt:  r.now(),
	}
	if job.Err != nil {
		rec.ErrorKind = services.Kind(job.Err)
		rec.ErrorMessage = job.Err.Error()
	}
	if job.Status.Terminal() && !job.FinishedAt.IsZero() {
		finished := job.FinishedAt
		rec.FinishedAt = &finished
	}
	if err := r.recorder.Record(ctx, rec); err != nil {
		logging.WarnWithContext(r.stageLogger(ctx), "history record failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job history is incomplete"),
		)
	}
}

func (r *Runner) emit(update Update) {
	if r.progress != nil {
		r.progress(update)
	}
}

func (r *Runner) stageLogger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, r.logger)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// classify keeps an error's existing kind and tags unclassified failures with
// marker, or ErrTimeout when ctx expired.
func classify(ctx context.Context, err error, marker error, operation string) error {
	stage, _ := services.StageFromContext(ctx)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
		return services.Wrap(services.ErrTimeout, stage, operation, "deadline exceeded", err)
	}
	switch services.Kind(err) {
	case "internal":
		return services.Wrap(marker, stage, operation, "", err)
	default:
		return err
	}
}
