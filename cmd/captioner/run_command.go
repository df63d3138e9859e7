package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"captioner/internal/caption"
	"captioner/internal/config"
	"captioner/internal/notifications"
	"captioner/internal/preflight"
	"captioner/internal/render"
	"captioner/internal/services"
	"captioner/internal/source"
	"captioner/internal/transcode"
	"captioner/internal/workspace"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var workers int
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "run <video|url> <caption words...>",
		Short: "Caption a video",
		Long: `Caption a video file or HTTP(S) URL.

All arguments after the video are joined with single spaces to form the
caption, so quoting is optional.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dir := strings.TrimSpace(outputDir); dir != "" {
				expanded, err := config.ExpandPath(dir)
				if err != nil {
					return services.Wrap(services.ErrConfiguration, "cli", "output dir", dir, err)
				}
				cfg.Paths.OutputDir = expanded
				if err := cfg.EnsureDirectories(); err != nil {
					return services.Wrap(services.ErrConfiguration, "cli", "output dir", expanded, err)
				}
			}
			if workers > 0 {
				cfg.Workflow.RenderWorkers = workers
			}

			if !skipChecks {
				if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
					first := failed[0]
					return services.Wrap(services.ErrConfiguration, "preflight", first.Name, first.Detail, nil)
				}
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return services.Wrap(services.ErrConfiguration, "cli", "open history", "", err)
			}
			if store != nil {
				defer store.Close()
			}

			font, err := render.SharedFont(cfg.Caption.FontPath)
			if err != nil {
				return err
			}
			extract, renderTimeout, encode := cfg.StageTimeouts()
			printer := newProgressPrinter(cmd.OutOrStdout(), shouldColorize(cmd.OutOrStdout()))
			opts := caption.Options{
				Transcoder: transcode.New(
					transcode.WithFFmpegBinary(cfg.FFmpeg.FFmpegBinary),
					transcode.WithFFprobeBinary(cfg.FFmpeg.FFprobeBinary),
					transcode.WithCodecs(cfg.FFmpeg.VideoCodec, cfg.FFmpeg.PixelFormat, cfg.FFmpeg.AudioCodec),
					transcode.WithDefaultFrameRate(cfg.FFmpeg.DefaultFrameRate),
					transcode.WithLogger(logger),
				),
				Workspaces: workspace.NewManager(cfg.Paths.WorkspaceDir),
				Style: render.Style{
					Font:  font,
					Size:  cfg.Caption.FontSize,
					Color: cfg.CaptionColor(),
				},
				Layout: caption.LayoutSettings{
					TopMargin:  cfg.Caption.TopMargin,
					LineHeight: cfg.Caption.LineHeight,
					SideMargin: cfg.Caption.SideMargin,
				},
				Workers: cfg.RenderWorkers(),
				Timeouts: caption.Timeouts{
					Download: cfg.DownloadTimeout(),
					Extract:  extract,
					Render:   renderTimeout,
					Encode:   encode,
				},
				OutputDir: cfg.Paths.OutputDir,
				Notifier:  notifications.NewService(cfg),
				Logger:    logger,
				Progress:  printer.update,
			}
			if store != nil {
				opts.Recorder = store
			}
			runner, err := caption.NewRunner(opts)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			result, err := runner.Run(signalCtx, caption.Request{
				Source:  source.Parse(args[0], nil),
				Caption: strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Captioned video: %s\n", result.OutputPath)
			fmt.Fprintf(out, "Frames: %d  Lines: %d  Elapsed: %s\n", result.FrameCount, len(result.Lines), formatDuration(result.Duration))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for the captioned video (overrides paths.output_dir)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Render worker count (overrides workflow.render_workers)")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Skip dependency and directory checks before running")
	return cmd
}

// progressPrinter writes one status line per stage change. Render progress is
// reported once, when the last frame lands.
type progressPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
	title    cases.Caser
	last     caption.Status
}

func newProgressPrinter(out io.Writer, colorize bool) *progressPrinter {
	return &progressPrinter{out: out, colorize: colorize, title: cases.Title(language.Und)}
}

func (p *progressPrinter) update(u caption.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u.Status == caption.StatusRendering && u.FramesTotal > 0 && u.FramesDone == u.FramesTotal {
		fmt.Fprintln(p.out, renderStatusLine("Rendered", statusOK, fmt.Sprintf("%d frames", u.FramesTotal), p.colorize))
		return
	}
	if u.Status == p.last || u.Status == caption.StatusCreated {
		return
	}
	p.last = u.Status
	kind := statusInfo
	switch u.Status {
	case caption.StatusDone:
		kind = statusOK
	case caption.StatusFailed:
		kind = statusError
	}
	fmt.Fprintln(p.out, renderStatusLine(p.title.String(string(u.Status)), kind, shortID(u.JobID), p.colorize))
}
