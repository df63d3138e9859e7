package caption

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"captioner/internal/jobstore"
	"captioner/internal/layout"
	"captioner/internal/render"
	"captioner/internal/services"
	"captioner/internal/source"
	"captioner/internal/testsupport"
	"captioner/internal/transcode"
	"captioner/internal/workspace"
)

type memoryRecorder struct {
	mu      sync.Mutex
	records []jobstore.Record
	err     error
}

func (m *memoryRecorder) Record(_ context.Context, rec jobstore.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

func (m *memoryRecorder) statuses(jobID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, rec := range m.records {
		if rec.ID == jobID {
			out = append(out, rec.Status)
		}
	}
	return out
}

func (m *memoryRecorder) last() jobstore.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[len(m.records)-1]
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failures  []error
}

func (n *recordingNotifier) NotifyCaptionCompleted(_ context.Context, _ string, outputPath string, _ int, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, outputPath)
	return nil
}

func (n *recordingNotifier) NotifyError(_ context.Context, err error, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

// corruptingTranscoder overwrites one extracted frame with bytes that are not
// a PNG so its render fails.
type corruptingTranscoder struct {
	*testsupport.FakeTranscoder
	corrupt int
}

func (c corruptingTranscoder) ExtractFrames(ctx context.Context, videoPath, framesDir string) ([]transcode.Frame, error) {
	frames, err := c.FakeTranscoder.ExtractFrames(ctx, videoPath, framesDir)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(transcode.FramePath(framesDir, c.corrupt), []byte("not a png"), 0o644); err != nil {
		return nil, err
	}
	return frames, nil
}

type harness struct {
	runner    *Runner
	wsRoot    string
	outputDir string
	recorder  *memoryRecorder
	notifier  *recordingNotifier
	source    source.Source
}

func newHarness(t *testing.T, tc transcode.Transcoder, mutate ...func(*Options)) *harness {
	t.Helper()
	base := t.TempDir()
	h := &harness{
		wsRoot:    filepath.Join(base, "workspaces"),
		outputDir: filepath.Join(base, "output"),
		recorder:  &memoryRecorder{},
		notifier:  &recordingNotifier{},
	}
	if err := os.MkdirAll(h.outputDir, 0o755); err != nil {
		t.Fatalf("mkdir output: %v", err)
	}
	input := filepath.Join(base, "Holiday Clip.mp4")
	testsupport.WriteFile(t, input, 128)
	h.source = source.Local(input)

	font, err := render.LoadFont("")
	if err != nil {
		t.Fatalf("LoadFont: %v", err)
	}
	opts := Options{
		Transcoder: tc,
		Workspaces: workspace.NewManager(h.wsRoot),
		Style:      render.Style{Font: font, Size: 30},
		Layout:     LayoutSettings{TopMargin: 50, LineHeight: 35, SideMargin: 20},
		Workers:    3,
		OutputDir:  h.outputDir,
		Recorder:   h.recorder,
		Notifier:   h.notifier,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	runner, err := NewRunner(opts)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	h.runner = runner
	return h
}

func (h *harness) assertNoWorkspaces(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.wsRoot)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		t.Fatalf("read workspace root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected workspaces removed, found %d entries", len(entries))
	}
}

func (h *harness) outputs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.outputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

const longCaption = "when the build finally passes after three hours of fighting the linker at midnight"

func TestRunCaptionsEveryFrameIdentically(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(6, 320, 240)
	var frameBytes [][]byte
	fake.BeforeEncode = func(req transcode.EncodeRequest) error {
		for i := 1; i <= 6; i++ {
			data, err := os.ReadFile(transcode.FramePath(req.FramesDir, i))
			if err != nil {
				return err
			}
			frameBytes = append(frameBytes, data)
		}
		return nil
	}
	var updates []Update
	var updatesMu sync.Mutex
	h := newHarness(t, fake, func(o *Options) {
		o.Progress = func(u Update) {
			updatesMu.Lock()
			updates = append(updates, u)
			updatesMu.Unlock()
		}
	})

	result, err := h.runner.Run(context.Background(), Request{Source: h.source, Caption: "  " + longCaption + "\n"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.FrameCount != 6 {
		t.Fatalf("expected 6 frames, got %d", result.FrameCount)
	}
	if len(result.Lines) < 2 {
		t.Fatalf("expected caption to wrap, got %v", layout.Texts(result.Lines))
	}
	if got := strings.Join(layout.Texts(result.Lines), " "); got != longCaption {
		t.Fatalf("wrapped lines lost words: %q", got)
	}
	for i, line := range result.Lines {
		if line.Y != 50+i*35 {
			t.Fatalf("line %d baseline = %d, want %d", i, line.Y, 50+i*35)
		}
	}

	rend, err := render.NewRenderer(render.Style{Font: mustFont(t), Size: 30})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	defer rend.Close()
	maxWidth := layout.MaxWidthFor(320, 20)
	for _, line := range result.Lines {
		if strings.Contains(line.Text, " ") && rend.Measurer().MeasureString(line.Text).Ceil() > maxWidth {
			t.Fatalf("line %q exceeds %dpx", line.Text, maxWidth)
		}
	}

	if len(frameBytes) != 6 {
		t.Fatalf("expected 6 rendered frames inspected, got %d", len(frameBytes))
	}
	for i := 1; i < len(frameBytes); i++ {
		if !bytes.Equal(frameBytes[0], frameBytes[i]) {
			t.Fatalf("frame %d differs from frame 1", i+1)
		}
	}
	blank := filepath.Join(t.TempDir(), "blank.png")
	testsupport.WriteFrame(t, blank, 320, 240)
	blankBytes, err := os.ReadFile(blank)
	if err != nil {
		t.Fatalf("read blank: %v", err)
	}
	if bytes.Equal(blankBytes, frameBytes[0]) {
		t.Fatal("expected caption pixels on rendered frames")
	}

	wantName := fmt.Sprintf("holiday_clip-captioned-%s.mp4", result.JobID[:8])
	if filepath.Base(result.OutputPath) != wantName {
		t.Fatalf("output name = %q, want %q", filepath.Base(result.OutputPath), wantName)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Fatalf("expected delivered output: %v", err)
	}
	h.assertNoWorkspaces(t)

	calls := fake.Calls()
	if calls[0] != "probe" || calls[len(calls)-1] != "encode" {
		t.Fatalf("unexpected call order: %v", calls)
	}
	encoded := fake.Encoded()
	if len(encoded) != 1 || encoded[0].FrameRate.String() != "25/1" {
		t.Fatalf("expected one encode at 25/1, got %+v", encoded)
	}

	want := []string{"created", "downloading", "extracting", "rendering", "encoding", "delivering", "cleanup", "done"}
	if got := h.recorder.statuses(result.JobID); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("status history = %v, want %v", got, want)
	}
	last := h.recorder.last()
	if last.FinishedAt == nil || last.OutputPath != result.OutputPath || last.LineCount != len(result.Lines) {
		t.Fatalf("unexpected final record: %+v", last)
	}
	if len(h.notifier.completed) != 1 || len(h.notifier.failures) != 0 {
		t.Fatalf("unexpected notifications: %+v", h.notifier)
	}

	maxDone := 0
	for _, u := range updates {
		if u.Status == StatusRendering && u.FramesDone > maxDone {
			maxDone = u.FramesDone
		}
	}
	if maxDone != 6 {
		t.Fatalf("expected render progress to reach 6, got %d", maxDone)
	}
}

func TestRunSingleLongWordStaysOnOneLine(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(2, 120, 80)
	h := newHarness(t, fake)

	word := "supercalifragilisticexpialidocious"
	result, err := h.runner.Run(context.Background(), Request{Source: h.source, Caption: word})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0].Text != word {
		t.Fatalf("expected one unsplit line, got %v", layout.Texts(result.Lines))
	}
}

func TestRunZeroFramesIsMediaError(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(0, 320, 240)
	h := newHarness(t, fake)

	_, err := h.runner.Run(context.Background(), Request{Source: h.source, Caption: "hello"})
	if !errors.Is(err, services.ErrMedia) {
		t.Fatalf("expected ErrMedia, got %v", err)
	}
	if len(fake.Encoded()) != 0 {
		t.Fatal("encode should not run without frames")
	}
	if outs := h.outputs(t); len(outs) != 0 {
		t.Fatalf("expected no output, got %v", outs)
	}
	h.assertNoWorkspaces(t)
	last := h.recorder.last()
	if last.Status != "failed" || last.ErrorKind != "media" {
		t.Fatalf("unexpected final record: %+v", last)
	}
	if len(h.notifier.failures) != 1 {
		t.Fatalf("expected failure notification, got %d", len(h.notifier.failures))
	}
}

func TestRunWithoutAudioFailsFast(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(4, 320, 240)
	fake.Info.HasAudio = false
	h := newHarness(t, fake)

	_, err := h.runner.Run(context.Background(), Request{Source: h.source, Caption: "silent film"})
	if !errors.Is(err, services.ErrMedia) {
		t.Fatalf("expected ErrMedia, got %v", err)
	}
	if calls := fake.Calls(); len(calls) != 1 || calls[0] != "probe" {
		t.Fatalf("expected only probe to run, got %v", calls)
	}
	h.assertNoWorkspaces(t)
}

func TestRunRenderFailureAbortsJob(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(12, 160, 120)
	h := newHarness(t, corruptingTranscoder{FakeTranscoder: fake, corrupt: 7})

	_, err := h.runner.Run(context.Background(), Request{Source: h.source, Caption: "broken frame"})
	if !errors.Is(err, services.ErrRender) {
		t.Fatalf("expected ErrRender, got %v", err)
	}
	if len(fake.Encoded()) != 0 {
		t.Fatal("encode must not run after a render failure")
	}
	if outs := h.outputs(t); len(outs) != 0 {
		t.Fatalf("expected no output, got %v", outs)
	}
	h.assertNoWorkspaces(t)
	got := h.recorder.statuses(h.recorder.last().ID)
	want := []string{"created", "downloading", "extracting", "rendering", "failed", "cleanup", "failed"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("status history = %v, want %v", got, want)
	}
	last := h.recorder.last()
	if last.FinishedAt == nil || last.ErrorKind != "render" {
		t.Fatalf("unexpected final record: %+v", last)
	}
}

func TestRunExtractionFailureCancelsSibling(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(3, 160, 120)
	fake.AudioErr = services.Wrap(services.ErrMedia, "transcode", "extract audio", "decoder crashed", nil)
	h := newHarness(t, fake)

	_, err := h.runner.Run(context.Background(), Request{Source: h.source, Caption: "hello"})
	if !errors.Is(err, services.ErrMedia) || !strings.Contains(err.Error(), "decoder crashed") {
		t.Fatalf("expected audio error to surface, got %v", err)
	}
	h.assertNoWorkspaces(t)
}

func TestRunEncodeFailureRemovesWorkspace(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(3, 160, 120)
	fake.EncodeErr = errors.New("muxer exploded")
	h := newHarness(t, fake)

	_, err := h.runner.Run(context.Background(), Request{Source: h.source, Caption: "hello"})
	if !errors.Is(err, services.ErrMedia) {
		t.Fatalf("expected unclassified encode error tagged as media, got %v", err)
	}
	h.assertNoWorkspaces(t)
}

func TestRunValidation(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(3, 160, 120)
	h := newHarness(t, fake)

	_, err := h.runner.Run(context.Background(), Request{Source: h.source, Caption: " \t\u200b\n"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for blank caption, got %v", err)
	}
	if len(fake.Calls()) != 0 {
		t.Fatalf("transcoder should not be touched, got %v", fake.Calls())
	}

	_, err = h.runner.Run(context.Background(), Request{Source: source.Local(filepath.Join(t.TempDir(), "missing.mp4")), Caption: "hi"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing source, got %v", err)
	}
	h.assertNoWorkspaces(t)

	_, err = h.runner.Run(context.Background(), Request{Caption: "hi"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for nil source, got %v", err)
	}
}

func TestRunCanceledContext(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(3, 160, 120)
	h := newHarness(t, fake)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner.Run(ctx, Request{Source: h.source, Caption: "hello"})
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if services.Kind(err) != "canceled" {
		t.Fatalf("expected canceled kind, got %q (%v)", services.Kind(err), err)
	}
	if len(h.notifier.failures) != 0 {
		t.Fatal("canceled jobs should not send failure notifications")
	}
	h.assertNoWorkspaces(t)
	if last := h.recorder.last(); last.Status != "failed" {
		t.Fatalf("expected failed record, got %+v", last)
	}
}

func TestRunInterruptedEncodeIsCanceled(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(3, 160, 120)
	fake.HangEncode = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake.BeforeEncode = func(transcode.EncodeRequest) error {
		cancel()
		return nil
	}
	h := newHarness(t, fake)

	_, err := h.runner.Run(ctx, Request{Source: h.source, Caption: "hello"})
	if !errors.Is(err, context.Canceled) || errors.Is(err, services.ErrMedia) {
		t.Fatalf("expected cancellation without media marker, got %v", err)
	}
	if len(h.notifier.failures) != 0 {
		t.Fatalf("interrupted jobs should not notify, got %v", h.notifier.failures)
	}
	last := h.recorder.last()
	if last.Status != "failed" || last.ErrorKind != "canceled" {
		t.Fatalf("unexpected final record: %+v", last)
	}
	h.assertNoWorkspaces(t)
}

func TestRunStageTimeoutFailsJob(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(3, 160, 120)
	fake.HangEncode = true
	h := newHarness(t, fake, func(o *Options) {
		o.Timeouts = Timeouts{Encode: 100 * time.Millisecond}
	})

	start := time.Now()
	_, err := h.runner.Run(context.Background(), Request{Source: h.source, Caption: "hello"})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("expected encode deadline to end the job, took %s", elapsed)
	}
	last := h.recorder.last()
	if last.Status != "failed" || last.ErrorKind != "timeout" || last.FinishedAt == nil {
		t.Fatalf("unexpected final record: %+v", last)
	}
	if len(h.notifier.failures) != 1 {
		t.Fatalf("expected failure notification, got %d", len(h.notifier.failures))
	}
	if outs := h.outputs(t); len(outs) != 0 {
		t.Fatalf("expected no output, got %v", outs)
	}
	h.assertNoWorkspaces(t)
}

func TestRunHistoryFailureDoesNotFailJob(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(2, 160, 120)
	h := newHarness(t, fake)
	h.recorder.err = errors.New("database is locked")

	if _, err := h.runner.Run(context.Background(), Request{Source: h.source, Caption: "hello"}); err != nil {
		t.Fatalf("history errors must not fail the job: %v", err)
	}
}

func TestConcurrentRunsUseDistinctWorkspaces(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(4, 160, 120)
	var seenMu sync.Mutex
	seen := map[string]bool{}
	fake.BeforeEncode = func(req transcode.EncodeRequest) error {
		seenMu.Lock()
		defer seenMu.Unlock()
		if seen[req.FramesDir] {
			return fmt.Errorf("frames dir %s reused", req.FramesDir)
		}
		seen[req.FramesDir] = true
		return nil
	}
	h := newHarness(t, fake)

	const jobs = 4
	var wg sync.WaitGroup
	results := make([]Result, jobs)
	errs := make([]error, jobs)
	for i := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = h.runner.Run(context.Background(), Request{Source: h.source, Caption: fmt.Sprintf("caption %d", i)})
		}()
	}
	wg.Wait()

	outputs := map[string]bool{}
	for i := range jobs {
		if errs[i] != nil {
			t.Fatalf("job %d failed: %v", i, errs[i])
		}
		if outputs[results[i].OutputPath] {
			t.Fatalf("duplicate output path %s", results[i].OutputPath)
		}
		outputs[results[i].OutputPath] = true
	}
	if len(h.outputs(t)) != jobs {
		t.Fatalf("expected %d outputs, got %v", jobs, h.outputs(t))
	}
	h.assertNoWorkspaces(t)
}

func TestWorkspaceCollisionIsWorkspaceError(t *testing.T) {
	fake := testsupport.NewFakeTranscoder(2, 160, 120)
	h := newHarness(t, fake, func(o *Options) {
		o.newID = func() string { return "fixed-id" }
	})
	if err := os.MkdirAll(filepath.Join(h.wsRoot, "job-fixed-id"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := h.runner.Run(context.Background(), Request{Source: h.source, Caption: "hello"})
	if !errors.Is(err, services.ErrWorkspace) {
		t.Fatalf("expected ErrWorkspace, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(h.wsRoot, "job-fixed-id")); statErr != nil {
		t.Fatalf("pre-existing directory must be left alone: %v", statErr)
	}
}

func TestNewRunnerValidatesOptions(t *testing.T) {
	font := mustFont(t)
	base := Options{
		Transcoder: testsupport.NewFakeTranscoder(1, 10, 10),
		Workspaces: workspace.NewManager(t.TempDir()),
		Style:      render.Style{Font: font, Size: 12},
		Layout:     LayoutSettings{LineHeight: 14},
		OutputDir:  t.TempDir(),
	}
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"transcoder", func(o *Options) { o.Transcoder = nil }},
		{"workspaces", func(o *Options) { o.Workspaces = nil }},
		{"output dir", func(o *Options) { o.OutputDir = "" }},
		{"font", func(o *Options) { o.Style.Font = nil }},
		{"line height", func(o *Options) { o.Layout.LineHeight = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := base
			tc.mutate(&opts)
			if _, err := NewRunner(opts); !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
	if _, err := NewRunner(base); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
}

func TestOutputName(t *testing.T) {
	if got := OutputName("My Video!", "0123456789abcdef"); got != "my_video-captioned-01234567.mp4" {
		t.Fatalf("OutputName = %q", got)
	}
	if got := OutputName("", "abc"); got != "unknown-captioned-abc.mp4" {
		t.Fatalf("OutputName = %q", got)
	}
}

func mustFont(t *testing.T) *render.Font {
	t.Helper()
	font, err := render.LoadFont("")
	if err != nil {
		t.Fatalf("LoadFont: %v", err)
	}
	return font
}
