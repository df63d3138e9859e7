package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != present {
		t.Fatalf("expected resolved path for available dependency, got %q", results[0].Detail)
	}
}

func TestCaptionRequirementsDefaults(t *testing.T) {
	reqs := CaptionRequirements("", " /opt/ffprobe ")
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "ffmpeg" || reqs[1].Command != "/opt/ffprobe" {
		t.Fatalf("unexpected commands: %+v", reqs)
	}
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("DEPS_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("DEPS_HELPER_MODE") {
	case "x264":
		fmt.Println("Encoders:")
		fmt.Println(" V....D = Video")
		fmt.Println(" ------")
		fmt.Println(" V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)")
		fmt.Println(" A....D aac                  AAC (Advanced Audio Coding)")
	case "no-x264":
		fmt.Println(" V....D mpeg4                MPEG-4 part 2")
	case "fail":
		fmt.Fprintln(os.Stderr, "boom")
		os.Exit(1)
	}
	os.Exit(0)
}

func TestCheckEncoder(t *testing.T) {
	setHelperCommand(t, "x264")
	if status := CheckEncoder(context.Background(), "ffmpeg", "libx264"); !status.Available {
		t.Fatalf("expected libx264 available, got %+v", status)
	}

	setHelperCommand(t, "no-x264")
	status := CheckEncoder(context.Background(), "", "libx264")
	if status.Available || status.Detail == "" {
		t.Fatalf("expected missing encoder with detail, got %+v", status)
	}
	if status.Command != "ffmpeg" {
		t.Fatalf("expected default binary, got %q", status.Command)
	}

	setHelperCommand(t, "fail")
	if status := CheckEncoder(context.Background(), "ffmpeg", "libx264"); status.Available {
		t.Fatalf("expected failure when ffmpeg errors, got %+v", status)
	}
}
