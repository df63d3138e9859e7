package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

// statusStyles maps each kind to its bracket label and ANSI colour.
var statusStyles = map[statusKind]struct{ label, color string }{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const (
	ansiReset  = "\x1b[0m"
	labelWidth = 22
)

// renderStatusLine formats "  Label:   [KIND] message", coloured when asked.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style, ok := statusStyles[kind]
	if !ok {
		style = statusStyles[statusInfo]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "  %-*s [%s]", labelWidth, label+":", style.label)
	if message != "" {
		sb.WriteString(" ")
		sb.WriteString(message)
	}
	if !colorize {
		return sb.String()
	}
	return style.color + sb.String() + ansiReset
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	lines := []string{heading, strings.Repeat("-", len(heading))}
	if colorize {
		for i := range lines {
			lines[i] = statusStyles[statusInfo].color + lines[i] + ansiReset
		}
	}
	return lines
}

// shouldColorize reports whether w is an interactive terminal.
func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func shortID(id string) string {
	return id[:min(len(id), 8)]
}

// formatDuration rounds to the millisecond below one second and to the
// second above it; non-positive durations render as "-".
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// formatBytes renders size with binary prefixes ("1.5 MiB").
func formatBytes(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	value := float64(size)
	for _, prefix := range "KMGTPE" {
		value /= 1024
		if value < 1024 {
			return fmt.Sprintf("%.1f %ciB", value, prefix)
		}
	}
	return fmt.Sprintf("%.1f EiB", value)
}
