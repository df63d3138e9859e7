// Package layout computes greedy word-wrapped caption lines.
//
// Layout is pure: the same text, measurer, and options always produce the
// same lines. Width is measured through a Measurer so the engine can be
// driven by a real font face or a deterministic test fake.
package layout

import (
	"strings"

	"golang.org/x/image/math/fixed"
)

// Measurer reports the advance width of a string in 26.6 fixed point pixels.
// font.Face values satisfy it through font.MeasureString wrappers.
type Measurer interface {
	MeasureString(s string) fixed.Int26_6
}

// MeasurerFunc adapts a function to Measurer.
type MeasurerFunc func(s string) fixed.Int26_6

// MeasureString implements Measurer.
func (f MeasurerFunc) MeasureString(s string) fixed.Int26_6 { return f(s) }

// Options controls line breaking and vertical placement.
type Options struct {
	// MaxWidth is the widest a multi-word line may measure, in pixels.
	MaxWidth int
	// Top is the baseline of the first line.
	Top int
	// LineHeight is the baseline-to-baseline distance.
	LineHeight int
}

// Line is one positioned caption line. Y is the baseline.
type Line struct {
	Text  string
	Index int
	Y     int
}

// MaxWidthFor returns the usable line width for a frame with symmetric side
// margins. It never returns less than 1.
func MaxWidthFor(frameWidth, sideMargin int) int {
	width := frameWidth - 2*sideMargin
	if width < 1 {
		return 1
	}
	return width
}

// Wrap breaks text into lines no wider than opts.MaxWidth. Words are split on
// any whitespace run. A word is moved to a new line when appending it would
// overflow, unless the current line is empty: a single word wider than
// MaxWidth occupies its own line and is never split. Empty or blank text
// yields no lines.
func Wrap(text string, m Measurer, opts Options) []Line {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	limit := fixed.I(opts.MaxWidth)

	var lines []Line
	current := ""
	flush := func() {
		lines = append(lines, Line{
			Text:  current,
			Index: len(lines),
			Y:     opts.Top + len(lines)*opts.LineHeight,
		})
		current = ""
	}
	for _, word := range words {
		if current == "" {
			current = word
			continue
		}
		candidate := current + " " + word
		if m.MeasureString(candidate) > limit {
			flush()
			current = word
			continue
		}
		current = candidate
	}
	flush()
	return lines
}

// Texts returns the text of each line, in order.
func Texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = line.Text
	}
	return out
}
