// Package preflight provides readiness checks for the binaries, directories,
// and font a caption run depends on.
//
// The CLI "captioner check" command prints every result. "captioner run"
// calls RunAll before creating a workspace and refuses to start when a
// required check fails, so a missing encoder is reported in seconds rather
// than after minutes of frame extraction.
package preflight
