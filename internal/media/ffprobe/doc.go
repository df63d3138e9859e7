// Package ffprobe decodes ffprobe JSON output.
//
// Args builds the inspection command line; running it is left to the caller
// so subprocess handling stays in one place. Helper methods on Result expose
// the primary video stream, its exact frame rate, audio presence, and
// duration.
package ffprobe
