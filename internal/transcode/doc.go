// Package transcode drives ffmpeg and ffprobe for the caption pipeline.
//
// The Transcoder interface is deliberately narrow: probe a source, split it
// into an audio track and a directory of numbered PNG frames, and encode the
// frames back together with the audio. FFmpeg is the subprocess
// implementation. Every call blocks until the child process has exited;
// cancelling the context kills the whole process group, and a failed call
// removes whatever partial output it produced.
//
// Frames are named frame_%04d.png starting at 1. Callers must order frames
// by Frame.Index, never by file name, since the pattern widens past 9999.
package transcode
