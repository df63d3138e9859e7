// Package caption runs caption jobs: it burns a word-wrapped caption onto
// every frame of a video and re-muxes the frames with the original audio.
//
// A Runner owns the job state machine:
//
//	created -> downloading -> extracting -> rendering -> encoding -> delivering -> cleanup -> done
//
// with failed reachable from any non-terminal state. Audio and frame
// extraction run concurrently; the caption layout is computed once from the
// first frame's width and then applied to every frame by a bounded pool of
// renderers, each owning its own font face. The first failure anywhere
// cancels the remaining work.
//
// Every job runs in its own workspace. The workspace is removed when Run
// returns, on success and on failure; a failure to remove it is logged and
// never replaces the error that ended the job.
package caption
