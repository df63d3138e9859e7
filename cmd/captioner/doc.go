// Package main hosts the captioner CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, builds the caption
// runner from it, and exposes history, workspace hygiene, and environment
// checks next to the run command. Keep this package thin: behaviour belongs in
// internal packages and is only surfaced here.
package main
