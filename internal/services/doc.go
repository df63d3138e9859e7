// Package services defines shared utilities consumed by the caption pipeline
// stages and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so every stage failure
//     carries a kind (media, render, timeout, workspace, download) that the
//     orchestrator, the job history, and the CLI can classify with errors.Is.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability) stays uniform across the pipeline.
package services
