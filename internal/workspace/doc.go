// Package workspace owns the per-job scratch directories of the caption
// pipeline.
//
// Each job gets <root>/job-<id>/ with a frames/ subdirectory. The directory
// holds an advisory flock on .lock for as long as the job runs, which lets
// CleanStale sweep directories abandoned by crashed processes without ever
// touching a live job's files.
package workspace
