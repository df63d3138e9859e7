// Package notifications delivers caption job events to ntfy.
//
// NewService publishes to the topic configured in config.toml and degrades to
// a no-op when no topic is set. The per-event toggles in the [notifications]
// section silence completion or error messages individually. Notification
// failures are returned to the caller, which logs them; they never change the
// outcome of a job.
package notifications
