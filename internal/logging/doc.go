// Package logging builds the slog loggers captioner writes through.
//
// Console output is a single line per record with the job and stage pulled
// to the front so interleaved jobs stay readable; JSON output keeps every
// attribute as a top-level key. WithContext stamps job_id, stage, and
// correlation_id from a context, and WarnWithContext / ErrorWithContext make
// sure every warning or failure carries an event_type and an operator hint.
package logging
