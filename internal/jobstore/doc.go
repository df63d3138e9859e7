// Package jobstore persists caption job history in SQLite.
//
// Every status transition of a caption job is upserted into the jobs table,
// keyed by the job's UUID, so a crashed run still leaves a row showing the
// last stage it reached. The store is purely observational: the caption
// runner logs history failures and carries on.
//
// Schema changes are shipped as numbered files under migrations/ and applied
// in order inside one transaction when the store opens.
package jobstore
