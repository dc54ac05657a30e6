// Package ledger persists generation transitions in SQLite.
//
// Every (session, scene, kind) status change the orchestrator reports is
// appended as one row, so a run can be audited after the process exits. The
// store is append-only; the latest row per pair is its final status.
package ledger
