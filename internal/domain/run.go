package domain

// Run modes accepted by cmd/ingest and recorded on IngestRun rows.
const (
	RunModeBackfill  = "backfill"
	RunModeReplay    = "replay"
	RunModeScheduled = "scheduled"
)

// IngestRun records one ingestion invocation.
// Corresponds to ingest_runs table in Postgres; append-only.
type IngestRun struct {
	RunID              string // UUID assigned at run start
	Mode               string // backfill | replay | scheduled
	FromBlock          uint64 // first block fetched (0 for replay)
	ToBlock            uint64 // last block fetched (0 for replay)
	LogsFetched        int    // raw logs returned by the provider
	ActivitiesIngested int    // new activity rows written
	DuplicatesSkipped  int    // activity inserts skipped on conflict
	PositionsUpserted  int    // position rows written
	SnapshotBlock      uint64 // block the snapshot was computed at
	BackupOK           bool   // JSON backup written
	DatabaseOK         bool   // all database writes succeeded
	Error              string // fatal error text; empty on success
	StartedAt          int64  // Unix timestamp in seconds
	FinishedAt         int64  // Unix timestamp in seconds
}
