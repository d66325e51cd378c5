package poller

import (
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-lstech-balance/fetch"
)

// Cycle names a kind of polling cycle.
type Cycle string

const (
	CycleSummary Cycle = "summary"
	CycleDetail  Cycle = "detail"
)

// Status is the outcome of a cycle.
type Status string

const (
	// StatusUpdated means new data was accepted.
	StatusUpdated Status = "updated"
	// StatusNoData means the backend had nothing to return. It is not an error.
	StatusNoData Status = "no_data"
	// StatusStale means the backend returned data older than what was already reported.
	StatusStale Status = "stale"
	// StatusSkipped means a cycle of the same kind was already running.
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Report is the result of one cycle. Sample and Detail always hold the most recent
// accepted data so a failed or empty cycle never regresses what was reported before.
type Report struct {
	Account string
	Cycle   Cycle
	CycleID uuid.UUID
	Status  Status
	Sample  *fetch.WeightSample
	Detail  fetch.DetailRecord
	Err     error
	At      time.Time
}
