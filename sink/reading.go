// Package sink delivers polling results and reauthentication requests to the outside
// world.
package sink

import (
	"time"

	"github.com/jrsteele09/go-lstech-balance/apierr"
	"github.com/jrsteele09/go-lstech-balance/fetch"
	"github.com/jrsteele09/go-lstech-balance/internal/utils"
	"github.com/jrsteele09/go-lstech-balance/poller"
)

// Reading is the published form of a cycle report.
type Reading struct {
	Account     string             `json:"account"`
	Cycle       poller.Cycle       `json:"cycle"`
	CycleID     string             `json:"cycle_id"`
	Status      poller.Status      `json:"status"`
	WeightKg    *float64           `json:"weight_kg,omitempty"`
	CapturedAt  *time.Time         `json:"captured_at,omitempty"`
	RawSampleID string             `json:"raw_sample_id,omitempty"`
	Detail      fetch.DetailRecord `json:"detail,omitempty"`
	Error       *apierr.State      `json:"error,omitempty"`
	At          time.Time          `json:"at"`
}

// NewReading flattens a report. Detail records are reduced to their presentable fields.
func NewReading(rep poller.Report) Reading {
	r := Reading{
		Account: rep.Account,
		Cycle:   rep.Cycle,
		CycleID: rep.CycleID.String(),
		Status:  rep.Status,
		At:      rep.At.UTC(),
	}
	if rep.Sample != nil {
		r.WeightKg = utils.Ptr(rep.Sample.WeightKg)
		r.CapturedAt = utils.Ptr(rep.Sample.CapturedAt.UTC())
		r.RawSampleID = rep.Sample.RawSampleID
	}
	if rep.Cycle == poller.CycleDetail {
		r.Detail = rep.Detail.Presentable()
	}
	if rep.Err != nil {
		r.Error = utils.Ptr(apierr.NewState(rep.Err, rep.At.UTC()))
	}
	return r
}
