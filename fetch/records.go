package fetch

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/jrsteele09/go-lstech-balance/apierr"
	"github.com/jrsteele09/go-lstech-balance/internal/utils"
)

// WeightSample is the latest reading reported by the scale.
type WeightSample struct {
	WeightKg    float64
	CapturedAt  time.Time
	RawSampleID string
	// Fields is the vendor record as received.
	Fields map[string]any
}

// HistoryEntry is the head of the measurement history.
type HistoryEntry struct {
	MeasureID  string
	CapturedAt time.Time
	Fields     map[string]any
}

// DetailRecord is the body composition payload of one measurement, passed through as
// received.
type DetailRecord map[string]any

// Fields dropped before a record is handed to a presentation layer.
var hiddenDetailFields = []string{"headPictureUrl"}

// Presentable returns a copy without fields that are not fit for display.
func (d DetailRecord) Presentable() DetailRecord {
	if d == nil {
		return nil
	}
	out := maps.Clone(d)
	for _, k := range hiddenDetailFields {
		delete(out, k)
	}
	return out
}

type summaryRow struct {
	Weight    utils.FlexString `json:"weight"`
	Timestamp utils.FlexInt    `json:"timestamp"`
	RawDataID utils.FlexString `json:"rawDataId"`
}

func decodeSample(raw json.RawMessage) (*WeightSample, error) {
	var row summaryRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, apierr.Decode(fmt.Errorf("summary row: %w", err))
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}

	sample := &WeightSample{
		RawSampleID: row.RawDataID.String(),
		CapturedAt:  time.UnixMilli(int64(row.Timestamp)),
		Fields:      fields,
	}
	if row.Weight != "" {
		w, err := strconv.ParseFloat(row.Weight.String(), 64)
		if err != nil {
			return nil, apierr.Decode(fmt.Errorf("summary weight %q: %w", row.Weight, err))
		}
		sample.WeightKg = w
	}
	return sample, nil
}

type historyRow struct {
	MeasureID  utils.FlexString `json:"measureId"`
	CreateTime utils.FlexString `json:"createTime"`
}

func decodeHistory(raw json.RawMessage, loc *time.Location) (*HistoryEntry, error) {
	var row historyRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, apierr.Decode(fmt.Errorf("history row: %w", err))
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	return &HistoryEntry{
		MeasureID:  row.MeasureID.String(),
		CapturedAt: parseCreateTime(row.CreateTime.String(), loc),
		Fields:     fields,
	}, nil
}

// parseCreateTime accepts epoch milliseconds or a local wall clock timestamp. Anything
// else yields the zero time.
func parseCreateTime(v string, loc *time.Location) time.Time {
	if v == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	for _, layout := range []string{time.DateTime, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

func decodeFields(raw json.RawMessage) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apierr.Decode(fmt.Errorf("record fields: %w", err))
	}
	return fields, nil
}
