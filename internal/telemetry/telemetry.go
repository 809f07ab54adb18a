package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Record is a single telemetry sample for a region.
type Record struct {
	Region        string  `json:"region"`
	LatencyMs     float64 `json:"latency_ms"`
	UptimePercent float64 `json:"uptime_percent"`
}

// Dataset is the immutable, ordered set of records the service answers from.
// It is built once at start-up and shared read-only by every request.
type Dataset struct {
	records []Record
}

// NewDataset copies records into a Dataset so later changes to the
// caller's slice are not visible.
func NewDataset(records []Record) *Dataset {
	owned := make([]Record, len(records))
	copy(owned, records)
	return &Dataset{records: owned}
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// At returns the i-th record by value.
func (d *Dataset) At(i int) Record {
	return d.records[i]
}

// ForRegion returns the records of region in dataset order.
// The returned slice is freshly allocated.
func (d *Dataset) ForRegion(region string) []Record {
	if d == nil {
		return nil
	}
	var out []Record
	for _, r := range d.records {
		if r.Region == region {
			out = append(out, r)
		}
	}
	return out
}

// HasRegion reports whether any record belongs to region.
func (d *Dataset) HasRegion(region string) bool {
	if d == nil {
		return false
	}
	for _, r := range d.records {
		if r.Region == region {
			return true
		}
	}
	return false
}

// Regions lists the distinct regions in first-seen order.
func (d *Dataset) Regions() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, r := range d.records {
		if _, ok := seen[r.Region]; ok {
			continue
		}
		seen[r.Region] = struct{}{}
		out = append(out, r.Region)
	}
	return out
}

// ErrMalformedRecord is returned when a record lacks a required field.
var ErrMalformedRecord = errors.New("malformed telemetry record")

type rawRecord struct {
	Region        *string  `json:"region"`
	LatencyMs     *float64 `json:"latency_ms"`
	UptimePercent *float64 `json:"uptime_percent"`
}

// Load reads a JSON array of records from path. The file is closed before
// Load returns.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	return ds, nil
}

// Decode parses a JSON array of records. Every record must carry region,
// latency_ms and uptime_percent with the right JSON types.
func Decode(r io.Reader) (*Dataset, error) {
	var raw []rawRecord
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode: expected a JSON array of records")
	}

	records := make([]Record, 0, len(raw))
	for i, rr := range raw {
		switch {
		case rr.Region == nil:
			return nil, fmt.Errorf("record %d: missing region: %w", i, ErrMalformedRecord)
		case rr.LatencyMs == nil:
			return nil, fmt.Errorf("record %d: missing latency_ms: %w", i, ErrMalformedRecord)
		case rr.UptimePercent == nil:
			return nil, fmt.Errorf("record %d: missing uptime_percent: %w", i, ErrMalformedRecord)
		}
		records = append(records, Record{
			Region:        *rr.Region,
			LatencyMs:     *rr.LatencyMs,
			UptimePercent: *rr.UptimePercent,
		})
	}
	return &Dataset{records: records}, nil
}
