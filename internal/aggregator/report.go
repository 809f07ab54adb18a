package aggregator

import (
	"bytes"
	"encoding/json"
)

// Entry pairs a region with its statistics.
type Entry struct {
	Region string
	Stats  Stats
}

// Report maps requested regions to their statistics. Entries keep the order
// in which regions were first requested, and the JSON form is an object in
// that order.
type Report struct {
	entries []Entry
	index   map[string]int
}

func newReport(capacity int) Report {
	return Report{
		entries: make([]Entry, 0, capacity),
		index:   make(map[string]int, capacity),
	}
}

func (r *Report) set(region string, s Stats) {
	if i, ok := r.index[region]; ok {
		r.entries[i].Stats = s
		return
	}
	r.index[region] = len(r.entries)
	r.entries = append(r.entries, Entry{Region: region, Stats: s})
}

// Len returns the number of regions in the report.
func (r Report) Len() int {
	return len(r.entries)
}

// Get returns the statistics for region.
func (r Report) Get(region string) (Stats, bool) {
	i, ok := r.index[region]
	if !ok {
		return Stats{}, false
	}
	return r.entries[i].Stats, true
}

// Entries returns a copy of the report's entries in order.
func (r Report) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Map returns the report as a plain map.
func (r Report) Map() map[string]Stats {
	out := make(map[string]Stats, len(r.entries))
	for _, e := range r.entries {
		out[e.Region] = e.Stats
	}
	return out
}

// MarshalJSON encodes the report as a JSON object keyed by region.
func (r Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Region)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Stats)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
