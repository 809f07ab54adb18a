// Package aggregator computes per-region latency and uptime statistics over
// a telemetry dataset.
//
// Compute is a pure function of its inputs. It never mutates the dataset and
// keeps no state between calls, so concurrent handlers may share one
// *telemetry.Dataset without locking.
package aggregator

import (
	"sort"

	"github.com/bilal/regionpulse/internal/telemetry"
)

// DefaultThresholdMs is the breach threshold applied when a request omits one.
const DefaultThresholdMs = 180.0

// p95 is the percentile reported as p95_latency.
const p95 = 95.0

// Stats summarises the records of one region. The pointer fields are nil
// when the region has no records, and serialize as JSON null.
type Stats struct {
	AvgLatency *float64 `json:"avg_latency"`
	P95Latency *float64 `json:"p95_latency"`
	AvgUptime  *float64 `json:"avg_uptime"`
	Breaches   int      `json:"breaches"`
}

// Empty reports whether s is the "no data" result.
func (s Stats) Empty() bool {
	return s.AvgLatency == nil && s.P95Latency == nil && s.AvgUptime == nil
}

// Compute returns one Stats per requested region. A record is a breach when
// its latency is strictly greater than thresholdMs. Regions absent from the
// dataset get empty Stats; duplicated regions collapse to a single entry.
func Compute(ds *telemetry.Dataset, regions []string, thresholdMs float64) Report {
	report := newReport(len(regions))
	for _, region := range regions {
		report.set(region, regionStats(ds.ForRegion(region), thresholdMs))
	}
	return report
}

func regionStats(records []telemetry.Record, thresholdMs float64) Stats {
	if len(records) == 0 {
		return Stats{}
	}

	latencies := make([]float64, len(records))
	uptimes := make([]float64, len(records))
	breaches := 0
	for i, r := range records {
		latencies[i] = r.LatencyMs
		uptimes[i] = r.UptimePercent
		if r.LatencyMs > thresholdMs {
			breaches++
		}
	}

	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	return Stats{
		AvgLatency: ptr(Round(Mean(latencies), 2)),
		P95Latency: ptr(Round(Percentile(sorted, p95), 2)),
		AvgUptime:  ptr(Round(Mean(uptimes), 2)),
		Breaches:   breaches,
	}
}

func ptr(v float64) *float64 {
	return &v
}
