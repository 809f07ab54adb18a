package publisher

import (
	"context"
	"time"

	"github.com/bilal/regionpulse/internal/aggregator"
)

// ReportEvent is the JSON payload exported for every computed report.
// ThresholdMs is nil when the request's threshold was not a finite number.
type ReportEvent struct {
	CorrelationID string            `json:"correlation_id"`
	RequestID     string            `json:"request_id,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	ThresholdMs   *float64          `json:"threshold_ms"`
	Regions       []string          `json:"regions"`
	Report        aggregator.Report `json:"report"`
}

// Sink delivers a batch of events. Deliver must not retain batch after it
// returns.
type Sink interface {
	Deliver(ctx context.Context, batch []ReportEvent) error
	Close() error
}

// Observer is told how many events were delivered or dropped.
type Observer interface {
	ReportsPublished(n int)
	ReportsDropped(n int)
}

type nopObserver struct{}

func (nopObserver) ReportsPublished(int) {}
func (nopObserver) ReportsDropped(int)   {}
