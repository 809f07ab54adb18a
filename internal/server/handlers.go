package server

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bilal/regionpulse/internal/aggregator"
	"github.com/bilal/regionpulse/internal/publisher"
)

func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	req, err := decodeComputeRequest(r.Body, s.defaultThreshold)
	if err == nil && req.thresholdErr != nil && s.anyRecords(req.Regions) {
		err = req.thresholdErr
	}
	if err != nil {
		code := statusFor(err)
		log.Warn().Err(err).Str("request_id", RequestIDFrom(r.Context())).Int("status", code).Msg("rejected aggregation request")
		s.metrics.ObserveRequest(code)
		writeError(w, code, err.Error())
		return
	}

	start := time.Now()
	report := aggregator.Compute(s.dataset, req.Regions, req.ThresholdMs)
	s.metrics.ObserveCompute(len(req.Regions), time.Since(start))

	log.Debug().
		Str("request_id", RequestIDFrom(r.Context())).
		Strs("regions", req.Regions).
		Float64("threshold_ms", req.ThresholdMs).
		Msg("region statistics computed")

	code := writeJSON(w, http.StatusOK, report)
	s.metrics.ObserveRequest(code)

	if s.publisher != nil && code == http.StatusOK {
		s.publisher.Publish(publisher.ReportEvent{
			RequestID:   RequestIDFrom(r.Context()),
			Timestamp:   time.Now().UTC(),
			ThresholdMs: eventThreshold(req),
			Regions:     req.Regions,
			Report:      report,
		})
	}
}

// anyRecords reports whether some requested region has data, i.e. whether
// the threshold will be compared against a latency.
func (s *Server) anyRecords(regions []string) bool {
	for _, region := range regions {
		if s.dataset.HasRegion(region) {
			return true
		}
	}
	return false
}

// eventThreshold is nil when the request carried no usable threshold or one
// JSON cannot represent.
func eventThreshold(req computeRequest) *float64 {
	if req.thresholdErr != nil || math.IsInf(req.ThresholdMs, 0) || math.IsNaN(req.ThresholdMs) {
		return nil
	}
	t := req.ThresholdMs
	return &t
}

type healthResponse struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
	Records int    `json:"records"`
	Regions int    `json:"regions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Running: s.Running(),
		Records: s.dataset.Len(),
		Regions: s.regionCount,
	}
	code := http.StatusOK
	if !resp.Running {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// writeJSON encodes v before committing the status, so a value that cannot
// be encoded becomes a 500 instead of an empty 200. It returns the status
// actually sent.
func writeJSON(w http.ResponseWriter, code int, v any) int {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("encode response failed")
		code = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": "response is not representable as JSON"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
	return code
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
