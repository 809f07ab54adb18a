package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

var (
	// ErrInvalidBody covers bodies that are not a JSON object or carry a
	// regions value that is not an array of non-null strings.
	ErrInvalidBody = errors.New("invalid request body")
	// ErrThresholdType is a threshold_ms that is not a number. Latencies
	// cannot be compared against it.
	ErrThresholdType = errors.New("threshold_ms is not a number")
)

// computeRequest is the typed form of the POST / body.
type computeRequest struct {
	Regions     []string
	ThresholdMs float64

	// thresholdErr is set when threshold_ms is not a number. It only fails
	// the request once a requested region has records to compare against it.
	thresholdErr error
}

// decodeComputeRequest parses body, applying the defaults for absent or null
// fields: no regions and defaultThreshold.
func decodeComputeRequest(body io.Reader, defaultThreshold float64) (computeRequest, error) {
	req := computeRequest{Regions: []string{}, ThresholdMs: defaultThreshold}

	dec := json.NewDecoder(body)
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, err
		}
		return req, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if fields == nil {
		return req, fmt.Errorf("%w: body must be a JSON object", ErrInvalidBody)
	}
	if _, err := dec.Token(); err != io.EOF {
		return req, fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidBody)
	}

	if raw, ok := fields["regions"]; ok && !isNull(raw) {
		regions, err := decodeRegions(raw)
		if err != nil {
			return req, err
		}
		req.Regions = regions
	}
	if raw, ok := fields["threshold_ms"]; ok && !isNull(raw) {
		t, valid := parseThreshold(raw)
		if !valid {
			req.thresholdErr = fmt.Errorf("%w: got %s", ErrThresholdType, bytes.TrimSpace(raw))
		} else {
			req.ThresholdMs = t
		}
	}
	return req, nil
}

func decodeRegions(raw json.RawMessage) ([]string, error) {
	var elems []*string
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: regions must be an array of strings", ErrInvalidBody)
	}
	regions := make([]string, len(elems))
	for i, e := range elems {
		if e == nil {
			return nil, fmt.Errorf("%w: regions[%d] is null", ErrInvalidBody, i)
		}
		regions[i] = *e
	}
	return regions, nil
}

// parseThreshold accepts any JSON number, including literals beyond the
// float64 range which saturate to +-Inf, and booleans as 1 and 0.
func parseThreshold(raw json.RawMessage) (float64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	switch t := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		return f, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// statusFor maps a decode error to the response code.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrThresholdType):
		return http.StatusInternalServerError
	case errors.Is(err, ErrInvalidBody):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
