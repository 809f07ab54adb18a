package publisher

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/bilal/regionpulse/internal/config"
)

// HTTPSink posts each batch as a JSON array to a collector endpoint.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	token    string
}

func NewHTTPSink(cfg config.HTTPSinkConfig) (*HTTPSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http sink url not configured")
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		},
	}

	token := ""
	if cfg.TokenEnv != "" {
		token = os.Getenv(cfg.TokenEnv)
	}

	return &HTTPSink{endpoint: cfg.URL, client: client, token: token}, nil
}

func (s *HTTPSink) Deliver(ctx context.Context, batch []ReportEvent) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal reports: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	// correlation header for the batch uses the first event
	if len(batch) > 0 {
		req.Header.Set("X-Correlation-ID", batch[0].CorrelationID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bad status: %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// NewSink builds the sink selected by cfg.Sink.
func NewSink(cfg config.PublisherConfig) (Sink, error) {
	switch cfg.Sink {
	case config.SinkKafka:
		s, err := NewKafkaSink(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SinkHTTP:
		s, err := NewHTTPSink(cfg.HTTP)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}
