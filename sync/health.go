package sync

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	ProbeHealthy   = "healthy"
	ProbeUnhealthy = "unhealthy"
)

// Probe is the health of one endpoint.
type Probe struct {
	Status       string  `json:"status"`
	ResponseTime *float64 `json:"response_time,omitempty"` // seconds, set when healthy
	StatusCode   int     `json:"status_code,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// HealthCheck sends an OPTIONS request to every configured endpoint using
// the probe client. Any HTTP response counts as healthy and records its
// status code; only transport failures are unhealthy. Unlike Run, a failed
// probe never stops the remaining probes, so the result always has one
// entry per configured endpoint.
func (s *Session) HealthCheck(ctx context.Context) map[string]Probe {
	log := s.logger()
	result := make(map[string]Probe, len(s.Config.API.Endpoints))

	for _, kind := range s.Config.Kinds() {
		url, _ := s.Config.EndpointURL(kind)
		probe, err := s.probe(ctx, kind, url)
		if err != nil {
			log.Warnf("Health check failed for %s: %v", kind, err)
			result[kind] = Probe{Status: ProbeUnhealthy, Error: err.Error()}
			continue
		}
		result[kind] = probe
	}
	return result
}

func (s *Session) probe(ctx context.Context, kind string, url string) (Probe, error) {
	op := fmt.Sprintf("%s health check", kind)
	builder, err := s.ValidationAPIBuilder(ctx, url, s.probeClient(), kind)
	if err != nil {
		return Probe{}, newError(CodeUnauthorized, op, err)
	}

	var statusCode int
	start := s.now()
	err = builder.
		Method(http.MethodOptions).
		AddValidator(func(*http.Response) error { return nil }).
		Handle(func(res *http.Response) error {
			statusCode = res.StatusCode
			return nil
		}).
		Fetch(ctx)
	if err != nil {
		return Probe{}, transportError(op, err)
	}
	elapsed := s.now().Sub(start).Round(time.Microsecond).Seconds()
	return Probe{
		Status:       ProbeHealthy,
		ResponseTime: &elapsed,
		StatusCode:   statusCode,
	}, nil
}
