package sync

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/google/uuid"
)

// HTTPRequestTimeout is the default timeout for all HTTP requests to external APIs.
const HTTPRequestTimeout = 60 * time.Second

// HealthCheckTimeout bounds each endpoint probe.
const HealthCheckTimeout = 10 * time.Second

// TimestampFormat is the UTC timestamp layout used in request bodies and reports.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

func (s *Session) timestamp() string {
	return s.now().UTC().Format(TimestampFormat)
}

func (s *Session) httpClient() *http.Client {
	if s.Client == nil {
		return &http.Client{Timeout: HTTPRequestTimeout}
	}
	return s.Client
}

func (s *Session) probeClient() *http.Client {
	if s.ProbeClient == nil {
		return &http.Client{Timeout: HealthCheckTimeout}
	}
	return s.ProbeClient
}

// APIBuilder returns a requests.Builder for url using client.
// When recording is on, exchanges are saved under RecordDir/target.
func (s *Session) APIBuilder(url string, client *http.Client, target string) *requests.Builder {
	result := requests.
		URL(url).
		Client(client)
	if s.RecordRequests {
		dir := s.RecordDir
		if dir == "" {
			dir = "testdata/.requests"
		}
		result = result.Transport(requests.Record(nil, path.Join(dir, target)))
	}
	return result
}

// ValidationAPIBuilder returns a builder for the validation API carrying the
// client, program and organization headers and a fresh request id.
func (s *Session) ValidationAPIBuilder(ctx context.Context, url string, client *http.Client, target string) (*requests.Builder, error) {
	result := s.APIBuilder(url, client, target).
		Header("x-client-id", s.Credentials.ClientID).
		Header("x-program-id", s.Credentials.ProgramID).
		Header("x-program-id-type", s.Credentials.ProgramIDType).
		Header("x-organization-id", s.Config.Organization.ID).
		Header("X-Request-ID", uuid.NewString())
	if s.Tokens != nil {
		token, err := s.Tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		result = result.Bearer(token)
	}
	return result, nil
}
