package sync

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Session holds everything a single invocation shares: configuration,
// credentials, transport and logger. Build one per process run and pass it
// by reference; none of its fields are modified after construction.
type Session struct {
	Config      Config
	Credentials Credentials
	Logger      logrus.FieldLogger

	// Client is used for batch submissions and vendor API calls.
	// A nil Client means a client with HTTPRequestTimeout.
	Client *http.Client
	// ProbeClient is used for health checks.
	// A nil ProbeClient means a client with HealthCheckTimeout.
	ProbeClient *http.Client

	// Tokens, when set, adds an Authorization bearer header to validation requests.
	Tokens TokenProvider

	// RecordRequests saves every exchange under RecordDir for use as test fixtures.
	RecordRequests bool
	RecordDir      string

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewSession returns a session with default clients and clock.
func NewSession(cfg Config, creds Credentials, logger logrus.FieldLogger) *Session {
	return &Session{
		Config:      cfg,
		Credentials: creds,
		Logger:      logger,
		Client:      &http.Client{Timeout: HTTPRequestTimeout},
		ProbeClient: &http.Client{Timeout: HealthCheckTimeout},
		Now:         time.Now,
	}
}

func (s *Session) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Session) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}
